package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	JWTSecret   string
	MongoURI    string
	DBName      string
	SkipAuth    bool
	Environment string
	AppId       string

	CORSAllowedOrigins []string

	// MIS source database
	MISDriver string // "mysql" or "postgres"
	MISDSN    string

	// Ledger OAuth application
	LedgerClientID       string
	LedgerClientSecret   string
	LedgerRedirectURI    string
	LedgerAPIBaseURL     string
	LedgerAuthURL        string
	LedgerTokenURL       string
	LedgerRevokeURL      string
	LedgerScopes         []string
	LedgerMinorVersion   string
	LedgerRequestTimeout time.Duration
	LedgerMinInterval    time.Duration
	TokenEncryptionKey   string

	// Entity mapping
	BankCurrencyStrategy        string
	LedgerBaseCurrency          string
	PaymentAllowFallbackAccount bool
	PaymentFallbackAccountID    string
	PaymentMethodID             string
	InvoiceStudentClassID       string
	InvoiceApplicantClassID     string
	CustomerStudentTypeID       string
	CustomerApplicantTypeID     string

	// Batch execution
	DispatchWorkers  int
	ChunkMaxAttempts int
	DefaultBatchSize int
	StalenessWindow  time.Duration

	// Cron expressions per entity kind; empty disables the schedule
	SyncSchedules map[string]string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file successfully")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", "secret"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:      getEnv("DB_NAME", "ledger-sync"),
		SkipAuth:    getEnv("SKIP_AUTH", "false") == "true",
		Environment: getEnv("ENVIRONMENT", "development"),
		AppId:       getEnv("APP_ID", "ledger-sync"),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),

		MISDriver: getEnv("MIS_DRIVER", "mysql"),
		MISDSN:    getEnv("MIS_DSN", "root:@tcp(localhost:3306)/mis?parseTime=true"),

		LedgerClientID:       getEnv("LEDGER_CLIENT_ID", ""),
		LedgerClientSecret:   getEnv("LEDGER_CLIENT_SECRET", ""),
		LedgerRedirectURI:    getEnv("LEDGER_REDIRECT_URI", "http://localhost:8080/api/ledger/callback"),
		LedgerAPIBaseURL:     getEnv("LEDGER_API_BASE_URL", "https://sandbox-quickbooks.api.intuit.com"),
		LedgerAuthURL:        getEnv("LEDGER_AUTH_URL", "https://appcenter.intuit.com/connect/oauth2"),
		LedgerTokenURL:       getEnv("LEDGER_TOKEN_URL", "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"),
		LedgerRevokeURL:      getEnv("LEDGER_REVOKE_URL", "https://developer.api.intuit.com/v2/oauth2/tokens/revoke"),
		LedgerScopes:         splitList(getEnv("LEDGER_SCOPES", "com.intuit.quickbooks.accounting")),
		LedgerMinorVersion:   getEnv("LEDGER_MINOR_VERSION", "65"),
		LedgerRequestTimeout: getDuration("LEDGER_REQUEST_TIMEOUT", 30*time.Second),
		LedgerMinInterval:    getDuration("LEDGER_MIN_REQUEST_INTERVAL", 0),
		TokenEncryptionKey:   getEnv("TOKEN_ENCRYPTION_KEY", ""),

		BankCurrencyStrategy:        getEnv("BANK_CURRENCY_STRATEGY", "AUTO_DETECT"),
		LedgerBaseCurrency:          getEnv("LEDGER_BASE_CURRENCY", "RWF"),
		PaymentAllowFallbackAccount: getEnv("PAYMENT_ALLOW_FALLBACK_ACCOUNT", "false") == "true",
		PaymentFallbackAccountID:    getEnv("PAYMENT_FALLBACK_ACCOUNT_ID", ""),
		PaymentMethodID:             getEnv("PAYMENT_METHOD_ID", ""),
		InvoiceStudentClassID:       getEnv("INVOICE_STUDENT_CLASS_ID", ""),
		InvoiceApplicantClassID:     getEnv("INVOICE_APPLICANT_CLASS_ID", ""),
		CustomerStudentTypeID:       getEnv("CUSTOMER_STUDENT_TYPE_ID", ""),
		CustomerApplicantTypeID:     getEnv("CUSTOMER_APPLICANT_TYPE_ID", ""),

		DispatchWorkers:  getInt("DISPATCH_WORKERS", 4),
		ChunkMaxAttempts: getInt("CHUNK_MAX_ATTEMPTS", 3),
		DefaultBatchSize: getInt("DEFAULT_BATCH_SIZE", 50),
		StalenessWindow:  getDuration("SYNC_STALENESS_WINDOW", 5*time.Minute),

		SyncSchedules: map[string]string{
			"bank":      getEnv("SYNC_SCHEDULE_BANK", ""),
			"income":    getEnv("SYNC_SCHEDULE_INCOME", ""),
			"invoice":   getEnv("SYNC_SCHEDULE_INVOICE", ""),
			"payment":   getEnv("SYNC_SCHEDULE_PAYMENT", ""),
			"student":   getEnv("SYNC_SCHEDULE_STUDENT", ""),
			"applicant": getEnv("SYNC_SCHEDULE_APPLICANT", ""),
		},
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Invalid duration for %s: %q, using %s", key, raw, fallback)
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
