package main

import (
	"context"
	"fmt"
	"log"
	"time"

	common_api "ledger-sync/internal/common/api"
	"ledger-sync/internal/config"
	"ledger-sync/internal/database"
	"ledger-sync/internal/features/audit"
	"ledger-sync/internal/features/bank"
	"ledger-sync/internal/features/batch"
	cron_feature "ledger-sync/internal/features/cron"
	"ledger-sync/internal/features/customer"
	"ledger-sync/internal/features/income"
	"ledger-sync/internal/features/invoice"
	"ledger-sync/internal/features/journal"
	"ledger-sync/internal/features/ledger"
	"ledger-sync/internal/features/mis"
	"ledger-sync/internal/features/payment"
	sync_feature "ledger-sync/internal/features/sync"
	"ledger-sync/internal/features/system"
	"ledger-sync/internal/logger"
	"ledger-sync/internal/middleware"
	"ledger-sync/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.CORSMiddleware(cfg))

	return app
}

// AsRoute is a helper function to reduce boilerplate.
// It tags the constructor so Fx knows to add it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),
		fx.ResultTags(`group:"routes"`),
	)
}

// AsKind adds an entity kind constructor to the "kinds" group.
func AsKind(f any) any {
	return fx.Annotate(
		f,
		fx.ResultTags(`group:"kinds"`),
	)
}

// RegisterAllRoutes takes the group "routes" (slice of interfaces)
// and calls Setup() on each one.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route, log *zap.Logger) {
	log.Info("Registering routes", zap.Int("count", len(routes)))
	for _, route := range routes {
		log.Debug("Setting up route", zap.String("api", fmt.Sprintf("%T", route)))
		route.Setup(app)
	}
}

// RegisterAllRoutesWithAnnotation wraps RegisterAllRoutes with fx annotations
var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`, ``),
)

// NewRegistryWithAnnotation collects every kind provided with AsKind.
var NewRegistryWithAnnotation = fx.Annotate(
	sync_feature.NewRegistry,
	fx.ParamTags(`group:"kinds"`),
)

func NewTokenCipher(cfg *config.Config, log *zap.Logger) (*ledger.TokenCipher, error) {
	return ledger.NewTokenCipher(cfg.TokenEncryptionKey, log)
}

func NewDispatcher(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) batch.Dispatcher {
	d := batch.NewLocalDispatcher(cfg, log)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return d.Shutdown(ctx)
		},
	})
	return d
}

// StartServer creates a lifecycle hook to start Fiber in a goroutine
// and shut it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				log.Info("Starting HTTP server", zap.String("addr", port))
				if err := app.Listen(port); err != nil {
					log.Fatal("Server failed to start", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

// InitializeIndexes ensures that necessary database indexes are created
func InitializeIndexes(lc fx.Lifecycle, auditRepo audit.AuditRepository, jobs batch.JobStore, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				if err := auditRepo.EnsureIndexes(ctx); err != nil {
					log.Error("Failed to ensure audit indexes", zap.Error(err))
				}
				if err := jobs.EnsureIndexes(ctx); err != nil {
					log.Error("Failed to ensure job indexes", zap.Error(err))
				}
			}()
			return nil
		},
	})
}

func StartScheduler(lc fx.Lifecycle, scheduler cron_feature.SchedulerService) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.InitializeScheduler(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.StopScheduler()
		},
	})
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	utils.SetSecret(cfg.JWTSecret)

	app := fx.New(
		fx.Supply(cfg),
		fx.Provide(
			// Initialize Logger
			logger.NewLogger,

			// Initialize Fiber Server
			NewFiberServer,

			// Initialize Database
			database.NewDatabase,
			database.NewMisDatabase,

			// Initialize Repository
			audit.NewAuditRepository,
			ledger.NewConnectionRepository,
			batch.NewJobStore,
			batch.NewCursorStore,
			cron_feature.NewRunRepository,
			bank.NewBankRepository,
			income.NewCategoryRepository,
			invoice.NewInvoiceRepository,
			payment.NewPaymentRepository,
			customer.NewStudentRepository,
			customer.NewApplicantRepository,
			mis.NewDirectory,

			// Ledger connection
			NewTokenCipher,
			ledger.NewTokenVault,
			ledger.NewClientFactory,

			// Entity mapping
			bank.NewBankMapper,
			invoice.NewInvoiceMapper,
			payment.NewPaymentMapper,
			customer.NewCustomerMapper,
			AsKind(bank.NewBankKind),
			AsKind(income.NewCategoryKind),
			AsKind(invoice.NewInvoiceKind),
			AsKind(payment.NewPaymentKind),
			AsKind(customer.NewStudentKind),
			AsKind(customer.NewApplicantKind),
			NewRegistryWithAnnotation,

			// Initialize Service
			audit.NewAuditService,
			ledger.NewConnectionService,
			sync_feature.NewExecutor,
			sync_feature.NewSyncService,
			NewDispatcher,
			batch.NewOrchestrator,
			journal.NewJournalService,
			cron_feature.NewSchedulerService,

			// Initialize Controller
			audit.NewAuditController,
			ledger.NewConnectionController,
			sync_feature.NewSyncController,
			batch.NewBatchController,
			journal.NewJournalController,
			cron_feature.NewSchedulerController,
			system.NewHealthController,

			// Initialize API Routes
			AsRoute(system.NewHealthApi),
			AsRoute(audit.NewAuditApi),
			AsRoute(ledger.NewLedgerApi),
			AsRoute(sync_feature.NewSyncApi),
			AsRoute(batch.NewBatchApi),
			AsRoute(journal.NewJournalApi),
			AsRoute(cron_feature.NewSchedulerApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			// Register Routes & Start
			RegisterAllRoutesWithAnnotation,
			StartServer,
			StartScheduler,
			InitializeIndexes,
		),
	)

	app.Run()
}
