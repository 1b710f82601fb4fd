package bank

import (
	"context"
	"fmt"
	"strings"

	"ledger-sync/internal/config"
	"ledger-sync/internal/features/ledger"
	sync_feature "ledger-sync/internal/features/sync"

	"go.uber.org/zap"
)

type CurrencyStrategy string

const (
	StrategyOmit       CurrencyStrategy = "OMIT"
	StrategyForceBase  CurrencyStrategy = "FORCE_BASE"
	StrategyMatchBank  CurrencyStrategy = "MATCH_BANK"
	StrategyAutoDetect CurrencyStrategy = "AUTO_DETECT"
)

// supportedCurrencies are the codes passed through unchanged; anything else
// is replaced by the base currency.
var supportedCurrencies = map[string]bool{"RWF": true, "USD": true, "EUR": true, "GBP": true}

// CurrencyDecision records which currency (if any) goes on the account and why.
// An empty Currency means CurrencyRef is omitted.
type CurrencyDecision struct {
	Strategy CurrencyStrategy
	Currency string
	Reason   string
}

type BankMapper struct {
	strategy CurrencyStrategy
	base     string
	log      *zap.Logger
}

func NewBankMapper(cfg *config.Config, log *zap.Logger) *BankMapper {
	log = log.Named("bank_mapper")
	strategy := CurrencyStrategy(strings.ToUpper(cfg.BankCurrencyStrategy))
	switch strategy {
	case StrategyOmit, StrategyForceBase, StrategyMatchBank, StrategyAutoDetect:
	default:
		log.Warn("Unknown bank currency strategy, using auto detection", zap.String("strategy", cfg.BankCurrencyStrategy))
		strategy = StrategyAutoDetect
	}
	base := strings.ToUpper(cfg.LedgerBaseCurrency)
	if base == "" {
		base = "RWF"
	}
	return &BankMapper{strategy: strategy, base: base, log: log}
}

func (m *BankMapper) remap(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if supportedCurrencies[code] {
		return code
	}
	return m.base
}

func (m *BankMapper) DecideCurrency(ctx context.Context, client ledger.Client, bankCurrency string) CurrencyDecision {
	switch m.strategy {
	case StrategyOmit:
		return CurrencyDecision{Strategy: m.strategy, Reason: "configured to use the company home currency"}
	case StrategyForceBase:
		return CurrencyDecision{Strategy: m.strategy, Currency: m.base, Reason: "configured base currency " + m.base}
	case StrategyMatchBank:
		return CurrencyDecision{Strategy: m.strategy, Currency: m.remap(bankCurrency),
			Reason: fmt.Sprintf("bank currency %q", bankCurrency)}
	}

	if code := strings.ToUpper(strings.TrimSpace(bankCurrency)); code == "" || code == m.base {
		return CurrencyDecision{Strategy: m.strategy, Reason: "bank uses the base currency " + m.base + ", omitting"}
	}

	info, err := client.CompanyCurrency(ctx)
	if err != nil {
		return CurrencyDecision{Strategy: m.strategy, Reason: "currency probe failed, omitting: " + err.Error()}
	}
	if !info.MultiCurrencyEnabled {
		return CurrencyDecision{Strategy: m.strategy,
			Reason: fmt.Sprintf("single-currency company (home %s), omitting", info.HomeCurrency)}
	}
	return CurrencyDecision{Strategy: m.strategy, Currency: m.remap(bankCurrency),
		Reason: fmt.Sprintf("multi-currency company, using bank currency %q", bankCurrency)}
}

// Map builds an Account payload of type Bank.
func (m *BankMapper) Map(ctx context.Context, client ledger.Client, b *Bank) (map[string]any, error) {
	if b.Name == "" {
		return nil, sync_feature.NewMappingError("bank_name", "bank %s has no name", b.ID)
	}

	payload := map[string]any{
		"Name":           b.DisplayName(),
		"AccountType":    "Bank",
		"AccountSubType": "Checking",
		"AcctNum":        b.AccountNo,
		"Description":    strings.TrimSpace(fmt.Sprintf("MIS Bank ID: %s - %s %s", b.ID, b.Name, b.Branch)),
	}

	decision := m.DecideCurrency(ctx, client, b.Currency)
	if decision.Currency != "" {
		payload["CurrencyRef"] = map[string]any{"value": decision.Currency}
	}
	m.log.Info("Bank currency decision",
		zap.String("bank_id", b.ID),
		zap.String("strategy", string(decision.Strategy)),
		zap.String("bank_currency", b.Currency),
		zap.String("currency_ref", decision.Currency),
		zap.String("reason", decision.Reason))

	return payload, nil
}
