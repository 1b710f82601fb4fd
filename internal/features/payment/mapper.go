package payment

import (
	"context"
	"fmt"
	"time"

	"ledger-sync/internal/config"
	"ledger-sync/internal/features/ledger"
	"ledger-sync/internal/features/mis"
	sync_feature "ledger-sync/internal/features/sync"

	"go.uber.org/zap"
)

// dateLayouts are the formats seen in payment.date, which is free text.
var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", "2006-01-02T15:04:05Z07:00", "02/01/2006"}

type PaymentMapper struct {
	dir           *mis.Directory
	allowFallback bool
	fallbackID    string
	methodID      string
	now           func() time.Time
	log           *zap.Logger
}

func NewPaymentMapper(cfg *config.Config, dir *mis.Directory, log *zap.Logger) *PaymentMapper {
	return &PaymentMapper{
		dir:           dir,
		allowFallback: cfg.PaymentAllowFallbackAccount,
		fallbackID:    cfg.PaymentFallbackAccountID,
		methodID:      cfg.PaymentMethodID,
		now:           time.Now,
		log:           log.Named("payment_mapper"),
	}
}

func (m *PaymentMapper) Map(ctx context.Context, client ledger.Client, p *Payment) (map[string]any, error) {
	if !p.Amount.IsPositive() {
		return nil, sync_feature.NewMappingError("amount", "payment %s has amount %s", p.ID, p.Amount.String())
	}

	customer, err := m.dir.Customer(ctx, p.RegNo)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, sync_feature.NewMappingError("customer_ref", "payment %s: no student or applicant %s", p.ID, p.RegNo)
	}
	if customer.ID == "" {
		return nil, sync_feature.NewMappingError("customer_ref", "payment %s: %s %s has no ledger customer", p.ID, customer.Type, p.RegNo)
	}

	depositID, err := m.depositAccount(ctx, client, p)
	if err != nil {
		return nil, err
	}

	amount := p.Amount.Round(2).InexactFloat64()
	payload := map[string]any{
		"CustomerRef":         map[string]any{"value": customer.ID},
		"DepositToAccountRef": map[string]any{"value": depositID},
		"TotalAmt":            amount,
		"PrivateNote":         fmt.Sprintf("MIS Payment ID: %s, Trans Code: %s", p.ID, p.TransCode),
		"TxnDate":             m.txnDate(p.Date),
	}
	if m.methodID != "" {
		payload["PaymentMethodRef"] = map[string]any{"value": m.methodID}
	}

	if p.InvoiceRef != "" {
		invoiceID, err := m.dir.InvoiceExternalID(ctx, p.InvoiceRef)
		if err != nil {
			return nil, err
		}
		if invoiceID != "" {
			payload["Line"] = []map[string]any{{
				"Amount":    amount,
				"LinkedTxn": []map[string]any{{"TxnId": invoiceID, "TxnType": "Invoice"}},
			}}
		} else {
			m.log.Warn("Linked invoice not synced, posting unapplied payment",
				zap.String("payment_id", p.ID), zap.String("invoice_ref", p.InvoiceRef))
		}
	}

	return payload, nil
}

// depositAccount returns the ledger account of the payment's bank after
// checking it still exists, or the configured fallback account.
func (m *PaymentMapper) depositAccount(ctx context.Context, client ledger.Client, p *Payment) (string, error) {
	var problem string
	switch {
	case p.BankID == "":
		problem = "payment has no bank"
	case !p.BankFound:
		problem = fmt.Sprintf("bank %s does not exist", p.BankID)
	case p.BankExternalID == "":
		problem = fmt.Sprintf("bank %q (%s) is not synced", p.BankName, p.BankID)
	default:
		exists, err := client.Exists(ctx, "Account", p.BankExternalID)
		if err != nil {
			return "", fmt.Errorf("verify deposit account %s: %w", p.BankExternalID, err)
		}
		if exists {
			return p.BankExternalID, nil
		}
		problem = fmt.Sprintf("ledger account %s for bank %q no longer exists", p.BankExternalID, p.BankName)
	}

	if m.allowFallback && m.fallbackID != "" {
		m.log.Warn("Using fallback deposit account",
			zap.String("payment_id", p.ID), zap.String("account_id", m.fallbackID), zap.String("reason", problem))
		return m.fallbackID, nil
	}
	return "", sync_feature.NewMappingError("deposit_account", "payment %s: %s", p.ID, problem)
}

func (m *PaymentMapper) txnDate(raw string) string {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02")
		}
	}
	if raw != "" {
		m.log.Warn("Unparseable payment date, using today", zap.String("date", raw))
	}
	return m.now().Format("2006-01-02")
}
