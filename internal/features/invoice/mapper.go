package invoice

import (
	"context"
	"fmt"
	"time"

	"ledger-sync/internal/config"
	"ledger-sync/internal/features/mis"
	sync_feature "ledger-sync/internal/features/sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type InvoiceMapper struct {
	dir            *mis.Directory
	studentClass   string
	applicantClass string
	now            func() time.Time
	log            *zap.Logger
}

func NewInvoiceMapper(cfg *config.Config, dir *mis.Directory, log *zap.Logger) *InvoiceMapper {
	return &InvoiceMapper{
		dir:            dir,
		studentClass:   cfg.InvoiceStudentClassID,
		applicantClass: cfg.InvoiceApplicantClassID,
		now:            time.Now,
		log:            log.Named("invoice_mapper"),
	}
}

// Map builds an Invoice payload with one sales line for the fee, plus a
// negative wallet line for prepaid invoices.
func (m *InvoiceMapper) Map(ctx context.Context, inv *Invoice) (map[string]any, error) {
	amount := inv.Amount()

	if inv.FeeCategoryID == "" {
		return nil, sync_feature.NewMappingError("item_ref", "invoice %s has no fee category", inv.ID)
	}
	category, err := m.dir.Category(ctx, inv.FeeCategoryID)
	if err != nil {
		return nil, err
	}
	if category == nil || category.ItemID == "" {
		return nil, sync_feature.NewMappingError("item_ref", "invoice %s: fee category %s has no ledger item", inv.ID, inv.FeeCategoryID)
	}

	campus, location, err := m.dir.CampusLocation(ctx, inv.RegNo)
	if err != nil {
		return nil, err
	}
	if campus == "" {
		return nil, sync_feature.NewMappingError("campus", "invoice %s: no campus for %s", inv.ID, inv.RegNo)
	}
	if location == "" {
		return nil, sync_feature.NewMappingError("department_ref", "invoice %s: campus %s has no ledger location", inv.ID, campus)
	}

	customer, err := m.dir.Customer(ctx, inv.RegNo)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, sync_feature.NewMappingError("customer_ref", "invoice %s: no student or applicant %s", inv.ID, inv.RegNo)
	}
	if customer.ID == "" {
		return nil, sync_feature.NewMappingError("customer_ref", "invoice %s: %s %s has no ledger customer", inv.ID, customer.Type, inv.RegNo)
	}

	classID := m.studentClass
	if customer.Type == mis.CustomerApplicant {
		classID = m.applicantClass
	}

	comment := inv.Comment
	if comment == "" {
		comment = "Student Fee"
	}
	lines := []map[string]any{
		salesLine(amount, category.ItemID, classID, fmt.Sprintf("%s - %s", category.Name, comment)),
	}

	if inv.IsPrepayment {
		line, err := m.walletLine(ctx, inv, classID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	txnDate := m.now()
	if inv.InvoiceDate != nil {
		txnDate = *inv.InvoiceDate
	}

	return map[string]any{
		"Line":          lines,
		"CustomerRef":   map[string]any{"value": customer.ID},
		"DepartmentRef": map[string]any{"value": location},
		"TxnDate":       txnDate.Format("2006-01-02"),
		"DocNumber":     "MIS-" + inv.ID,
		"PrivateNote":   fmt.Sprintf("Synchronized from MIS - Invoice ID: %s, Student: %s", inv.ID, inv.RegNo),
	}, nil
}

// walletLine deducts money the student already holds in a wallet.
func (m *InvoiceMapper) walletLine(ctx context.Context, inv *Invoice, classID string) (map[string]any, error) {
	prepaid, err := m.dir.WalletPrepayment(ctx, inv.ReferenceNumber)
	if err != nil {
		return nil, err
	}
	if prepaid == nil {
		return nil, sync_feature.NewMappingError("prepayment", "invoice %s: no payment for reference %s", inv.ID, inv.ReferenceNumber)
	}
	paid, err := decimal.NewFromString(prepaid.Amount)
	if err != nil {
		return nil, sync_feature.NewMappingError("prepayment", "invoice %s: payment amount %q is not a number", inv.ID, prepaid.Amount)
	}
	if prepaid.CategoryID == "" {
		return nil, sync_feature.NewMappingError("prepayment", "invoice %s: wallet for reference %s not found", inv.ID, inv.ReferenceNumber)
	}
	walletCategory, err := m.dir.Category(ctx, prepaid.CategoryID)
	if err != nil {
		return nil, err
	}
	if walletCategory == nil || walletCategory.ItemID == "" {
		return nil, sync_feature.NewMappingError("prepayment", "invoice %s: wallet category %s has no ledger item", inv.ID, prepaid.CategoryID)
	}

	m.log.Info("Deducting wallet prepayment", zap.String("invoice_id", inv.ID), zap.String("amount", paid.StringFixed(2)))
	return salesLine(paid.Neg().Round(2), walletCategory.ItemID, classID,
		"Synced the invoice by deducting from the wallet (Unearned revenue)"), nil
}

func salesLine(amount decimal.Decimal, itemID, classID, description string) map[string]any {
	detail := map[string]any{
		"ItemRef":   map[string]any{"value": itemID},
		"Qty":       1,
		"UnitPrice": amount.InexactFloat64(),
	}
	if classID != "" {
		detail["ClassRef"] = map[string]any{"value": classID}
	}
	return map[string]any{
		"Amount":              amount.InexactFloat64(),
		"DetailType":          "SalesItemLineDetail",
		"SalesItemLineDetail": detail,
		"Description":         description,
	}
}
