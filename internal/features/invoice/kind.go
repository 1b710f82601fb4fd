package invoice

import (
	"context"
	"fmt"

	"ledger-sync/internal/features/ledger"
	sync_feature "ledger-sync/internal/features/sync"
)

// InvoiceKind syncs tbl_imvoice rows as ledger invoices.
type InvoiceKind struct {
	*InvoiceRepository
	mapper *InvoiceMapper
}

func NewInvoiceKind(repo *InvoiceRepository, mapper *InvoiceMapper) sync_feature.Kind {
	return &InvoiceKind{InvoiceRepository: repo, mapper: mapper}
}

func (k *InvoiceKind) Name() string       { return "invoice" }
func (k *InvoiceKind) ObjectType() string { return "Invoice" }

func (k *InvoiceKind) Fetch(ctx context.Context, id string) (*sync_feature.Record, error) {
	return k.Get(ctx, id)
}

func (k *InvoiceKind) MapPayload(ctx context.Context, client ledger.Client, rec *sync_feature.Record) (map[string]any, error) {
	inv, ok := rec.Source.(*Invoice)
	if !ok {
		return nil, fmt.Errorf("invoice record %s carries %T", rec.ID, rec.Source)
	}
	return k.mapper.Map(ctx, inv)
}
