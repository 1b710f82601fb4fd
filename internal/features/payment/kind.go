package payment

import (
	"context"
	"fmt"

	"ledger-sync/internal/features/ledger"
	sync_feature "ledger-sync/internal/features/sync"
)

// PaymentKind syncs payment rows as ledger payments.
type PaymentKind struct {
	*PaymentRepository
	mapper *PaymentMapper
}

func NewPaymentKind(repo *PaymentRepository, mapper *PaymentMapper) sync_feature.Kind {
	return &PaymentKind{PaymentRepository: repo, mapper: mapper}
}

func (k *PaymentKind) Name() string       { return "payment" }
func (k *PaymentKind) ObjectType() string { return "Payment" }

func (k *PaymentKind) Fetch(ctx context.Context, id string) (*sync_feature.Record, error) {
	return k.Get(ctx, id)
}

func (k *PaymentKind) MapPayload(ctx context.Context, client ledger.Client, rec *sync_feature.Record) (map[string]any, error) {
	p, ok := rec.Source.(*Payment)
	if !ok {
		return nil, fmt.Errorf("payment record %s carries %T", rec.ID, rec.Source)
	}
	return k.mapper.Map(ctx, client, p)
}
