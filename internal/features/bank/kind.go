package bank

import (
	"context"
	"fmt"

	"ledger-sync/internal/features/ledger"
	sync_feature "ledger-sync/internal/features/sync"
)

// BankKind syncs tbl_bank rows as ledger Bank accounts.
type BankKind struct {
	*BankRepository
	mapper *BankMapper
}

func NewBankKind(repo *BankRepository, mapper *BankMapper) sync_feature.Kind {
	return &BankKind{BankRepository: repo, mapper: mapper}
}

func (k *BankKind) Name() string       { return "bank" }
func (k *BankKind) ObjectType() string { return "Account" }

func (k *BankKind) Fetch(ctx context.Context, id string) (*sync_feature.Record, error) {
	return k.Get(ctx, id)
}

func (k *BankKind) MapPayload(ctx context.Context, client ledger.Client, rec *sync_feature.Record) (map[string]any, error) {
	b, ok := rec.Source.(*Bank)
	if !ok {
		return nil, fmt.Errorf("bank record %s carries %T", rec.ID, rec.Source)
	}
	return k.mapper.Map(ctx, client, b)
}
