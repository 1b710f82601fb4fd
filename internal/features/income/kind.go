package income

import (
	"context"
	"fmt"

	"ledger-sync/internal/features/ledger"
	sync_feature "ledger-sync/internal/features/sync"
)

// CategoryKind syncs income categories as ledger Income accounts.
type CategoryKind struct {
	*CategoryRepository
}

func NewCategoryKind(repo *CategoryRepository) sync_feature.Kind {
	return &CategoryKind{CategoryRepository: repo}
}

func (k *CategoryKind) Name() string       { return "income" }
func (k *CategoryKind) ObjectType() string { return "Account" }

func (k *CategoryKind) Fetch(ctx context.Context, id string) (*sync_feature.Record, error) {
	return k.Get(ctx, id)
}

func (k *CategoryKind) MapPayload(ctx context.Context, client ledger.Client, rec *sync_feature.Record) (map[string]any, error) {
	c, ok := rec.Source.(*Category)
	if !ok {
		return nil, fmt.Errorf("income record %s carries %T", rec.ID, rec.Source)
	}
	return MapAccount(c)
}

// MapAccount builds the Income account payload for a category.
func MapAccount(c *Category) (map[string]any, error) {
	if c.Name == "" {
		return nil, sync_feature.NewMappingError("name", "income category %s has no name", c.ID)
	}
	return map[string]any{
		"Name":        c.Name,
		"Description": c.Description,
		"AccountType": "Income",
	}, nil
}
