package income

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ledger-sync/internal/database"
	sync_feature "ledger-sync/internal/features/sync"
	"ledger-sync/internal/features/syncstate"

	"go.uber.org/zap"
)

var categoryTable = syncstate.Table{
	Name:             "tbl_income_category",
	IDColumn:         "id",
	StatusColumn:     "income_account_status",
	ExternalIDColumn: "income_account_qb",
	PushedByColumn:   "pushed_by",
	PushedDateColumn: "pushed_date",
	LabelExpr:        "name",
}

type CategoryRepository struct {
	*syncstate.Store
}

func NewCategoryRepository(db *database.MisDB, log *zap.Logger) *CategoryRepository {
	return &CategoryRepository{Store: syncstate.NewStore(db, categoryTable, log)}
}

func (r *CategoryRepository) Get(ctx context.Context, id string) (*sync_feature.Record, error) {
	var (
		row                       syncstate.Row
		name, description, campus sql.NullString
	)
	query := fmt.Sprintf("SELECT %s, name, description, camp_id FROM tbl_income_category WHERE id = ?", r.Columns(""))
	err := r.DB().DB.QueryRowContext(ctx, r.DB().Rebind(query), id).
		Scan(append(row.Dest(), &name, &description, &campus)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("income category %s: %w", id, sync_feature.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load income category %s: %w", id, err)
	}

	c := &Category{
		ID:          row.ID,
		Name:        strings.TrimSpace(name.String),
		Description: strings.TrimSpace(description.String),
		CampusID:    campus.String,
	}
	row.Label = name
	return r.Record(&row, c), nil
}
