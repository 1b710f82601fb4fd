package bank

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

// The status column doubles as a legacy "active"/"inactive" flag, hence text.
var bankTable = syncstate.Table{
	Name:             "tbl_bank",
	IDColumn:         "bank_id",
	StatusColumn:     "status",
	ExternalIDColumn: "qk_id",
	PushedByColumn:   "pushed_by",
	PushedDateColumn: "pushed_date",
	LabelExpr:        "bank_name",
	TextStatus:       true,
}

type BankRepository struct {
	*syncstate.Store
}

func NewBankRepository(db *database.MisDB, log *zap.Logger) *BankRepository {
	return &BankRepository{Store: syncstate.NewStore(db, bankTable, log)}
}

func (r *BankRepository) Get(ctx context.Context, id string) (*sync_feature.Record, error) {
	var (
		row                                   syncstate.Row
		code, name, branch, account, currency sql.NullString
	)
	query := fmt.Sprintf(
		"SELECT %s, bank_code, bank_name, bank_branch, account_no, currency FROM tbl_bank WHERE bank_id = ?",
		r.Columns(""))
	dest := append(row.Dest(), &code, &name, &branch, &account, &currency)

	err := r.DB().DB.QueryRowContext(ctx, r.DB().Rebind(query), id).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bank %s: %w", id, sync_feature.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load bank %s: %w", id, err)
	}

	b := &Bank{
		ID:        row.ID,
		Code:      strings.TrimSpace(code.String),
		Name:      strings.TrimSpace(name.String),
		Branch:    strings.TrimSpace(branch.String),
		AccountNo: strings.TrimSpace(account.String),
		Currency:  strings.ToUpper(strings.TrimSpace(currency.String)),
	}
	row.Label = sql.NullString{String: b.Name, Valid: true}
	return r.Record(&row, b), nil
}
