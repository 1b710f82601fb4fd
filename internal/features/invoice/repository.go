package invoice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ledger-sync/internal/database"
	sync_feature "ledger-sync/internal/features/sync"
	"ledger-sync/internal/features/syncstate"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var invoiceTable = syncstate.Table{
	Name:             "tbl_imvoice",
	IDColumn:         "id",
	StatusColumn:     "QuickBk_Status",
	ExternalIDColumn: "quickbooks_id",
	PushedByColumn:   "pushed_by",
	PushedDateColumn: "pushed_date",
	LabelExpr:        "reg_no",
}

type InvoiceRepository struct {
	*syncstate.Store
}

func NewInvoiceRepository(db *database.MisDB, log *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{Store: syncstate.NewStore(db, invoiceTable, log)}
}

func (r *InvoiceRepository) Get(ctx context.Context, id string) (*sync_feature.Record, error) {
	var (
		row                                 syncstate.Row
		regNo, category, reference, comment sql.NullString
		dept, credit                        decimal.NullDecimal
		invoiceDate                         sql.NullTime
		prepayment                          sql.NullInt64
	)
	query := fmt.Sprintf(`SELECT %s, reg_no, fee_category, dept, credit, invoice_date,
		reference_number, comment, is_prepayment FROM tbl_imvoice WHERE id = ?`, r.Columns(""))
	err := r.DB().DB.QueryRowContext(ctx, r.DB().Rebind(query), id).Scan(append(row.Dest(),
		&regNo, &category, &dept, &credit, &invoiceDate, &reference, &comment, &prepayment)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice %s: %w", id, sync_feature.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load invoice %s: %w", id, err)
	}

	inv := &Invoice{
		ID:              row.ID,
		RegNo:           strings.TrimSpace(regNo.String),
		FeeCategoryID:   category.String,
		Dept:            dept.Decimal,
		Credit:          credit.Decimal,
		ReferenceNumber: strings.TrimSpace(reference.String),
		Comment:         strings.TrimSpace(comment.String),
		IsPrepayment:    prepayment.Int64 == 1,
	}
	if invoiceDate.Valid {
		d := invoiceDate.Time
		inv.InvoiceDate = &d
	}
	row.Label = regNo
	return r.Record(&row, inv), nil
}
