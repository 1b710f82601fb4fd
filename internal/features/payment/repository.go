package payment

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

var paymentTable = syncstate.Table{
	Name:             "payment",
	IDColumn:         "id",
	StatusColumn:     "QuickBk_Status",
	ExternalIDColumn: "qk_id",
	PushedByColumn:   "pushed_by",
	PushedDateColumn: "pushed_date",
	LabelExpr:        "trans_code",
}

type PaymentRepository struct {
	*syncstate.Store
}

func NewPaymentRepository(db *database.MisDB, log *zap.Logger) *PaymentRepository {
	return &PaymentRepository{Store: syncstate.NewStore(db, paymentTable, log)}
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (*sync_feature.Record, error) {
	var (
		row                                      syncstate.Row
		transCode, regNo, date, invoiceRef       sql.NullString
		bankID, joinedBankID, bankName, bankQkID sql.NullString
		amount                                   decimal.NullDecimal
	)
	query := fmt.Sprintf(`SELECT %s, p.trans_code, p.reg_no, p.amount, p.date, p.invoi_ref,
		p.bank_id, b.bank_id, b.bank_name, b.qk_id
		FROM payment p LEFT JOIN tbl_bank b ON b.bank_id = p.bank_id
		WHERE p.id = ?`, r.Columns("p"))
	err := r.DB().DB.QueryRowContext(ctx, r.DB().Rebind(query), id).Scan(append(row.Dest(),
		&transCode, &regNo, &amount, &date, &invoiceRef,
		&bankID, &joinedBankID, &bankName, &bankQkID)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment %s: %w", id, sync_feature.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load payment %s: %w", id, err)
	}

	p := &Payment{
		ID:             row.ID,
		TransCode:      strings.TrimSpace(transCode.String),
		RegNo:          strings.TrimSpace(regNo.String),
		Amount:         amount.Decimal,
		Date:           strings.TrimSpace(date.String),
		InvoiceRef:     strings.TrimSpace(invoiceRef.String),
		BankID:         bankID.String,
		BankName:       strings.TrimSpace(bankName.String),
		BankExternalID: strings.TrimSpace(bankQkID.String),
		BankFound:      joinedBankID.Valid,
	}
	row.Label = transCode
	return r.Record(&row, p), nil
}
