package mis

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ledger-sync/internal/database"
)

const (
	CustomerStudent   = "student"
	CustomerApplicant = "applicant"
)

// Customer is the ledger customer a registration number resolves to.
// ID is empty when the person exists in the MIS but was never pushed.
type Customer struct {
	Type string
	ID   string
}

// Category is an income category row as the mappers see it.
type Category struct {
	ID     string
	Name   string
	ItemID string
}

// Directory answers the cross-table questions mappers ask about MIS data.
type Directory struct {
	db *database.MisDB
}

func NewDirectory(db *database.MisDB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) queryString(ctx context.Context, query string, args ...any) (string, bool, error) {
	var v sql.NullString
	err := d.db.DB.QueryRowContext(ctx, d.db.Rebind(query), args...).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return strings.TrimSpace(v.String), true, nil
}

// Customer resolves a student first, then an applicant. It returns nil when
// the registration number matches neither.
func (d *Directory) Customer(ctx context.Context, regNo string) (*Customer, error) {
	id, found, err := d.queryString(ctx, "SELECT qk_id FROM tbl_personal_ug WHERE reg_no = ?", regNo)
	if err != nil {
		return nil, fmt.Errorf("lookup student %s: %w", regNo, err)
	}
	if found {
		return &Customer{Type: CustomerStudent, ID: id}, nil
	}

	id, found, err = d.queryString(ctx, "SELECT quickbooks_id FROM tbl_online_application WHERE tracking_id = ?", regNo)
	if err != nil {
		return nil, fmt.Errorf("lookup applicant %s: %w", regNo, err)
	}
	if found {
		return &Customer{Type: CustomerApplicant, ID: id}, nil
	}
	return nil, nil
}

// CampusLocation returns the campus of a student (or applicant) and the
// ledger location configured for it. Either may be empty.
func (d *Directory) CampusLocation(ctx context.Context, regNo string) (campus, location string, err error) {
	campus, _, err = d.queryString(ctx, "SELECT camp_id FROM tbl_register_program_ug WHERE reg_no = ?", regNo)
	if err != nil {
		return "", "", fmt.Errorf("lookup campus for %s: %w", regNo, err)
	}
	if campus == "" {
		campus, _, err = d.queryString(ctx, "SELECT camp_id FROM tbl_online_application WHERE tracking_id = ?", regNo)
		if err != nil {
			return "", "", fmt.Errorf("lookup applicant campus for %s: %w", regNo, err)
		}
	}
	if campus == "" {
		return "", "", nil
	}

	location, _, err = d.queryString(ctx, "SELECT location_id FROM tbl_campus WHERE camp_id = ?", campus)
	if err != nil {
		return campus, "", fmt.Errorf("lookup location for campus %s: %w", campus, err)
	}
	return campus, location, nil
}

// CampusName returns the full name of a campus, empty when unknown.
func (d *Directory) CampusName(ctx context.Context, campusID string) (string, error) {
	name, _, err := d.queryString(ctx, "SELECT camp_full_name FROM tbl_campus WHERE camp_id = ?", campusID)
	if err != nil {
		return "", fmt.Errorf("lookup campus %s: %w", campusID, err)
	}
	return name, nil
}

// Category loads an income category by id; nil when it does not exist.
func (d *Directory) Category(ctx context.Context, id string) (*Category, error) {
	var (
		c      Category
		name   sql.NullString
		itemID sql.NullString
	)
	err := d.db.DB.QueryRowContext(ctx,
		d.db.Rebind("SELECT id, name, QuickBk_ctgId FROM tbl_income_category WHERE id = ?"), id,
	).Scan(&c.ID, &name, &itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup income category %s: %w", id, err)
	}
	c.Name = strings.TrimSpace(name.String)
	c.ItemID = strings.TrimSpace(itemID.String)
	return &c, nil
}

// InvoiceExternalID returns the ledger id of the invoice carrying reference.
func (d *Directory) InvoiceExternalID(ctx context.Context, reference string) (string, error) {
	id, _, err := d.queryString(ctx,
		"SELECT quickbooks_id FROM tbl_imvoice WHERE reference_number = ? AND quickbooks_id IS NOT NULL ORDER BY id LIMIT 1", reference)
	if err != nil {
		return "", fmt.Errorf("lookup invoice %s: %w", reference, err)
	}
	return id, nil
}

// Prepayment describes wallet money already paid against an invoice.
type Prepayment struct {
	Amount     string
	CategoryID string
}

// WalletPrepayment finds the payment recorded for reference and the fee
// category of the wallet it was drawn from. nil when there is no payment.
func (d *Directory) WalletPrepayment(ctx context.Context, reference string) (*Prepayment, error) {
	var (
		amount    sql.NullString
		walletRef sql.NullString
	)
	err := d.db.DB.QueryRowContext(ctx,
		d.db.Rebind("SELECT amount, student_wallet_ref FROM payment WHERE invoi_ref = ? ORDER BY id LIMIT 1"), reference,
	).Scan(&amount, &walletRef)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup prepayment %s: %w", reference, err)
	}

	p := &Prepayment{Amount: strings.TrimSpace(amount.String)}
	if walletRef.String == "" {
		return p, nil
	}
	p.CategoryID, _, err = d.queryString(ctx,
		"SELECT fee_category FROM tbl_student_wallet WHERE reference_number = ?", walletRef.String)
	if err != nil {
		return nil, fmt.Errorf("lookup wallet %s: %w", walletRef.String, err)
	}
	return p, nil
}
