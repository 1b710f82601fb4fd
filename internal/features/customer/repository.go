package customer

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

var studentTable = syncstate.Table{
	Name:             "tbl_personal_ug",
	IDColumn:         "per_id_ug",
	StatusColumn:     "QuickBk_Status",
	ExternalIDColumn: "qk_id",
	PushedByColumn:   "pushed_by",
	PushedDateColumn: "pushed_date",
	LabelExpr:        "reg_no",
}

var applicantTable = syncstate.Table{
	Name:             "tbl_online_application",
	IDColumn:         "appl_Id",
	StatusColumn:     "QuickBk_Status",
	ExternalIDColumn: "quickbooks_id",
	PushedByColumn:   "pushed_by",
	PushedDateColumn: "pushed_date",
	LabelExpr:        "tracking_id",
}

type StudentRepository struct {
	*syncstate.Store
}

func NewStudentRepository(db *database.MisDB, log *zap.Logger) *StudentRepository {
	return &StudentRepository{Store: syncstate.NewStore(db, studentTable, log)}
}

func (r *StudentRepository) Get(ctx context.Context, id string) (*sync_feature.Record, error) {
	query := fmt.Sprintf(`SELECT %s, reg_no, fname, middlename, lname, sex, phone1, email1, national_id
		FROM tbl_personal_ug WHERE per_id_ug = ?`, r.Columns(""))
	return getPerson(ctx, r.Store, query, id, TypeStudent)
}

type ApplicantRepository struct {
	*syncstate.Store
}

func NewApplicantRepository(db *database.MisDB, log *zap.Logger) *ApplicantRepository {
	return &ApplicantRepository{Store: syncstate.NewStore(db, applicantTable, log)}
}

func (r *ApplicantRepository) Get(ctx context.Context, id string) (*sync_feature.Record, error) {
	query := fmt.Sprintf(`SELECT %s, tracking_id, first_name, middlename, family_name, sex, phone1, email1,
		nation_Id_passPort_no FROM tbl_online_application WHERE appl_Id = ?`, r.Columns(""))
	return getPerson(ctx, r.Store, query, id, TypeApplicant)
}

func getPerson(ctx context.Context, store *syncstate.Store, query, id, personType string) (*sync_feature.Record, error) {
	var (
		row                             syncstate.Row
		regNo, first, middle, last, sex sql.NullString
		phone, email, nationalID        sql.NullString
	)
	err := store.DB().DB.QueryRowContext(ctx, store.DB().Rebind(query), id).Scan(append(row.Dest(),
		&regNo, &first, &middle, &last, &sex, &phone, &email, &nationalID)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", strings.ToLower(personType), id, sync_feature.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", strings.ToLower(personType), id, err)
	}

	p := &Person{
		ID:         row.ID,
		Type:       personType,
		RegNo:      strings.TrimSpace(regNo.String),
		FirstName:  strings.TrimSpace(first.String),
		MiddleName: strings.TrimSpace(middle.String),
		LastName:   strings.TrimSpace(last.String),
		Sex:        strings.TrimSpace(sex.String),
		Phone:      strings.TrimSpace(phone.String),
		Email:      strings.TrimSpace(email.String),
		NationalID: strings.TrimSpace(nationalID.String),
	}
	row.Label = regNo
	return store.Record(&row, p), nil
}
