package customer

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"ledger-sync/internal/config"
	"ledger-sync/internal/database"
	"ledger-sync/internal/features/ledger/ledgertest"
	"ledger-sync/internal/features/mis"
	sync_feature "ledger-sync/internal/features/sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const fixture = `
CREATE TABLE tbl_personal_ug (
	per_id_ug INTEGER PRIMARY KEY, reg_no TEXT, fname TEXT, middlename TEXT, lname TEXT, sex TEXT,
	phone1 TEXT, email1 TEXT, national_id TEXT,
	qk_id TEXT, QuickBk_Status INTEGER, pushed_by TEXT, pushed_date DATETIME
);
CREATE TABLE tbl_online_application (
	appl_Id INTEGER PRIMARY KEY, tracking_id TEXT, first_name TEXT, middlename TEXT, family_name TEXT, sex TEXT,
	phone1 TEXT, email1 TEXT, nation_Id_passPort_no TEXT, camp_id INTEGER,
	quickbooks_id TEXT, QuickBk_Status INTEGER, pushed_by TEXT, pushed_date DATETIME
);
CREATE TABLE tbl_register_program_ug (reg_no TEXT, camp_id INTEGER);
CREATE TABLE tbl_campus (camp_id INTEGER PRIMARY KEY, camp_full_name TEXT, location_id TEXT);

INSERT INTO tbl_personal_ug (per_id_ug, reg_no, fname, middlename, lname, sex, phone1, email1, national_id, QuickBk_Status) VALUES
	(1, 'STU-1', 'Aline', NULL, 'Uwase', 'F', '0788000001', 'aline@example.org', '1199880000001', 0),
	(2, '', 'No', NULL, 'Number', 'M', NULL, NULL, NULL, NULL),
	(3, 'STU-3', 'Done', NULL, 'Already', 'M', NULL, NULL, NULL, 1),
	(4, 'STU-4', 'Broke', NULL, 'Before', 'M', NULL, NULL, NULL, 2);
INSERT INTO tbl_online_application (appl_Id, tracking_id, first_name, middlename, family_name, sex, phone1, email1, nation_Id_passPort_no, camp_id, QuickBk_Status) VALUES
	(7, 'APP-7', 'Eric', 'K', 'Mugisha', 'M', NULL, 'not-an-email', 'PC123', 2, NULL);
INSERT INTO tbl_register_program_ug VALUES ('STU-1', 1);
INSERT INTO tbl_campus VALUES (1, 'Kigali Campus', '3'), (2, 'Nyanza Campus', '4');
`

type harness struct {
	students   *StudentRepository
	applicants *ApplicantRepository
	mapper     *CustomerMapper
	dir        *mis.Directory
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	raw, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	raw.SetMaxOpenConns(1)
	t.Cleanup(func() { raw.Close() })
	_, err = raw.Exec(fixture)
	require.NoError(t, err)

	db := &database.MisDB{DB: raw, Driver: "sqlite3"}
	dir := mis.NewDirectory(db)
	cfg := &config.Config{CustomerStudentTypeID: "528694"}
	return &harness{
		students:   NewStudentRepository(db, zap.NewNop()),
		applicants: NewApplicantRepository(db, zap.NewNop()),
		mapper:     NewCustomerMapper(cfg, dir, zap.NewNop()),
		dir:        dir,
	}
}

func TestStudentPayload(t *testing.T) {
	h := newHarness(t)
	kind := NewStudentKind(h.students, h.mapper)
	ctx := context.Background()

	rec, err := kind.Fetch(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "STU-1", rec.Label)
	assert.Equal(t, sync_feature.StatusNotSynced, rec.Status)

	payload, err := kind.MapPayload(ctx, ledgertest.NewClient(), rec)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"DisplayName":      "STU-1",
		"GivenName":        "Aline",
		"FamilyName":       "Uwase",
		"CompanyName":      "Aline Uwase",
		"PrimaryPhone":     map[string]any{"FreeFormNumber": "0788000001"},
		"PrimaryEmailAddr": map[string]any{"Address": "aline@example.org"},
		"CustomerTypeRef":  map[string]any{"value": "528694", "name": "student"},
		"Notes":            "Student synchronized from MIS - STU-1",
		"CustomField": []map[string]any{
			{"DefinitionId": fieldPersonType, "StringValue": "Student"},
			{"DefinitionId": fieldRegNo, "StringValue": "STU-1"},
			{"DefinitionId": fieldSex, "StringValue": "F"},
			{"DefinitionId": fieldCampus, "StringValue": "Kigali Campus"},
			{"DefinitionId": fieldNationalID, "StringValue": "1199880000001"},
		},
	}, payload)
}

func TestApplicantPayloadDropsInvalidEmail(t *testing.T) {
	h := newHarness(t)
	kind := NewApplicantKind(h.applicants, h.mapper)
	ctx := context.Background()

	rec, err := kind.Fetch(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "APP-7", rec.Label)

	payload, err := kind.MapPayload(ctx, ledgertest.NewClient(), rec)
	require.NoError(t, err)
	assert.Equal(t, "APP-7", payload["DisplayName"])
	assert.Equal(t, "K", payload["MiddleName"])
	assert.NotContains(t, payload, "PrimaryEmailAddr")
	assert.NotContains(t, payload, "PrimaryPhone")
	assert.NotContains(t, payload, "CustomerTypeRef")
	assert.Contains(t, payload["CustomField"], map[string]any{"DefinitionId": fieldCampus, "StringValue": "Nyanza Campus"})
	assert.Equal(t, "Customer", kind.ObjectType())
}

func TestCustomerWithoutRegNoIsMappingError(t *testing.T) {
	h := newHarness(t)
	kind := NewStudentKind(h.students, h.mapper)

	rec, err := kind.Fetch(context.Background(), "2")
	require.NoError(t, err)
	_, err = kind.MapPayload(context.Background(), ledgertest.NewClient(), rec)

	var mapErr *sync_feature.MappingError
	require.True(t, errors.As(err, &mapErr))
	assert.Equal(t, "display_name", mapErr.Field)
}

func TestMissingCustomerIsNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := NewApplicantKind(h.applicants, h.mapper).Fetch(context.Background(), "99")
	assert.ErrorIs(t, err, sync_feature.ErrRecordNotFound)
}

func TestSyncedStudentResolvesAsInvoiceCustomer(t *testing.T) {
	h := newHarness(t)
	kind := NewStudentKind(h.students, h.mapper)
	ctx := context.Background()

	c, err := h.dir.Customer(ctx, "STU-1")
	require.NoError(t, err)
	assert.Empty(t, c.ID)

	rec, err := kind.Fetch(ctx, "1")
	require.NoError(t, err)
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	ok, err := kind.Claim(ctx, rec, "op", now, false)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, kind.MarkSynced(ctx, "1", "501", "op", now))

	c, err = h.dir.Customer(ctx, "STU-1")
	require.NoError(t, err)
	assert.Equal(t, mis.Customer{Type: mis.CustomerStudent, ID: "501"}, *c)
}

func TestUnsyncedStudentsSkipSyncedAndFailed(t *testing.T) {
	h := newHarness(t)
	kind := NewStudentKind(h.students, h.mapper)

	items, err := kind.ListUnsynced(context.Background(), 10, 0)
	require.NoError(t, err)
	var got []string
	for _, it := range items {
		got = append(got, it.ID)
	}
	assert.Equal(t, []string{"1", "2"}, got)

	counts, err := kind.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), counts.Total)
	assert.Equal(t, int64(1), counts.Synced)
	assert.Equal(t, int64(1), counts.Inconsistent)
	assert.Equal(t, int64(1), counts.Failed)
	assert.Equal(t, int64(2), counts.NotSynced)
}
