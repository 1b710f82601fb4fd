package customer

import (
	"context"
	"fmt"

	"ledger-sync/internal/features/ledger"
	sync_feature "ledger-sync/internal/features/sync"
)

// StudentKind syncs tbl_personal_ug rows as ledger customers.
type StudentKind struct {
	*StudentRepository
	mapper *CustomerMapper
}

func NewStudentKind(repo *StudentRepository, mapper *CustomerMapper) sync_feature.Kind {
	return &StudentKind{StudentRepository: repo, mapper: mapper}
}

func (k *StudentKind) Name() string       { return "student" }
func (k *StudentKind) ObjectType() string { return "Customer" }

func (k *StudentKind) Fetch(ctx context.Context, id string) (*sync_feature.Record, error) {
	return k.Get(ctx, id)
}

func (k *StudentKind) MapPayload(ctx context.Context, client ledger.Client, rec *sync_feature.Record) (map[string]any, error) {
	return mapPerson(ctx, k.mapper, rec)
}

// ApplicantKind syncs tbl_online_application rows as ledger customers.
type ApplicantKind struct {
	*ApplicantRepository
	mapper *CustomerMapper
}

func NewApplicantKind(repo *ApplicantRepository, mapper *CustomerMapper) sync_feature.Kind {
	return &ApplicantKind{ApplicantRepository: repo, mapper: mapper}
}

func (k *ApplicantKind) Name() string       { return "applicant" }
func (k *ApplicantKind) ObjectType() string { return "Customer" }

func (k *ApplicantKind) Fetch(ctx context.Context, id string) (*sync_feature.Record, error) {
	return k.Get(ctx, id)
}

func (k *ApplicantKind) MapPayload(ctx context.Context, client ledger.Client, rec *sync_feature.Record) (map[string]any, error) {
	return mapPerson(ctx, k.mapper, rec)
}

func mapPerson(ctx context.Context, mapper *CustomerMapper, rec *sync_feature.Record) (map[string]any, error) {
	p, ok := rec.Source.(*Person)
	if !ok {
		return nil, fmt.Errorf("customer record %s carries %T", rec.ID, rec.Source)
	}
	return mapper.Map(ctx, p)
}
