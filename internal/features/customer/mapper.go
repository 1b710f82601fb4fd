package customer

import (
	"context"
	"strings"

	"ledger-sync/internal/config"
	"ledger-sync/internal/features/mis"
	sync_feature "ledger-sync/internal/features/sync"

	"github.com/asaskevich/govalidator"
	"go.uber.org/zap"
)

// Custom field definitions configured on the ledger company.
const (
	fieldPersonType = "1000000001"
	fieldRegNo      = "1000000002"
	fieldSex        = "1000000003"
	fieldCampus     = "1000000005"
	fieldNationalID = "1000000008"
)

type CustomerMapper struct {
	dir      *mis.Directory
	typeRefs map[string]string
	log      *zap.Logger
}

func NewCustomerMapper(cfg *config.Config, dir *mis.Directory, log *zap.Logger) *CustomerMapper {
	return &CustomerMapper{
		dir: dir,
		typeRefs: map[string]string{
			TypeStudent:   cfg.CustomerStudentTypeID,
			TypeApplicant: cfg.CustomerApplicantTypeID,
		},
		log: log.Named("customer_mapper"),
	}
}

// Map builds a Customer payload keyed by the registration number. Empty
// optional fields are left out, and an invalid email is dropped rather
// than rejected by the ledger.
func (m *CustomerMapper) Map(ctx context.Context, p *Person) (map[string]any, error) {
	if p.RegNo == "" {
		return nil, sync_feature.NewMappingError("display_name", "%s %s has no registration number", strings.ToLower(p.Type), p.ID)
	}
	fullName := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if fullName == "" {
		return nil, sync_feature.NewMappingError("name", "%s %s has no name", strings.ToLower(p.Type), p.RegNo)
	}

	campus, _, err := m.dir.CampusLocation(ctx, p.RegNo)
	if err != nil {
		return nil, err
	}
	campusName := ""
	if campus != "" {
		if campusName, err = m.dir.CampusName(ctx, campus); err != nil {
			return nil, err
		}
	}

	payload := map[string]any{
		"DisplayName": p.RegNo,
		"CompanyName": fullName,
		"Notes":       p.Type + " synchronized from MIS - " + p.RegNo,
	}
	setIf(payload, "GivenName", p.FirstName)
	setIf(payload, "MiddleName", p.MiddleName)
	setIf(payload, "FamilyName", p.LastName)
	if p.Phone != "" {
		payload["PrimaryPhone"] = map[string]any{"FreeFormNumber": p.Phone}
	}
	if p.Email != "" {
		if govalidator.IsEmail(p.Email) {
			payload["PrimaryEmailAddr"] = map[string]any{"Address": p.Email}
		} else {
			m.log.Debug("Dropping invalid email", zap.String("reg_no", p.RegNo))
		}
	}
	if ref := m.typeRefs[p.Type]; ref != "" {
		payload["CustomerTypeRef"] = map[string]any{"value": ref, "name": strings.ToLower(p.Type)}
	}

	var fields []map[string]any
	for _, f := range [][2]string{
		{fieldPersonType, p.Type},
		{fieldRegNo, p.RegNo},
		{fieldSex, p.Sex},
		{fieldCampus, campusName},
		{fieldNationalID, p.NationalID},
	} {
		if f[1] != "" {
			fields = append(fields, map[string]any{"DefinitionId": f[0], "StringValue": f[1]})
		}
	}
	payload["CustomField"] = fields
	return payload, nil
}

func setIf(payload map[string]any, key, value string) {
	if value != "" {
		payload[key] = value
	}
}
