package customer

const (
	TypeStudent   = "Student"
	TypeApplicant = "Applicant"
)

// Person is a student or applicant as pushed to the ledger. RegNo is the
// registration number for students and the tracking id for applicants.
type Person struct {
	ID         string
	Type       string
	RegNo      string
	FirstName  string
	MiddleName string
	LastName   string
	Sex        string
	Phone      string
	Email      string
	NationalID string
}
