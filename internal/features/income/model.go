package income

// Category is a row of tbl_income_category.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CampusID    string `json:"camp_id"`
}
