package bank

// Bank is a row of tbl_bank.
type Bank struct {
	ID        string `json:"bank_id"`
	Code      string `json:"bank_code"`
	Name      string `json:"bank_name"`
	Branch    string `json:"bank_branch"`
	AccountNo string `json:"account_no"`
	Currency  string `json:"currency"`
}

// DisplayName is the ledger account name: "<name> - <branch>".
func (b *Bank) DisplayName() string {
	if b.Branch == "" {
		return b.Name
	}
	return b.Name + " - " + b.Branch
}
