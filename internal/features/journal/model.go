package journal

import "github.com/shopspring/decimal"

// Contribution is one debit and/or credit amount against a ledger account.
type Contribution struct {
	Account string          `json:"account"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
}

// LineRefs are optional dimensions attached to every line of an account.
type LineRefs struct {
	VendorID     string `json:"vendor_id,omitempty"`
	DepartmentID string `json:"department_id,omitempty"`
	ClassID      string `json:"class_id,omitempty"`
}

// JournalLine carries one side of one account; the other amount is zero.
type JournalLine struct {
	Account string          `json:"account"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
	LineRefs
}

func (l JournalLine) IsDebit() bool {
	return l.Debit.IsPositive()
}

func (l JournalLine) Amount() decimal.Decimal {
	if l.IsDebit() {
		return l.Debit
	}
	return l.Credit
}

type EntryRequest struct {
	Contributions    []Contribution      `json:"contributions"`
	BalancingAccount string              `json:"balancing_account"`
	Places           *int32              `json:"places"`
	TxnDate          string              `json:"txn_date"`
	Memo             string              `json:"memo"`
	Refs             map[string]LineRefs `json:"refs"`
}

type Totals struct {
	Debit      decimal.Decimal `json:"debit"`
	Credit     decimal.Decimal `json:"credit"`
	Adjustment decimal.Decimal `json:"adjustment"`
}

type Preview struct {
	Lines   []JournalLine  `json:"lines"`
	Totals  Totals         `json:"totals"`
	Payload map[string]any `json:"payload"`
}

type PostResult struct {
	ExternalID string        `json:"external_id"`
	Lines      []JournalLine `json:"lines"`
	Totals     Totals        `json:"totals"`
}
