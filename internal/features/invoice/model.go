package invoice

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice is a row of tbl_imvoice.
type Invoice struct {
	ID              string
	RegNo           string
	FeeCategoryID   string
	Dept            decimal.Decimal
	Credit          decimal.Decimal
	InvoiceDate     *time.Time
	ReferenceNumber string
	Comment         string
	IsPrepayment    bool
}

// Amount is dept minus credit, or the full dept when nothing is left over.
func (i *Invoice) Amount() decimal.Decimal {
	amount := i.Dept.Sub(i.Credit)
	if amount.LessThanOrEqual(decimal.Zero) {
		amount = i.Dept
	}
	return amount.Round(2)
}
