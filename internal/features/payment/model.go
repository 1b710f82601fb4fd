package payment

import "github.com/shopspring/decimal"

// Payment is a row of the payment table joined with its bank.
type Payment struct {
	ID         string
	TransCode  string
	RegNo      string
	Amount     decimal.Decimal
	Date       string
	InvoiceRef string

	BankID         string
	BankName       string
	BankExternalID string
	BankFound      bool
}
