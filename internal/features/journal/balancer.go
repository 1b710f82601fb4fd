package journal

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

const (
	DefaultPlaces        int32 = 2
	DefaultMaxIterations       = 3
)

var (
	ErrNoContributions = errors.New("no contributions to balance")
	ErrUnbalanced      = errors.New("journal does not balance")
)

type Options struct {
	// Places is the rounding precision; amounts round half away from zero.
	Places int32
	// BalancingAccount absorbs any difference between debits and credits.
	// Without one an unbalanced journal is an error.
	BalancingAccount string
	MaxIterations    int
	Refs             map[string]LineRefs
}

func DefaultOptions() Options {
	return Options{Places: DefaultPlaces, MaxIterations: DefaultMaxIterations}
}

type sides struct {
	debit, credit decimal.Decimal
}

// Balance folds contributions into per-account totals and emits one line per
// nonzero account side, with debits equal to credits at opts.Places.
func Balance(contributions []Contribution, opts Options) ([]JournalLine, Totals, error) {
	if len(contributions) == 0 {
		return nil, Totals{}, ErrNoContributions
	}
	if opts.Places < 0 {
		return nil, Totals{}, fmt.Errorf("places must not be negative, got %d", opts.Places)
	}
	if opts.MaxIterations < 1 {
		opts.MaxIterations = DefaultMaxIterations
	}

	raw := map[string]sides{}
	for i, c := range contributions {
		if c.Account == "" {
			return nil, Totals{}, fmt.Errorf("contribution %d has no account", i)
		}
		s := raw[c.Account]
		s.debit = s.debit.Add(c.Debit)
		s.credit = s.credit.Add(c.Credit)
		raw[c.Account] = s
	}

	totals := map[string]sides{}
	for account, s := range raw {
		s = normalize(s, opts.Places)
		if s.debit.IsZero() && s.credit.IsZero() {
			continue
		}
		totals[account] = s
	}
	if len(totals) == 0 {
		return nil, Totals{}, fmt.Errorf("%w: every account rounds to zero", ErrNoContributions)
	}

	adjustment := decimal.Zero
	for i := 0; ; i++ {
		debit, credit := sum(totals)
		diff := debit.Sub(credit)
		if diff.IsZero() {
			break
		}
		if opts.BalancingAccount == "" {
			return nil, Totals{}, fmt.Errorf("%w: debits %s, credits %s", ErrUnbalanced, debit.StringFixed(opts.Places), credit.StringFixed(opts.Places))
		}
		if i >= opts.MaxIterations {
			return nil, Totals{}, fmt.Errorf("%w after %d adjustments: off by %s", ErrUnbalanced, i, diff.StringFixed(opts.Places))
		}

		b := totals[opts.BalancingAccount]
		if diff.IsPositive() {
			b.credit = b.credit.Add(diff)
		} else {
			b.debit = b.debit.Add(diff.Neg())
		}
		b = normalize(b, opts.Places)
		if b.debit.IsZero() && b.credit.IsZero() {
			delete(totals, opts.BalancingAccount)
		} else {
			totals[opts.BalancingAccount] = b
		}
		adjustment = adjustment.Add(diff)
	}

	accounts := make([]string, 0, len(totals))
	for account := range totals {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)

	lines := make([]JournalLine, 0, len(accounts))
	for _, account := range accounts {
		s := totals[account]
		refs := opts.Refs[account]
		if s.debit.IsPositive() {
			lines = append(lines, JournalLine{Account: account, Debit: s.debit, Credit: decimal.Zero, LineRefs: refs})
		}
		if s.credit.IsPositive() {
			lines = append(lines, JournalLine{Account: account, Debit: decimal.Zero, Credit: s.credit, LineRefs: refs})
		}
	}

	debit, credit := sum(totals)
	return lines, Totals{Debit: debit, Credit: credit, Adjustment: adjustment}, nil
}

// normalize rounds both sides and moves negative amounts to the other side.
func normalize(s sides, places int32) sides {
	s.debit = s.debit.Round(places)
	s.credit = s.credit.Round(places)
	if s.debit.IsNegative() {
		s.credit = s.credit.Add(s.debit.Neg())
		s.debit = decimal.Zero
	}
	if s.credit.IsNegative() {
		s.debit = s.debit.Add(s.credit.Neg())
		s.credit = decimal.Zero
	}
	return s
}

func sum(totals map[string]sides) (debit, credit decimal.Decimal) {
	for _, s := range totals {
		debit = debit.Add(s.debit)
		credit = credit.Add(s.credit)
	}
	return debit, credit
}

// BuildJournalEntry renders balanced lines as a ledger JournalEntry payload.
func BuildJournalEntry(lines []JournalLine, txnDate, memo string) map[string]any {
	out := make([]map[string]any, 0, len(lines))
	for _, l := range lines {
		posting := "Credit"
		if l.IsDebit() {
			posting = "Debit"
		}
		detail := map[string]any{
			"PostingType": posting,
			"AccountRef":  map[string]any{"value": l.Account},
		}
		if l.VendorID != "" {
			detail["Entity"] = map[string]any{
				"Type":      "Vendor",
				"EntityRef": map[string]any{"value": l.VendorID},
			}
		}
		if l.DepartmentID != "" {
			detail["DepartmentRef"] = map[string]any{"value": l.DepartmentID}
		}
		if l.ClassID != "" {
			detail["ClassRef"] = map[string]any{"value": l.ClassID}
		}
		line := map[string]any{
			"DetailType":             "JournalEntryLineDetail",
			"Amount":                 l.Amount().InexactFloat64(),
			"JournalEntryLineDetail": detail,
		}
		if memo != "" {
			line["Description"] = memo
		}
		out = append(out, line)
	}

	entry := map[string]any{"Line": out}
	if txnDate != "" {
		entry["TxnDate"] = txnDate
	}
	if memo != "" {
		entry["PrivateNote"] = memo
	}
	return entry
}
