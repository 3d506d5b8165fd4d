// Package settlement computes who pays whom to settle a group's shared expenses.
//
// All arithmetic happens in integer minor units (yen, cents, ...) per currency, so the
// transfers for a currency always add up exactly to the amounts that were paid.
// Currencies are never netted against each other.
package settlement

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type Member struct {
	ID   string
	Name string
}

type Expense struct {
	ID           string
	Title        string
	Amount       decimal.Decimal
	Currency     string
	PayerID      string
	Participants []string
	CreatedAt    time.Time
}

// Line means From pays To Amount in Currency.
type Line struct {
	From     string
	To       string
	Amount   decimal.Decimal
	Currency string
}

// Balance is a member's net position in one currency.
// Positive is owed money, negative owes money.
type Balance struct {
	MemberID string
	Amount   decimal.Decimal
	Currency string
}

// Compute runs Currencies.Compute with the default precision table.
func Compute(members []Member, expenses []Expense) map[string][]Line {
	return DefaultCurrencies().Compute(members, expenses)
}

// Compute returns the transfers needed to settle expenses, keyed by currency.
//
// With no members or no expenses the result has no keys. A currency that had expenses
// but needs no transfer maps to an empty slice.
func (c Currencies) Compute(members []Member, expenses []Expense) map[string][]Line {
	out := make(map[string][]Line)
	for cur, l := range c.ledgers(members, expenses) {
		out[cur] = c.match(cur, l)
	}
	return out
}

// Balances returns every member's net position per currency, in member order.
func (c Currencies) Balances(members []Member, expenses []Expense) map[string][]Balance {
	out := make(map[string][]Balance)
	for cur, l := range c.ledgers(members, expenses) {
		rows := make([]Balance, 0, len(l.order))
		for _, id := range l.order {
			rows = append(rows, Balance{MemberID: id, Amount: c.FromMinor(l.balance[id], cur), Currency: cur})
		}
		out[cur] = rows
	}
	return out
}

// Split divides total minor units across n shares. The first total%n shares
// carry one extra unit so the shares always sum to total.
func Split(total int64, n int) []int64 {
	if n <= 0 {
		return nil
	}
	base := total / int64(n)
	rem := total % int64(n)
	shares := make([]int64, n)
	for i := range shares {
		shares[i] = base
		if int64(i) < rem {
			shares[i]++
		}
	}
	return shares
}

type ledger struct {
	order   []string
	balance map[string]int64
}

func newLedger(members []Member) *ledger {
	l := &ledger{balance: make(map[string]int64, len(members))}
	for _, m := range members {
		l.add(m.ID, 0)
	}
	return l
}

func (l *ledger) add(id string, delta int64) {
	if _, ok := l.balance[id]; !ok {
		l.order = append(l.order, id)
	}
	l.balance[id] += delta
}

func (l *ledger) apply(amount int64, payerID string, participants []string) {
	ids := uniqueIDs(participants)
	if amount <= 0 || payerID == "" || len(ids) == 0 {
		return
	}
	shares := Split(amount, len(ids))
	if !l.fits(payerID, amount, ids, shares) {
		return
	}
	l.add(payerID, amount)
	for i, share := range shares {
		l.add(ids[i], -share)
	}
}

// fits reports whether applying the expense keeps every balance inside int64.
// The payer may also be a participant, so its net change is checked as one delta.
func (l *ledger) fits(payerID string, amount int64, ids []string, shares []int64) bool {
	delta := map[string]int64{payerID: amount}
	for i, id := range ids {
		delta[id] -= shares[i]
	}
	for id, d := range delta {
		b := l.balance[id]
		if d > 0 && b > math.MaxInt64-d {
			return false
		}
		if d < 0 && b <= math.MinInt64-d {
			return false
		}
	}
	return true
}

func (c Currencies) ledgers(members []Member, expenses []Expense) map[string]*ledger {
	ledgers := make(map[string]*ledger)
	if len(members) == 0 || len(expenses) == 0 {
		return ledgers
	}
	for _, ex := range expenses {
		cur := NormalizeCode(ex.Currency)
		l, ok := ledgers[cur]
		if !ok {
			l = newLedger(members)
			ledgers[cur] = l
		}
		l.apply(c.ToMinor(ex.Amount, cur), ex.PayerID, ex.Participants)
	}
	return ledgers
}

type position struct {
	id     string
	amount int64
}

func (c Currencies) match(cur string, l *ledger) []Line {
	var pos, neg []position
	for _, id := range l.order {
		v := l.balance[id]
		if v > 0 {
			pos = append(pos, position{id: id, amount: v})
		} else if v < 0 {
			neg = append(neg, position{id: id, amount: -v})
		}
	}
	lines := []Line{}
	if len(pos) == 0 || len(neg) == 0 {
		return lines
	}
	// Stable so equal amounts keep member order.
	sort.SliceStable(pos, func(i, j int) bool { return pos[i].amount > pos[j].amount })
	sort.SliceStable(neg, func(i, j int) bool { return neg[i].amount > neg[j].amount })

	i, j := 0, 0
	for i < len(pos) && j < len(neg) {
		amt := pos[i].amount
		if neg[j].amount < amt {
			amt = neg[j].amount
		}
		lines = append(lines, Line{
			From:     neg[j].id,
			To:       pos[i].id,
			Amount:   c.FromMinor(amt, cur),
			Currency: cur,
		})
		pos[i].amount -= amt
		neg[j].amount -= amt
		if pos[i].amount == 0 {
			i++
		}
		if neg[j].amount == 0 {
			j++
		}
	}
	return lines
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
