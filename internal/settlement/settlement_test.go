package settlement

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func members(ids ...string) []Member {
	out := make([]Member, 0, len(ids))
	for _, id := range ids {
		out = append(out, Member{ID: id, Name: id})
	}
	return out
}

type wantLine struct {
	from, to, amount string
}

func assertLines(t *testing.T, got []Line, want []wantLine) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d lines %+v, want %d", len(got), got, len(want))
	}
	for i, w := range want {
		g := got[i]
		if g.From != w.from || g.To != w.to || !g.Amount.Equal(dec(w.amount)) {
			t.Errorf("line %d = %s->%s %s, want %s->%s %s", i, g.From, g.To, g.Amount, w.from, w.to, w.amount)
		}
	}
}

func TestComputeEmptyInput(t *testing.T) {
	ex := []Expense{{Amount: dec("100"), Currency: "JPY", PayerID: "a", Participants: []string{"a", "b"}}}
	if got := Compute(nil, ex); len(got) != 0 {
		t.Errorf("no members: got %v, want empty map", got)
	}
	if got := Compute(members("a", "b"), nil); len(got) != 0 {
		t.Errorf("no expenses: got %v, want empty map", got)
	}
}

func TestComputeRoundingRemainder(t *testing.T) {
	got := Compute(members("A", "B", "C"), []Expense{
		{Amount: dec("100"), Currency: "JPY", PayerID: "A", Participants: []string{"A", "B", "C"}},
	})
	assertLines(t, got["JPY"], []wantLine{{"B", "A", "33"}, {"C", "A", "33"}})

	bal := DefaultCurrencies().Balances(members("A", "B", "C"), []Expense{
		{Amount: dec("100"), Currency: "JPY", PayerID: "A", Participants: []string{"A", "B", "C"}},
	})
	want := map[string]string{"A": "66", "B": "-33", "C": "-33"}
	for _, b := range bal["JPY"] {
		if !b.Amount.Equal(dec(want[b.MemberID])) {
			t.Errorf("balance %s = %s, want %s", b.MemberID, b.Amount, want[b.MemberID])
		}
	}
}

func TestComputeMultiCurrencyIndependence(t *testing.T) {
	got := Compute(members("A", "B"), []Expense{
		{Amount: dec("1000"), Currency: "JPY", PayerID: "A", Participants: []string{"A", "B"}},
		{Amount: dec("10.00"), Currency: "USD", PayerID: "B", Participants: []string{"A", "B"}},
	})
	if len(got) != 2 {
		t.Fatalf("got currencies %v, want JPY and USD", got)
	}
	assertLines(t, got["JPY"], []wantLine{{"B", "A", "500"}})
	assertLines(t, got["USD"], []wantLine{{"A", "B", "5.00"}})
	if s := DefaultCurrencies().Format(got["USD"][0].Amount, "USD"); s != "5.00 USD" {
		t.Errorf("Format = %q, want 5.00 USD", s)
	}
}

func TestComputeSelfOnlyExpense(t *testing.T) {
	got := Compute(members("A", "B"), []Expense{
		{Amount: dec("5000"), Currency: "JPY", PayerID: "A", Participants: []string{"A"}},
	})
	lines, ok := got["JPY"]
	if !ok {
		t.Fatal("JPY key missing, want present with no lines")
	}
	if lines == nil || len(lines) != 0 {
		t.Errorf("got %v, want empty non-nil slice", lines)
	}
}

func TestComputeZeroSum(t *testing.T) {
	got := Compute(members("A", "B"), []Expense{
		{Amount: dec("1200"), Currency: "JPY", PayerID: "A", Participants: []string{"A", "B"}},
		{Amount: dec("1200"), Currency: "JPY", PayerID: "B", Participants: []string{"A", "B"}},
	})
	if lines := got["JPY"]; lines == nil || len(lines) != 0 {
		t.Errorf("got %v, want empty line list", lines)
	}
}

func TestComputeDegenerateExpenses(t *testing.T) {
	tests := []struct {
		name string
		ex   Expense
	}{
		{"no participants", Expense{Amount: dec("100"), Currency: "JPY", PayerID: "A"}},
		{"zero amount", Expense{Amount: dec("0"), Currency: "JPY", PayerID: "A", Participants: []string{"B"}}},
		{"negative amount", Expense{Amount: dec("-100"), Currency: "JPY", PayerID: "A", Participants: []string{"B"}}},
		{"below minor unit", Expense{Amount: dec("0.4"), Currency: "JPY", PayerID: "A", Participants: []string{"B"}}},
		{"no payer", Expense{Amount: dec("100"), Currency: "JPY", Participants: []string{"B"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(members("A", "B"), []Expense{tt.ex})
			if lines := got["JPY"]; len(lines) != 0 {
				t.Errorf("got %v, want no lines", lines)
			}
		})
	}
}

func TestComputeUnknownCurrencyDefaultsToTwoDecimals(t *testing.T) {
	got := Compute(members("A", "B", "C"), []Expense{
		{Amount: dec("1.00"), Currency: "zzz", PayerID: "A", Participants: []string{"A", "B", "C"}},
	})
	// 100 minor units: shares 34, 33, 33.
	assertLines(t, got["ZZZ"], []wantLine{{"B", "A", "0.33"}, {"C", "A", "0.33"}})
}

func TestComputeRoundsAmountToMinorUnit(t *testing.T) {
	got := Compute(members("A", "B"), []Expense{
		{Amount: dec("100.5"), Currency: "JPY", PayerID: "A", Participants: []string{"B"}},
	})
	assertLines(t, got["JPY"], []wantLine{{"B", "A", "101"}})
}

func TestComputeSkipsAmountsBeyondMaxMinor(t *testing.T) {
	got := Compute(members("A", "B"), []Expense{
		{Amount: dec("100000000000000000000"), Currency: "JPY", PayerID: "A", Participants: []string{"B"}},
		{Amount: dec("300"), Currency: "JPY", PayerID: "A", Participants: []string{"B"}},
	})
	assertLines(t, got["JPY"], []wantLine{{"B", "A", "300"}})
}

func TestComputeSkipsExpensesThatWouldOverflow(t *testing.T) {
	// 9223 expenses at MaxMinor still fit in int64; the 9224th does not.
	var exs []Expense
	for i := 0; i < 9300; i++ {
		exs = append(exs, Expense{Amount: decimal.NewFromInt(MaxMinor), Currency: "JPY", PayerID: "A", Participants: []string{"B"}})
	}
	got := Compute(members("A", "B"), exs)
	lines := got["JPY"]
	if len(lines) != 1 {
		t.Fatalf("lines = %+v", lines)
	}
	want := decimal.NewFromInt(9223 * MaxMinor)
	if lines[0].From != "B" || lines[0].To != "A" || !lines[0].Amount.Equal(want) {
		t.Errorf("line = %+v, want B -> A %s", lines[0], want)
	}
}

func TestComputeDuplicateParticipants(t *testing.T) {
	got := Compute(members("A", "B"), []Expense{
		{Amount: dec("100"), Currency: "JPY", PayerID: "A", Participants: []string{"B", "B", "A", ""}},
	})
	assertLines(t, got["JPY"], []wantLine{{"B", "A", "50"}})
}

func TestComputeGreedyOrder(t *testing.T) {
	// Balances: A +300, B +100, C -50, D -350.
	got := Compute(members("A", "B", "C", "D"), []Expense{
		{Amount: dec("400"), Currency: "JPY", PayerID: "A", Participants: []string{"D"}},
		{Amount: dec("100"), Currency: "JPY", PayerID: "B", Participants: []string{"A"}},
		{Amount: dec("50"), Currency: "JPY", PayerID: "B", Participants: []string{"C"}},
		{Amount: dec("50"), Currency: "JPY", PayerID: "D", Participants: []string{"B"}},
	})
	assertLines(t, got["JPY"], []wantLine{{"D", "A", "300"}, {"D", "B", "50"}, {"C", "B", "50"}})
}

func TestComputeUnknownMemberIDsAreSettled(t *testing.T) {
	got := Compute(members("A"), []Expense{
		{Amount: dec("100"), Currency: "JPY", PayerID: "A", Participants: []string{"X"}},
	})
	assertLines(t, got["JPY"], []wantLine{{"X", "A", "100"}})
}

func TestSplit(t *testing.T) {
	tests := []struct {
		total int64
		n     int
		want  []int64
	}{
		{100, 3, []int64{34, 33, 33}},
		{101, 3, []int64{34, 34, 33}},
		{99, 3, []int64{33, 33, 33}},
		{1, 4, []int64{1, 0, 0, 0}},
		{5, 1, []int64{5}},
		{5, 0, nil},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.total, tt.n), func(t *testing.T) {
			if got := Split(tt.total, tt.n); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Split(%d, %d) = %v, want %v", tt.total, tt.n, got, tt.want)
			}
		})
	}
}

func TestComputeProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ids := []string{"m0", "m1", "m2", "m3", "m4", "m5", "m6"}
	currencies := []string{"JPY", "USD", "KWD"}

	for round := 0; round < 200; round++ {
		n := 2 + rng.Intn(len(ids)-1)
		ms := members(ids[:n]...)
		var exs []Expense
		for k := 0; k < 1+rng.Intn(15); k++ {
			var parts []string
			for _, m := range ms {
				if rng.Intn(2) == 0 {
					parts = append(parts, m.ID)
				}
			}
			exs = append(exs, Expense{
				Amount:       decimal.New(int64(1+rng.Intn(100000)), -int32(rng.Intn(3))),
				Currency:     currencies[rng.Intn(len(currencies))],
				PayerID:      ms[rng.Intn(n)].ID,
				Participants: parts,
			})
		}

		table := DefaultCurrencies()
		got := table.Compute(ms, exs)
		again := table.Compute(ms, exs)
		if !reflect.DeepEqual(got, again) {
			t.Fatalf("round %d: result not deterministic", round)
		}

		balances := table.Balances(ms, exs)
		for cur, lines := range got {
			if len(lines) > n-1 {
				t.Errorf("round %d %s: %d lines for %d members", round, cur, len(lines), n)
			}
			net := make(map[string]int64)
			for _, b := range balances[cur] {
				net[b.MemberID] = table.ToMinor(b.Amount, cur)
			}
			for _, l := range lines {
				if l.From == l.To {
					t.Errorf("round %d %s: self transfer %+v", round, cur, l)
				}
				if !l.Amount.IsPositive() {
					t.Errorf("round %d %s: non-positive amount %+v", round, cur, l)
				}
				amt := table.ToMinor(l.Amount, cur)
				net[l.From] += amt
				net[l.To] -= amt
			}
			for id, v := range net {
				if v != 0 {
					t.Errorf("round %d %s: member %s left with %d after transfers", round, cur, id, v)
				}
			}
		}
	}
}
