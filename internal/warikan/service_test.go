package warikan_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/susu3304/warikan/internal/memstore"
	"github.com/susu3304/warikan/internal/warikan"
)

type fixture struct {
	svc   *warikan.Service
	group *warikan.Group
	alice warikan.Identity
	bob   *warikan.Member
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	svc := warikan.NewService(memstore.New(), nil)
	alice := warikan.Identity{UserID: "Ualice", Name: "Alice"}
	g, err := svc.CreateGroup(ctx, "  旅行  ", alice)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	bob, err := svc.AddMember(ctx, g.ID, "Bob")
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	return fixture{svc: svc, group: g, alice: alice, bob: bob}
}

func TestCreateGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if f.group.Name != "旅行" {
		t.Errorf("name = %q, want trimmed", f.group.Name)
	}
	members, err := f.svc.Members(ctx, f.group.ID)
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 2 || members[0].ID != "Ualice" || members[1].Name != "Bob" {
		t.Errorf("members = %+v", members)
	}
	groups, err := f.svc.Groups(ctx, "Ualice")
	if err != nil || len(groups) != 1 {
		t.Errorf("Groups = %v, %v", groups, err)
	}
	if _, err := f.svc.CreateGroup(ctx, " ", f.alice); !errors.Is(err, warikan.ErrInvalidGroup) {
		t.Errorf("blank name: err = %v", err)
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	carol := warikan.Identity{UserID: "Ucarol"}

	joined, err := f.svc.Join(ctx, f.group.ID, carol)
	if err != nil || !joined {
		t.Fatalf("first Join = %v, %v", joined, err)
	}
	joined, err = f.svc.Join(ctx, f.group.ID, carol)
	if err != nil || joined {
		t.Fatalf("second Join = %v, %v", joined, err)
	}
	members, _ := f.svc.Members(ctx, f.group.ID)
	if got := members[len(members)-1].Name; got != warikan.DefaultMemberName {
		t.Errorf("default name = %q", got)
	}
	if err := f.svc.Authorize(ctx, f.group.ID, "Ucarol"); err != nil {
		t.Errorf("Authorize joined user: %v", err)
	}
	if err := f.svc.Authorize(ctx, f.group.ID, "Ustranger"); !errors.Is(err, warikan.ErrForbidden) {
		t.Errorf("Authorize stranger: %v", err)
	}
	if _, err := f.svc.Join(ctx, "missing", carol); !errors.Is(err, warikan.ErrGroupNotFound) {
		t.Errorf("Join missing group: %v", err)
	}
}

func TestAddExpenseValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	valid := warikan.ExpenseInput{
		Title:        "夕食",
		Amount:       decimal.NewFromInt(3000),
		Currency:     "jpy",
		PaidBy:       "Ualice",
		Participants: []string{"Ualice", f.bob.ID},
	}

	tests := []struct {
		name   string
		mutate func(*warikan.ExpenseInput)
	}{
		{"blank title", func(in *warikan.ExpenseInput) { in.Title = " " }},
		{"zero amount", func(in *warikan.ExpenseInput) { in.Amount = decimal.Zero }},
		{"negative amount", func(in *warikan.ExpenseInput) { in.Amount = decimal.NewFromInt(-1) }},
		{"below minor unit", func(in *warikan.ExpenseInput) { in.Amount = decimal.RequireFromString("0.2") }},
		{"beyond int64 minor units", func(in *warikan.ExpenseInput) { in.Amount = decimal.RequireFromString("100000000000000000000") }},
		{"above amount cap", func(in *warikan.ExpenseInput) { in.Amount = decimal.RequireFromString("10.01").Shift(14) }},
		{"bad currency", func(in *warikan.ExpenseInput) { in.Currency = "YEN!" }},
		{"unknown payer", func(in *warikan.ExpenseInput) { in.PaidBy = "nobody" }},
		{"unknown participant", func(in *warikan.ExpenseInput) { in.Participants = []string{"nobody"} }},
		{"no participants", func(in *warikan.ExpenseInput) { in.Participants = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			if _, err := f.svc.AddExpense(ctx, f.group.ID, "Ualice", in); !errors.Is(err, warikan.ErrInvalidExpense) {
				t.Errorf("err = %v, want ErrInvalidExpense", err)
			}
		})
	}

	in := valid
	in.Participants = []string{f.bob.ID, "Ualice", f.bob.ID}
	e, err := f.svc.AddExpense(ctx, f.group.ID, "Ualice", in)
	if err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	if e.Currency != "JPY" || len(e.Participants) != 2 || e.Participants[0] != f.bob.ID {
		t.Errorf("expense = %+v", e)
	}
}

func TestUpdateAndDeleteExpense(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, err := f.svc.AddExpense(ctx, f.group.ID, "Ualice", warikan.ExpenseInput{
		Title: "ランチ", Amount: decimal.NewFromInt(1000), PaidBy: "Ualice", Participants: []string{"Ualice", f.bob.ID},
	})
	if err != nil {
		t.Fatalf("AddExpense: %v", err)
	}

	updated, err := f.svc.UpdateExpense(ctx, f.group.ID, e.ID, warikan.ExpenseInput{
		Title: "ランチ", Amount: decimal.NewFromInt(2000), Currency: "JPY", PaidBy: f.bob.ID, Participants: []string{"Ualice", f.bob.ID},
	})
	if err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}
	if !updated.Amount.Equal(decimal.NewFromInt(2000)) || updated.PaidBy != f.bob.ID {
		t.Errorf("updated = %+v", updated)
	}
	lines, err := f.svc.Settlements(ctx, f.group.ID)
	if err != nil {
		t.Fatalf("Settlements: %v", err)
	}
	if got := lines["JPY"]; len(got) != 1 || got[0].From != "Ualice" || !got[0].Amount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("lines = %+v", got)
	}

	if err := f.svc.DeleteExpense(ctx, f.group.ID, e.ID); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	if _, err := f.svc.Expense(ctx, f.group.ID, e.ID); !errors.Is(err, warikan.ErrExpenseNotFound) {
		t.Errorf("Expense after delete: %v", err)
	}
	if _, err := f.svc.UpdateExpense(ctx, f.group.ID, e.ID, warikan.ExpenseInput{}); !errors.Is(err, warikan.ErrExpenseNotFound) {
		t.Errorf("UpdateExpense after delete: %v", err)
	}
}

func TestSettleStatusAndTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Settle(ctx, f.group.ID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if res.Summary != "精算は不要です" || len(res.Lines) != 0 {
		t.Errorf("empty settle = %+v", res)
	}

	add := func(amount, cur, payer string) {
		t.Helper()
		_, err := f.svc.AddExpense(ctx, f.group.ID, payer, warikan.ExpenseInput{
			Title: "x", Amount: decimal.RequireFromString(amount), Currency: cur, PaidBy: payer,
			Participants: []string{"Ualice", f.bob.ID},
		})
		if err != nil {
			t.Fatalf("AddExpense: %v", err)
		}
	}
	add("1000", "JPY", "Ualice")
	add("10.00", "USD", f.bob.ID)

	res, err = f.svc.Settle(ctx, f.group.ID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	want := "支払タスク:\nBob → Alice: 500 JPY\nAlice → Bob: 5.00 USD\n"
	if res.Summary != want {
		t.Errorf("summary = %q, want %q", res.Summary, want)
	}

	status, err := f.svc.Status(ctx, f.group.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	for _, s := range []string{"[JPY] 総支出: 1000 JPY", "Alice: +500 JPY", "Bob: -500 JPY", "[USD] 総支出: 10.00 USD"} {
		if !strings.Contains(status, s) {
			t.Errorf("status missing %q:\n%s", s, status)
		}
	}

	msg, err := f.svc.ReminderMessage(ctx, f.group.ID)
	if err != nil || !strings.Contains(msg, "Bob → Alice: 500 JPY") {
		t.Errorf("ReminderMessage = %q, %v", msg, err)
	}

	done, err := f.svc.CompleteTask(ctx, f.group.ID, "Ualice", f.bob.ID)
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if done != "完了しました: Bob → Alice 500 JPY" {
		t.Errorf("CompleteTask = %q", done)
	}
	tasks, _ := f.svc.PendingTasks(ctx, f.group.ID)
	if len(tasks) != 1 || tasks[0].Currency != "USD" || tasks[0].Amount != 500 {
		t.Errorf("pending = %+v", tasks)
	}
	f.svc.CompleteTask(ctx, f.group.ID, f.bob.ID, "Ualice")
	if msg, _ := f.svc.ReminderMessage(ctx, f.group.ID); msg != "" {
		t.Errorf("ReminderMessage after all done = %q", msg)
	}
	if msg, _ := f.svc.CompleteTask(ctx, f.group.ID, f.bob.ID, "Ualice"); msg != "対象のタスクが見つかりません" {
		t.Errorf("CompleteTask none = %q", msg)
	}
}

func TestDeleteGroupOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.svc.DeleteGroup(ctx, f.group.ID, "Ubob"); !errors.Is(err, warikan.ErrForbidden) {
		t.Errorf("non-owner delete: %v", err)
	}
	if err := f.svc.DeleteGroup(ctx, f.group.ID, "Ualice"); err != nil {
		t.Errorf("owner delete: %v", err)
	}
	if _, err := f.svc.Group(ctx, f.group.ID); !errors.Is(err, warikan.ErrGroupNotFound) {
		t.Errorf("Group after delete: %v", err)
	}
}

func TestReminderSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.svc.LinkChannel(ctx, f.group.ID, "chan-1"); err != nil {
		t.Fatalf("LinkChannel: %v", err)
	}
	g, err := f.svc.GroupByChannel(ctx, "chan-1")
	if err != nil || g.ID != f.group.ID {
		t.Fatalf("GroupByChannel = %v, %v", g, err)
	}
	if err := f.svc.SetReminder(ctx, f.group.ID, true, 0); err != nil {
		t.Fatalf("SetReminder: %v", err)
	}
	f.svc.AddExpense(ctx, f.group.ID, "Ualice", warikan.ExpenseInput{
		Title: "x", Amount: decimal.NewFromInt(100), PaidBy: "Ualice", Participants: []string{f.bob.ID},
	})
	if _, err := f.svc.Settle(ctx, f.group.ID); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	now := g.CreatedAt
	due, _ := f.svc.DueReminders(ctx, now)
	if len(due) != 0 {
		t.Errorf("due before interval: %+v", due)
	}
	later := now.Add(2 * time.Hour)
	due, _ = f.svc.DueReminders(ctx, later)
	if len(due) != 1 || due[0].ChannelID != "chan-1" || due[0].IntervalMinutes != warikan.DefaultReminderMinutes {
		t.Errorf("due = %+v", due)
	}
}

func TestInviteLinks(t *testing.T) {
	u := warikan.InviteURL("1650000000-abcd", "g-1")
	if u != "https://liff.line.me/1650000000-abcd?group=g-1&invite=1" {
		t.Errorf("InviteURL = %q", u)
	}
	text := warikan.InviteText("", u)
	if !strings.HasPrefix(text, "「割り勘グループ」に招待します！") || !strings.HasSuffix(text, u) {
		t.Errorf("InviteText = %q", text)
	}
	share := warikan.LineShareURL("a b&c")
	if share != "https://line.me/R/share?text=a%20b%26c" {
		t.Errorf("LineShareURL = %q", share)
	}
}
