package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/susu3304/warikan/internal/warikan"
)

func newGroup(t *testing.T, s *Store, id, channel string) {
	t.Helper()
	g := &warikan.Group{ID: id, Name: id, ChannelID: channel, CreatedAt: time.Now()}
	if err := s.CreateGroup(context.Background(), g, &warikan.Member{ID: "u1", GroupID: id, Name: "Alice"}); err != nil {
		t.Fatal(err)
	}
}

func TestExpensesNewestFirstAndCopied(t *testing.T) {
	ctx := context.Background()
	s := New()
	newGroup(t, s, "g1", "")

	for _, id := range []string{"e1", "e2"} {
		e := &warikan.Expense{ID: id, GroupID: "g1", Amount: decimal.NewFromInt(100), Participants: []string{"u1"}}
		if err := s.CreateExpense(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Expenses(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "e2" || got[1].ID != "e1" {
		t.Fatalf("Expenses order = %+v", got)
	}

	got[0].Participants[0] = "changed"
	e, err := s.Expense(ctx, "g1", "e2")
	if err != nil {
		t.Fatal(err)
	}
	if e.Participants[0] != "u1" {
		t.Errorf("stored participants were mutated: %v", e.Participants)
	}

	if err := s.DeleteExpense(ctx, "g1", "missing"); !errors.Is(err, warikan.ErrExpenseNotFound) {
		t.Errorf("DeleteExpense(missing) = %v", err)
	}
	if _, err := s.Expenses(ctx, "nope"); !errors.Is(err, warikan.ErrGroupNotFound) {
		t.Errorf("Expenses(unknown group) = %v", err)
	}
}

func TestAddMemberIgnoresDuplicates(t *testing.T) {
	ctx := context.Background()
	s := New()
	newGroup(t, s, "g1", "")

	added, err := s.AddMember(ctx, &warikan.Member{ID: "u1", GroupID: "g1", Name: "again"})
	if err != nil || added {
		t.Fatalf("AddMember(existing) = %v, %v", added, err)
	}
	added, err = s.AddMember(ctx, &warikan.Member{ID: "u2", GroupID: "g1", Name: "Bob"})
	if err != nil || !added {
		t.Fatalf("AddMember(new) = %v, %v", added, err)
	}
	members, _ := s.Members(ctx, "g1")
	if len(members) != 2 || members[0].Name != "Alice" || members[1].ID != "u2" {
		t.Errorf("Members = %+v", members)
	}
}

func TestCompleteSettlementTaskEitherDirection(t *testing.T) {
	ctx := context.Background()
	s := New()
	newGroup(t, s, "g1", "")

	tasks := []warikan.SettlementTask{
		{PayerID: "u2", PayeeID: "u1", Currency: "JPY", Amount: 500},
		{PayerID: "u3", PayeeID: "u1", Currency: "JPY", Amount: 0}, // dropped
	}
	if err := s.SetSettlementTasks(ctx, "g1", tasks); err != nil {
		t.Fatal(err)
	}
	pending, _ := s.PendingSettlementTasks(ctx, "g1")
	if len(pending) != 1 {
		t.Fatalf("pending = %+v", pending)
	}

	done, err := s.CompleteSettlementTask(ctx, "g1", "u1", "u2")
	if err != nil || done == nil || !done.Completed || done.Amount != 500 {
		t.Fatalf("CompleteSettlementTask = %+v, %v", done, err)
	}
	done, err = s.CompleteSettlementTask(ctx, "g1", "u1", "u2")
	if err != nil || done != nil {
		t.Errorf("second CompleteSettlementTask = %+v, %v", done, err)
	}
}

func TestDueRemindersAndChannelLinks(t *testing.T) {
	ctx := context.Background()
	s := New()
	newGroup(t, s, "g1", "C1")
	newGroup(t, s, "g2", "")

	now := time.Now()
	for _, id := range []string{"g1", "g2"} {
		if err := s.SetSettlementTasks(ctx, id, []warikan.SettlementTask{{PayerID: "u2", PayeeID: "u1", Currency: "JPY", Amount: 1}}); err != nil {
			t.Fatal(err)
		}
		if err := s.UpsertReminder(ctx, id, true, 30, &now); err != nil {
			t.Fatal(err)
		}
	}

	due, _ := s.DueReminders(ctx, now)
	if len(due) != 1 || due[0].GroupID != "g1" || due[0].IntervalMinutes != 30 {
		t.Fatalf("DueReminders = %+v", due)
	}

	// Moving the channel unlinks the previous group.
	if err := s.LinkChannel(ctx, "g2", "C1"); err != nil {
		t.Fatal(err)
	}
	g, err := s.GroupByChannel(ctx, "C1")
	if err != nil || g.ID != "g2" {
		t.Fatalf("GroupByChannel = %+v, %v", g, err)
	}
	due, _ = s.DueReminders(ctx, now)
	if len(due) != 1 || due[0].GroupID != "g2" {
		t.Errorf("DueReminders after relink = %+v", due)
	}

	if err := s.MarkReminderSent(ctx, "g2", now, now.Add(30*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if due, _ = s.DueReminders(ctx, now.Add(time.Minute)); len(due) != 0 {
		t.Errorf("DueReminders before next due = %+v", due)
	}
	if _, err := s.GroupByChannel(ctx, "C9"); !errors.Is(err, warikan.ErrNotLinked) {
		t.Errorf("GroupByChannel(unlinked) = %v", err)
	}
}
