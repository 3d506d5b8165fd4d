// Package memstore keeps groups in process memory. It is used when no database is
// configured and in tests; contents are lost on restart.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/susu3304/warikan/internal/warikan"
)

type groupData struct {
	group    warikan.Group
	members  []warikan.Member
	expenses []warikan.Expense
	tasks    []warikan.SettlementTask
	reminder *reminder
}

type reminder struct {
	enabled   bool
	interval  int
	nextDueAt *time.Time
	lastSent  *time.Time
}

type Store struct {
	mu     sync.Mutex
	groups map[string]*groupData
}

var _ warikan.Store = (*Store)(nil)

func New() *Store {
	return &Store{groups: make(map[string]*groupData)}
}

func (s *Store) get(groupID string) (*groupData, error) {
	g, ok := s.groups[groupID]
	if !ok {
		return nil, warikan.ErrGroupNotFound
	}
	return g, nil
}

func (s *Store) CreateGroup(_ context.Context, g *warikan.Group, owner *warikan.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := &groupData{group: *g}
	if owner != nil {
		d.members = append(d.members, *owner)
	}
	s.groups[g.ID] = d
	return nil
}

func (s *Store) Group(_ context.Context, groupID string) (*warikan.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.get(groupID)
	if err != nil {
		return nil, err
	}
	g := d.group
	return &g, nil
}

func (s *Store) GroupsForUser(_ context.Context, uid string) ([]warikan.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []warikan.Group
	for _, d := range s.groups {
		for _, m := range d.members {
			if m.ID == uid || (m.UID != "" && m.UID == uid) {
				out = append(out, d.group)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GroupByChannel(_ context.Context, channelID string) (*warikan.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.groups {
		if d.group.ChannelID == channelID {
			g := d.group
			return &g, nil
		}
	}
	return nil, warikan.ErrNotLinked
}

func (s *Store) LinkChannel(_ context.Context, groupID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.get(groupID)
	if err != nil {
		return err
	}
	// A channel is bound to at most one group.
	for _, other := range s.groups {
		if other.group.ChannelID == channelID {
			other.group.ChannelID = ""
		}
	}
	d.group.ChannelID = channelID
	return nil
}

func (s *Store) DeleteGroup(_ context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.get(groupID); err != nil {
		return err
	}
	delete(s.groups, groupID)
	return nil
}

func (s *Store) AddMember(_ context.Context, m *warikan.Member) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.get(m.GroupID)
	if err != nil {
		return false, err
	}
	for _, existing := range d.members {
		if existing.ID == m.ID {
			return false, nil
		}
	}
	d.members = append(d.members, *m)
	return true, nil
}

func (s *Store) Members(_ context.Context, groupID string) ([]warikan.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.get(groupID)
	if err != nil {
		return nil, err
	}
	return append([]warikan.Member(nil), d.members...), nil
}

func (s *Store) DeleteMember(_ context.Context, groupID, memberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.get(groupID)
	if err != nil {
		return err
	}
	for i, m := range d.members {
		if m.ID == memberID {
			d.members = append(d.members[:i], d.members[i+1:]...)
			return nil
		}
	}
	return warikan.ErrMemberNotFound
}

func copyExpense(e warikan.Expense) warikan.Expense {
	e.Participants = append([]string(nil), e.Participants...)
	return e
}

func (s *Store) CreateExpense(_ context.Context, e *warikan.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.get(e.GroupID)
	if err != nil {
		return err
	}
	d.expenses = append(d.expenses, copyExpense(*e))
	return nil
}

func (s *Store) UpdateExpense(_ context.Context, e *warikan.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.get(e.GroupID)
	if err != nil {
		return err
	}
	for i := range d.expenses {
		if d.expenses[i].ID == e.ID {
			d.expenses[i] = copyExpense(*e)
			return nil
		}
	}
	return warikan.ErrExpenseNotFound
}

func (s *Store) DeleteExpense(_ context.Context, groupID, expenseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.get(groupID)
	if err != nil {
		return err
	}
	for i, e := range d.expenses {
		if e.ID == expenseID {
			d.expenses = append(d.expenses[:i], d.expenses[i+1:]...)
			return nil
		}
	}
	return warikan.ErrExpenseNotFound
}

func (s *Store) Expense(_ context.Context, groupID, expenseID string) (*warikan.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.get(groupID)
	if err != nil {
		return nil, err
	}
	for _, e := range d.expenses {
		if e.ID == expenseID {
			c := copyExpense(e)
			return &c, nil
		}
	}
	return nil, warikan.ErrExpenseNotFound
}

func (s *Store) Expenses(_ context.Context, groupID string) ([]warikan.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.get(groupID)
	if err != nil {
		return nil, err
	}
	out := make([]warikan.Expense, 0, len(d.expenses))
	for i := len(d.expenses) - 1; i >= 0; i-- {
		out = append(out, copyExpense(d.expenses[i]))
	}
	return out, nil
}

func (s *Store) SetSettlementTasks(_ context.Context, groupID string, tasks []warikan.SettlementTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.get(groupID)
	if err != nil {
		return err
	}
	d.tasks = d.tasks[:0]
	for _, t := range tasks {
		if t.Amount <= 0 || t.PayerID == "" || t.PayeeID == "" {
			continue
		}
		t.GroupID = groupID
		t.Completed = false
		d.tasks = append(d.tasks, t)
	}
	return nil
}

func (s *Store) PendingSettlementTasks(_ context.Context, groupID string) ([]warikan.SettlementTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.get(groupID)
	if err != nil {
		return nil, err
	}
	var out []warikan.SettlementTask
	for _, t := range d.tasks {
		if !t.Completed {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) CompleteSettlementTask(_ context.Context, groupID, memberA, memberB string) (*warikan.SettlementTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.get(groupID)
	if err != nil {
		return nil, err
	}
	for i := range d.tasks {
		t := &d.tasks[i]
		if t.Completed {
			continue
		}
		if (t.PayerID == memberA && t.PayeeID == memberB) || (t.PayerID == memberB && t.PayeeID == memberA) {
			t.Completed = true
			c := *t
			return &c, nil
		}
	}
	return nil, nil
}

func (s *Store) UpsertReminder(_ context.Context, groupID string, enabled bool, intervalMinutes int, nextDueAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.get(groupID)
	if err != nil {
		return err
	}
	if d.reminder == nil {
		d.reminder = &reminder{}
	}
	d.reminder.enabled = enabled
	d.reminder.interval = intervalMinutes
	if nextDueAt != nil {
		d.reminder.nextDueAt = nextDueAt
	}
	return nil
}

func (s *Store) DueReminders(_ context.Context, now time.Time) ([]warikan.ReminderDue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []warikan.ReminderDue
	for id, d := range s.groups {
		r := d.reminder
		if r == nil || !r.enabled || d.group.ChannelID == "" {
			continue
		}
		if r.nextDueAt != nil && r.nextDueAt.After(now) {
			continue
		}
		pending := false
		for _, t := range d.tasks {
			if !t.Completed {
				pending = true
				break
			}
		}
		if pending {
			out = append(out, warikan.ReminderDue{GroupID: id, ChannelID: d.group.ChannelID, IntervalMinutes: r.interval})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out, nil
}

func (s *Store) MarkReminderSent(_ context.Context, groupID string, sentAt, nextDue time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.get(groupID)
	if err != nil {
		return err
	}
	if d.reminder != nil {
		d.reminder.lastSent = &sentAt
		d.reminder.nextDueAt = &nextDue
	}
	return nil
}

func (s *Store) DelayReminder(_ context.Context, groupID string, nextDue time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.get(groupID)
	if err != nil {
		return err
	}
	if d.reminder != nil {
		d.reminder.nextDueAt = &nextDue
	}
	return nil
}
