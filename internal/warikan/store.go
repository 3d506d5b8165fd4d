package warikan

import (
	"context"
	"errors"
	"time"
)

var (
	ErrGroupNotFound   = errors.New("グループが見つかりません")
	ErrMemberNotFound  = errors.New("メンバーが見つかりません")
	ErrExpenseNotFound = errors.New("支払いが見つかりません")
	ErrForbidden       = errors.New("このグループへのアクセス権がありません")
	ErrInvalidGroup    = errors.New("グループの入力が不正です")
	ErrInvalidExpense  = errors.New("支払いの入力が不正です")
	ErrNotLinked       = errors.New("このチャンネルはグループに紐付いていません")
)

// Store persists groups and everything that hangs off them.
// Lookups of a missing row return the matching Err*NotFound sentinel.
type Store interface {
	CreateGroup(ctx context.Context, g *Group, owner *Member) error
	Group(ctx context.Context, groupID string) (*Group, error)
	GroupsForUser(ctx context.Context, uid string) ([]Group, error)
	GroupByChannel(ctx context.Context, channelID string) (*Group, error)
	LinkChannel(ctx context.Context, groupID, channelID string) error
	DeleteGroup(ctx context.Context, groupID string) error

	// AddMember inserts m unless a member with the same ID exists; it reports whether it inserted.
	AddMember(ctx context.Context, m *Member) (bool, error)
	Members(ctx context.Context, groupID string) ([]Member, error)
	DeleteMember(ctx context.Context, groupID, memberID string) error

	CreateExpense(ctx context.Context, e *Expense) error
	UpdateExpense(ctx context.Context, e *Expense) error
	DeleteExpense(ctx context.Context, groupID, expenseID string) error
	Expense(ctx context.Context, groupID, expenseID string) (*Expense, error)
	// Expenses returns the newest first.
	Expenses(ctx context.Context, groupID string) ([]Expense, error)

	SetSettlementTasks(ctx context.Context, groupID string, tasks []SettlementTask) error
	PendingSettlementTasks(ctx context.Context, groupID string) ([]SettlementTask, error)
	// CompleteSettlementTask marks the oldest pending task between the two members
	// (either direction) as completed. It returns nil when there is none.
	CompleteSettlementTask(ctx context.Context, groupID, memberA, memberB string) (*SettlementTask, error)

	UpsertReminder(ctx context.Context, groupID string, enabled bool, intervalMinutes int, nextDueAt *time.Time) error
	DueReminders(ctx context.Context, now time.Time) ([]ReminderDue, error)
	MarkReminderSent(ctx context.Context, groupID string, sentAt, nextDue time.Time) error
	DelayReminder(ctx context.Context, groupID string, nextDue time.Time) error
}
