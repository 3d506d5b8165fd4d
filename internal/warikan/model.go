package warikan

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/susu3304/warikan/internal/settlement"
)

type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id,omitempty"`
	ChannelID string    `json:"channel_id,omitempty"` // linked Discord channel
	CreatedAt time.Time `json:"created_at"`
}

type Member struct {
	ID       string    `json:"id"`
	GroupID  string    `json:"group_id"`
	Name     string    `json:"name"`
	UID      string    `json:"uid,omitempty"` // LINE or Discord user behind the member, if any
	JoinedAt time.Time `json:"joined_at"`
}

type Expense struct {
	ID           string          `json:"id"`
	GroupID      string          `json:"group_id"`
	Title        string          `json:"title"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	PaidBy       string          `json:"paid_by"`
	Participants []string        `json:"participants"`
	CreatedBy    string          `json:"created_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ExpenseInput is what a user submits when adding or editing an expense.
type ExpenseInput struct {
	Title        string          `json:"title"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	PaidBy       string          `json:"paid_by"`
	Participants []string        `json:"participants"`
}

// SettlementTask is a persisted settlement line waiting to be paid.
type SettlementTask struct {
	GroupID   string
	PayerID   string
	PayeeID   string
	Currency  string
	Amount    int64 // minor units
	Completed bool
}

type ReminderDue struct {
	GroupID         string
	ChannelID       string
	IntervalMinutes int
}

// Identity is an authenticated user as seen by the service.
type Identity struct {
	UserID string
	Name   string
}

type SettleResult struct {
	Lines   map[string][]settlement.Line
	Summary string
}

func (m Member) settlementMember() settlement.Member {
	return settlement.Member{ID: m.ID, Name: m.Name}
}

func (e Expense) settlementExpense() settlement.Expense {
	return settlement.Expense{
		ID:           e.ID,
		Title:        e.Title,
		Amount:       e.Amount,
		Currency:     e.Currency,
		PayerID:      e.PaidBy,
		Participants: e.Participants,
		CreatedAt:    e.CreatedAt,
	}
}
