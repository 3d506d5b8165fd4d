package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/susu3304/warikan/internal/warikan"
)

const expenseColumns = `id, group_id, title, amount::text, currency, paid_by, created_by, created_at`

func scanExpense(row pgx.Row) (*warikan.Expense, error) {
	var e warikan.Expense
	var amount string
	if err := row.Scan(&e.ID, &e.GroupID, &e.Title, &amount, &e.Currency, &e.PaidBy, &e.CreatedBy, &e.CreatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("expense %s: bad amount %q: %w", e.ID, amount, err)
	}
	e.Amount = d
	return &e, nil
}

func insertParticipants(ctx context.Context, tx pgx.Tx, expenseID string, participants []string) error {
	for pos, uid := range participants {
		if _, err := tx.Exec(ctx,
			`INSERT INTO expense_participants (expense_id, position, member_id) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			expenseID, pos, uid,
		); err != nil {
			return err
		}
	}
	return nil
}

// CreateExpense inserts an expense and its ordered participants.
func (db *DB) CreateExpense(ctx context.Context, e *warikan.Expense) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO expenses (id, group_id, title, amount, currency, paid_by, created_by, created_at)
		 VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)`,
		e.ID, e.GroupID, e.Title, e.Amount.String(), e.Currency, e.PaidBy, e.CreatedBy, e.CreatedAt,
	); err != nil {
		return err
	}
	if err := insertParticipants(ctx, tx, e.ID, e.Participants); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpdateExpense rewrites the editable fields and replaces the participants.
func (db *DB) UpdateExpense(ctx context.Context, e *warikan.Expense) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx,
		`UPDATE expenses SET title = $3, amount = $4::numeric, currency = $5, paid_by = $6
		 WHERE group_id = $1 AND id = $2`,
		e.GroupID, e.ID, e.Title, e.Amount.String(), e.Currency, e.PaidBy,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return warikan.ErrExpenseNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM expense_participants WHERE expense_id = $1`, e.ID); err != nil {
		return err
	}
	if err := insertParticipants(ctx, tx, e.ID, e.Participants); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (db *DB) DeleteExpense(ctx context.Context, groupID, expenseID string) error {
	ct, err := db.pool.Exec(ctx, `DELETE FROM expenses WHERE group_id = $1 AND id = $2`, groupID, expenseID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return warikan.ErrExpenseNotFound
	}
	return nil
}

func (db *DB) Expense(ctx context.Context, groupID, expenseID string) (*warikan.Expense, error) {
	e, err := scanExpense(db.pool.QueryRow(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE group_id = $1 AND id = $2`,
		groupID, expenseID,
	))
	if err != nil {
		return nil, notFound(err, warikan.ErrExpenseNotFound)
	}
	byExpense, err := db.participants(ctx, groupID)
	if err != nil {
		return nil, err
	}
	e.Participants = byExpense[e.ID]
	return e, nil
}

// Expenses returns the group's expenses newest first, participants in entered order.
func (db *DB) Expenses(ctx context.Context, groupID string) ([]warikan.Expense, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE group_id = $1 ORDER BY created_at DESC, id`,
		groupID,
	)
	if err != nil {
		return nil, err
	}
	var out []warikan.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	byExpense, err := db.participants(ctx, groupID)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Participants = byExpense[out[i].ID]
	}
	return out, nil
}

func (db *DB) participants(ctx context.Context, groupID string) (map[string][]string, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT p.expense_id, p.member_id
		 FROM expense_participants p
		 JOIN expenses e ON e.id = p.expense_id
		 WHERE e.group_id = $1
		 ORDER BY p.expense_id, p.position`,
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var expenseID, memberID string
		if err := rows.Scan(&expenseID, &memberID); err != nil {
			return nil, err
		}
		out[expenseID] = append(out[expenseID], memberID)
	}
	return out, rows.Err()
}
