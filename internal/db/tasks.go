package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/susu3304/warikan/internal/warikan"
)

// SetSettlementTasks replaces all tasks of a group.
func (db *DB) SetSettlementTasks(ctx context.Context, groupID string, tasks []warikan.SettlementTask) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM settlement_tasks WHERE group_id = $1`, groupID); err != nil {
		return err
	}
	for _, t := range tasks {
		if t.Amount <= 0 || t.PayerID == "" || t.PayeeID == "" {
			continue
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO settlement_tasks (group_id, payer_id, payee_id, currency, amount, completed)
			 VALUES ($1, $2, $3, $4, $5, FALSE)`,
			groupID, t.PayerID, t.PayeeID, t.Currency, t.Amount,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// PendingSettlementTasks returns unsettled tasks in creation order.
func (db *DB) PendingSettlementTasks(ctx context.Context, groupID string) ([]warikan.SettlementTask, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT group_id, payer_id, payee_id, currency, amount, completed
		 FROM settlement_tasks
		 WHERE group_id = $1 AND completed = FALSE
		 ORDER BY id`,
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []warikan.SettlementTask
	for rows.Next() {
		var t warikan.SettlementTask
		if err := rows.Scan(&t.GroupID, &t.PayerID, &t.PayeeID, &t.Currency, &t.Amount, &t.Completed); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (db *DB) CompleteSettlementTask(ctx context.Context, groupID, memberA, memberB string) (*warikan.SettlementTask, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	var t warikan.SettlementTask
	err = tx.QueryRow(ctx,
		`SELECT id, group_id, payer_id, payee_id, currency, amount
		 FROM settlement_tasks
		 WHERE group_id = $1 AND completed = FALSE
		   AND ((payer_id = $2 AND payee_id = $3) OR (payer_id = $3 AND payee_id = $2))
		 ORDER BY id
		 LIMIT 1
		 FOR UPDATE`,
		groupID, memberA, memberB,
	).Scan(&id, &t.GroupID, &t.PayerID, &t.PayeeID, &t.Currency, &t.Amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE settlement_tasks SET completed = TRUE, completed_at = CURRENT_TIMESTAMP WHERE id = $1`,
		id,
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	t.Completed = true
	return &t, nil
}

// UpsertReminder configures the group's reminder. A nil nextDueAt keeps the stored schedule.
func (db *DB) UpsertReminder(ctx context.Context, groupID string, enabled bool, intervalMinutes int, nextDueAt *time.Time) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO group_reminders (group_id, enabled, interval_minutes, next_due_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (group_id) DO UPDATE
		 SET enabled = EXCLUDED.enabled,
			 interval_minutes = EXCLUDED.interval_minutes,
			 next_due_at = COALESCE(EXCLUDED.next_due_at, group_reminders.next_due_at)`,
		groupID, enabled, intervalMinutes, nextDueAt,
	)
	return err
}

// DueReminders returns linked groups whose reminder is due and that still have pending tasks.
func (db *DB) DueReminders(ctx context.Context, now time.Time) ([]warikan.ReminderDue, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT r.group_id, g.channel_id, r.interval_minutes
		 FROM group_reminders r
		 JOIN groups g ON g.id = r.group_id
		 WHERE r.enabled = TRUE
		   AND g.channel_id IS NOT NULL
		   AND (r.next_due_at IS NULL OR r.next_due_at <= $1)
		   AND EXISTS (
			 SELECT 1 FROM settlement_tasks t
			 WHERE t.group_id = r.group_id AND t.completed = FALSE
		   )
		 ORDER BY r.group_id`,
		now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []warikan.ReminderDue
	for rows.Next() {
		var r warikan.ReminderDue
		if err := rows.Scan(&r.GroupID, &r.ChannelID, &r.IntervalMinutes); err != nil {
			return nil, err
		}
		targets = append(targets, r)
	}
	return targets, rows.Err()
}

func (db *DB) MarkReminderSent(ctx context.Context, groupID string, sentAt, nextDue time.Time) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE group_reminders
		 SET last_sent_at = $2, next_due_at = $3
		 WHERE group_id = $1`,
		groupID, sentAt, nextDue,
	)
	return err
}

// DelayReminder updates next_due_at without touching last_sent_at.
func (db *DB) DelayReminder(ctx context.Context, groupID string, nextDue time.Time) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE group_reminders SET next_due_at = $2 WHERE group_id = $1`,
		groupID, nextDue,
	)
	return err
}
