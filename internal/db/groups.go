package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/susu3304/warikan/internal/warikan"
)

const groupColumns = `id, name, owner_id, COALESCE(channel_id, ''), created_at`

func scanGroup(row pgx.Row) (*warikan.Group, error) {
	var g warikan.Group
	if err := row.Scan(&g.ID, &g.Name, &g.OwnerID, &g.ChannelID, &g.CreatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

// CreateGroup inserts the group and, if given, its owner as the first member.
func (db *DB) CreateGroup(ctx context.Context, g *warikan.Group, owner *warikan.Member) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO groups (id, name, owner_id, created_at) VALUES ($1, $2, $3, $4)`,
		g.ID, g.Name, g.OwnerID, g.CreatedAt,
	); err != nil {
		return err
	}
	if owner != nil {
		if _, err := tx.Exec(ctx,
			`INSERT INTO group_members (group_id, id, name, uid, joined_at) VALUES ($1, $2, $3, $4, $5)`,
			g.ID, owner.ID, owner.Name, owner.UID, owner.JoinedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (db *DB) Group(ctx context.Context, groupID string) (*warikan.Group, error) {
	g, err := scanGroup(db.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = $1`, groupID))
	if err != nil {
		return nil, notFound(err, warikan.ErrGroupNotFound)
	}
	return g, nil
}

// GroupsForUser returns the groups uid is a member of, newest first.
func (db *DB) GroupsForUser(ctx context.Context, uid string) ([]warikan.Group, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+groupColumns+` FROM groups g
		 WHERE EXISTS (
			SELECT 1 FROM group_members m
			WHERE m.group_id = g.id AND (m.id = $1 OR m.uid = $1)
		 )
		 ORDER BY created_at DESC`,
		uid,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []warikan.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func (db *DB) GroupByChannel(ctx context.Context, channelID string) (*warikan.Group, error) {
	g, err := scanGroup(db.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE channel_id = $1`, channelID))
	if err != nil {
		return nil, notFound(err, warikan.ErrNotLinked)
	}
	return g, nil
}

// LinkChannel binds the channel to the group, unbinding it from any other group.
func (db *DB) LinkChannel(ctx context.Context, groupID, channelID string) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE groups SET channel_id = NULL WHERE channel_id = $1`, channelID); err != nil {
		return err
	}
	ct, err := tx.Exec(ctx, `UPDATE groups SET channel_id = $2 WHERE id = $1`, groupID, channelID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return warikan.ErrGroupNotFound
	}
	return tx.Commit(ctx)
}

// DeleteGroup removes the group; members, expenses, tasks and reminders cascade.
func (db *DB) DeleteGroup(ctx context.Context, groupID string) error {
	ct, err := db.pool.Exec(ctx, `DELETE FROM groups WHERE id = $1`, groupID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return warikan.ErrGroupNotFound
	}
	return nil
}

func (db *DB) AddMember(ctx context.Context, m *warikan.Member) (bool, error) {
	ct, err := db.pool.Exec(ctx,
		`INSERT INTO group_members (group_id, id, name, uid, joined_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (group_id, id) DO NOTHING`,
		m.GroupID, m.ID, m.Name, m.UID, m.JoinedAt,
	)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// Members returns the group's members in join order.
func (db *DB) Members(ctx context.Context, groupID string) ([]warikan.Member, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, group_id, name, uid, joined_at FROM group_members WHERE group_id = $1 ORDER BY joined_at, id`,
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []warikan.Member
	for rows.Next() {
		var m warikan.Member
		if err := rows.Scan(&m.ID, &m.GroupID, &m.Name, &m.UID, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (db *DB) DeleteMember(ctx context.Context, groupID, memberID string) error {
	ct, err := db.pool.Exec(ctx, `DELETE FROM group_members WHERE group_id = $1 AND id = $2`, groupID, memberID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return warikan.ErrMemberNotFound
	}
	return nil
}
