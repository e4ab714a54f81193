package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository persists activity records in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert appends a row to activity_log.
func (r *PGRepository) Insert(ctx context.Context, entry Entry) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO activity_log (action, item_type, item_id, user_id, notes, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		string(entry.Action), entry.ItemType, entry.ItemID, toInt8(entry.UserID), entry.Notes, entry.At).Scan(&id)
	return id, err
}

// Execer runs a statement. Both *pgxpool.Pool and pgx.Tx satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// AnonymizeActor nulls user_id on every row of userID and appends
// DeletedUserNote(username) to the notes. Callers pass the transaction that
// removes the principal so both changes commit together.
func AnonymizeActor(ctx context.Context, q Execer, userID int64, username string) (int64, error) {
	if userID == 0 {
		return 0, errors.New("audit: user id required")
	}
	tag, err := q.Exec(ctx, `UPDATE activity_log
SET user_id = NULL,
    notes = CASE WHEN notes = '' THEN $2 ELSE notes || ' ' || $2 END
WHERE user_id = $1`, userID, DeletedUserNote(strings.TrimSpace(username)))
	if err != nil {
		return 0, fmt.Errorf("audit: anonymize actor %d: %w", userID, err)
	}
	return tag.RowsAffected(), nil
}

// List returns records matching filter ordered by timestamp.
func (r *PGRepository) List(ctx context.Context, filter Filter, offset, limit int) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.ItemType != "" {
		add("item_type = $%d", filter.ItemType)
	}
	if filter.ItemID != 0 {
		add("item_id = $%d", filter.ItemID)
	}
	if filter.UserID != 0 {
		add("user_id = $%d", filter.UserID)
	}
	if !filter.From.IsZero() {
		add("occurred_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("occurred_at < $%d", filter.To)
	}
	query := `SELECT id, action, item_type, item_id, user_id, occurred_at, notes FROM activity_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, offset, limit)
	query += fmt.Sprintf(" ORDER BY occurred_at ASC, id ASC OFFSET $%d LIMIT $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var (
			rec    Record
			action string
			userID pgtype.Int8
			at     pgtype.Timestamptz
		)
		if err := row.Scan(&rec.ID, &action, &rec.ItemType, &rec.ItemID, &userID, &at, &rec.Notes); err != nil {
			return Record{}, err
		}
		rec.Action = Action(action)
		rec.At = at.Time
		if userID.Valid {
			v := userID.Int64
			rec.UserID = &v
		}
		return rec, nil
	})
}

func toInt8(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *v, Valid: true}
}

var _ Repository = (*PGRepository)(nil)
