package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"Tunevault/model"
)

// IndexRepository stores the denormalized search tokens of music files.
type IndexRepository interface {
	AddEntries(ctx context.Context, entries []model.IndexEntry) error
	DeleteByMusic(ctx context.Context, userID, musicID string) error
	DeleteByUser(ctx context.Context, userID string) error
	// PrefixSearch returns music ids whose entries start with prefix, in entry order.
	PrefixSearch(ctx context.Context, userID, prefix string) ([]string, error)
	DistinctValues(ctx context.Context, userID, field string) ([]string, error)
}

type mysqlIndexRepository struct {
	db *sql.DB
}

// NewMySQLIndexRepository creates a MySQL backed IndexRepository.
func NewMySQLIndexRepository(db *sql.DB) IndexRepository {
	return &mysqlIndexRepository{db: db}
}

// 单条 INSERT 的最大行数
const indexInsertBatch = 200

// AddEntries inserts all entries inside one transaction.
func (r *mysqlIndexRepository) AddEntries(ctx context.Context, entries []model.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin index transaction: %w", err)
	}
	defer tx.Rollback()

	for start := 0; start < len(entries); start += indexInsertBatch {
		end := start + indexInsertBatch
		if end > len(entries) {
			end = len(entries)
		}
		batch := entries[start:end]

		var sb strings.Builder
		sb.WriteString("INSERT INTO music_index (user_id, music_id, field, value, timestamp) VALUES ")
		args := make([]interface{}, 0, len(batch)*5)
		for i, e := range batch {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(?, ?, ?, ?, ?)")
			args = append(args, e.UserID, e.MusicID, e.Field, e.Value, e.Timestamp)
		}
		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("failed to insert index entries: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index entries: %w", err)
	}
	return nil
}

// DeleteByMusic removes every entry of one music file.
func (r *mysqlIndexRepository) DeleteByMusic(ctx context.Context, userID, musicID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM music_index WHERE user_id = ? AND music_id = ?", userID, musicID)
	if err != nil {
		return fmt.Errorf("failed to delete index entries for %s: %w", musicID, err)
	}
	return nil
}

// DeleteByUser removes every entry of a user.
func (r *mysqlIndexRepository) DeleteByUser(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM music_index WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to delete index entries for user %s: %w", userID, err)
	}
	return nil
}

// PrefixSearch matches value LIKE 'prefix%' across all fields.
func (r *mysqlIndexRepository) PrefixSearch(ctx context.Context, userID, prefix string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT music_id FROM music_index WHERE user_id = ? AND value LIKE ? ESCAPE '\\\\' ORDER BY id",
		userID, EscapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to search index for %q: %w", prefix, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan index row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DistinctValues returns the distinct indexed values of a field, ascending.
func (r *mysqlIndexRepository) DistinctValues(ctx context.Context, userID, field string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT DISTINCT value FROM music_index WHERE user_id = ? AND field = ? ORDER BY value",
		userID, field)
	if err != nil {
		return nil, fmt.Errorf("failed to query index values for %s: %w", field, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan index value: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// EscapeLike escapes the LIKE wildcards in s.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
