package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"Tunevault/model"
)

// MusicRepository defines the interface for music file records.
type MusicRepository interface {
	Create(ctx context.Context, file *model.MusicFile) error
	GetByID(ctx context.Context, id string) (*model.MusicFile, error)
	GetByIDs(ctx context.Context, ids []string) ([]*model.MusicFile, error)
	ListByUser(ctx context.Context, userID string) ([]*model.MusicFile, error)
	Filter(ctx context.Context, userID string, filter model.MusicFilter) ([]*model.MusicFile, error)
	Update(ctx context.Context, file *model.MusicFile) error
	Delete(ctx context.Context, id string) error
	DistinctValues(ctx context.Context, userID, field string) ([]string, error)
}

// mysqlMusicRepository implements MusicRepository for MySQL.
type mysqlMusicRepository struct {
	db *sql.DB
}

// NewMySQLMusicRepository creates a new mysqlMusicRepository.
func NewMySQLMusicRepository(db *sql.DB) MusicRepository {
	return &mysqlMusicRepository{db: db}
}

const musicColumns = "id, user_id, url, title, artist, album, genre, year, duration, cover_art, file_size, file_type, uploaded_at, storage_location"

// 列名白名单，防止字段名拼进 SQL
var musicFieldColumns = map[string]string{
	"title":  "title",
	"artist": "artist",
	"album":  "album",
	"genre":  "genre",
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMusicFile(row rowScanner) (*model.MusicFile, error) {
	f := &model.MusicFile{}
	err := row.Scan(&f.ID, &f.UserID, &f.URL, &f.Title, &f.Artist, &f.Album, &f.Genre, &f.Year,
		&f.Duration, &f.CoverArt, &f.FileSize, &f.FileType, &f.UploadedAt, &f.StorageLocation)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Create inserts a new music file record.
func (r *mysqlMusicRepository) Create(ctx context.Context, f *model.MusicFile) error {
	query := "INSERT INTO music_files (" + musicColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err := r.db.ExecContext(ctx, query, f.ID, f.UserID, f.URL, f.Title, f.Artist, f.Album, f.Genre, f.Year,
		f.Duration, f.CoverArt, f.FileSize, f.FileType, f.UploadedAt, f.StorageLocation)
	if err != nil {
		return fmt.Errorf("failed to insert music file %s: %w", f.ID, err)
	}
	return nil
}

// GetByID retrieves a music file by its ID. Returns nil, nil when not found.
func (r *mysqlMusicRepository) GetByID(ctx context.Context, id string) (*model.MusicFile, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+musicColumns+" FROM music_files WHERE id = ?", id)
	f, err := scanMusicFile(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan music file %s: %w", id, err)
	}
	return f, nil
}

// GetByIDs returns the records that exist among ids, in no particular order.
func (r *mysqlMusicRepository) GetByIDs(ctx context.Context, ids []string) ([]*model.MusicFile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return r.query(ctx, "SELECT "+musicColumns+" FROM music_files WHERE id IN ("+placeholders+")", args...)
}

// ListByUser returns the user's library, newest first.
func (r *mysqlMusicRepository) ListByUser(ctx context.Context, userID string) ([]*model.MusicFile, error) {
	return r.query(ctx, "SELECT "+musicColumns+" FROM music_files WHERE user_id = ? ORDER BY uploaded_at DESC", userID)
}

// Filter returns the user's files matching every non-empty filter field exactly.
func (r *mysqlMusicRepository) Filter(ctx context.Context, userID string, filter model.MusicFilter) ([]*model.MusicFile, error) {
	var sb strings.Builder
	sb.WriteString("SELECT " + musicColumns + " FROM music_files WHERE user_id = ?")
	args := []interface{}{userID}

	for _, c := range []struct {
		column string
		value  string
	}{
		{"title", filter.Title},
		{"artist", filter.Artist},
		{"album", filter.Album},
		{"genre", filter.Genre},
	} {
		if c.value != "" {
			sb.WriteString(" AND " + c.column + " = ?")
			args = append(args, c.value)
		}
	}
	if filter.Year != 0 {
		sb.WriteString(" AND year = ?")
		args = append(args, filter.Year)
	}
	sb.WriteString(" ORDER BY uploaded_at DESC")

	return r.query(ctx, sb.String(), args...)
}

// Update writes the mutable metadata columns of f.
func (r *mysqlMusicRepository) Update(ctx context.Context, f *model.MusicFile) error {
	query := "UPDATE music_files SET title = ?, artist = ?, album = ?, genre = ?, year = ?, duration = ?, cover_art = ? WHERE id = ?"
	res, err := r.db.ExecContext(ctx, query, f.Title, f.Artist, f.Album, f.Genre, f.Year, f.Duration, f.CoverArt, f.ID)
	if err != nil {
		return fmt.Errorf("failed to update music file %s: %w", f.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// MySQL 在值未变化时也返回 0，这里再确认一次是否存在
		existing, err := r.GetByID(ctx, f.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("music file %s: %w", f.ID, ErrNotFound)
		}
	}
	return nil
}

// Delete removes a music file record.
func (r *mysqlMusicRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM music_files WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete music file %s: %w", id, err)
	}
	return nil
}

// DistinctValues returns the distinct non-empty values of a metadata column.
func (r *mysqlMusicRepository) DistinctValues(ctx context.Context, userID, field string) ([]string, error) {
	column, ok := musicFieldColumns[field]
	if !ok {
		return nil, fmt.Errorf("field %q: %w", field, ErrInvalidField)
	}
	query := "SELECT DISTINCT " + column + " FROM music_files WHERE user_id = ? AND " + column + " <> '' ORDER BY " + column
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct %s: %w", field, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan distinct %s: %w", field, err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (r *mysqlMusicRepository) query(ctx context.Context, query string, args ...interface{}) ([]*model.MusicFile, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query music files: %w", err)
	}
	defer rows.Close()

	var files []*model.MusicFile
	for rows.Next() {
		f, err := scanMusicFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan music file row: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating music file rows: %w", err)
	}
	return files, nil
}
