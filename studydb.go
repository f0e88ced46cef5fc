package scripturepath

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// StudyDB is a StudyRepository backed by SQLite
type StudyDB struct {
	db *sql.DB
}

// OpenStudyDB opens (creating if needed) the database at dbPath and makes
// sure its tables exist.
func OpenStudyDB(dbPath string) (*StudyDB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids "database is locked".
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sdb := &StudyDB{db: db}
	if err := sdb.CreateTables(); err != nil {
		db.Close()
		return nil, err
	}
	return sdb, nil
}

// Close closes the database connection
func (db *StudyDB) Close() error {
	return db.db.Close()
}

// CreateTables creates the necessary tables if they don't exist
func (db *StudyDB) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS studies (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL,
			theme TEXT,
			passages TEXT,
			difficulty TEXT,
			length TEXT,
			created_at INTEGER NOT NULL,
			is_public INTEGER NOT NULL DEFAULT 0,
			is_locked INTEGER NOT NULL DEFAULT 0,
			image_url TEXT,
			views INTEGER NOT NULL DEFAULT 0,
			likes INTEGER NOT NULL DEFAULT 0,
			shares INTEGER NOT NULL DEFAULT 0,
			clones INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS studies_owner ON studies(owner_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS sections (
			study_id TEXT NOT NULL,
			section_id TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			needs_regeneration INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (study_id, section_id),
			FOREIGN KEY (study_id) REFERENCES studies(id)
		)`,
	}

	for _, query := range queries {
		if _, err := db.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute %s: %w", query, err)
		}
	}
	return nil
}

const studyColumns = "id, owner_id, title, theme, passages, difficulty, length, created_at, is_public, is_locked, image_url, views, likes, shares, clones"

// Put inserts or replaces a study and all its sections in one transaction.
func (db *StudyDB) Put(ctx context.Context, study *Study) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	m := study.Metadata
	_, err = tx.ExecContext(ctx,
		`INSERT INTO studies (`+studyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id, title = excluded.title, theme = excluded.theme,
			passages = excluded.passages, difficulty = excluded.difficulty, length = excluded.length,
			created_at = excluded.created_at, is_public = excluded.is_public, is_locked = excluded.is_locked,
			image_url = excluded.image_url, views = excluded.views, likes = excluded.likes,
			shares = excluded.shares, clones = excluded.clones`,
		study.ID, m.OwnerID, m.Title, m.Theme, m.Passages, string(m.Difficulty), string(m.Length),
		m.CreatedAt.UnixMilli(), m.IsPublic, m.IsLocked, m.ImageURL,
		m.Stats.Views, m.Stats.Likes, m.Stats.Shares, m.Stats.Clones,
	)
	if err != nil {
		return fmt.Errorf("failed to store study: %w", err)
	}

	for _, sec := range study.Sections.View() {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sections (study_id, section_id, title, content, needs_regeneration) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(study_id, section_id) DO UPDATE SET
				title = excluded.title, content = excluded.content, needs_regeneration = excluded.needs_regeneration`,
			study.ID, sec.SectionID, sec.Title, sec.Content, sec.NeedsRegeneration,
		)
		if err != nil {
			return fmt.Errorf("failed to store section %s: %w", sec.SectionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit study: %w", err)
	}
	return nil
}

// Get retrieves a study by ID
func (db *StudyDB) Get(ctx context.Context, id string) (*Study, error) {
	row := db.db.QueryRowContext(ctx, "SELECT "+studyColumns+" FROM studies WHERE id = ?", id)
	study, err := scanStudy(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStudyNotFound
		}
		return nil, fmt.Errorf("failed to get study: %w", err)
	}
	if err := db.loadSections(ctx, study); err != nil {
		return nil, err
	}
	return study, nil
}

// Delete removes a study and its sections
func (db *StudyDB) Delete(ctx context.Context, id string) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM sections WHERE study_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete sections: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM studies WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete study: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrStudyNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// ListByOwner retrieves an owner's studies, newest first
func (db *StudyDB) ListByOwner(ctx context.Context, ownerID string) ([]*Study, error) {
	return db.queryStudies(ctx,
		"SELECT "+studyColumns+" FROM studies WHERE owner_id = ? ORDER BY created_at DESC, id",
		ownerID)
}

// ListPublic retrieves public studies by score, optionally limited by count
func (db *StudyDB) ListPublic(ctx context.Context, limit int) ([]*Study, error) {
	query := "SELECT " + studyColumns + " FROM studies WHERE is_public = 1 " +
		"ORDER BY (views + 2*likes + 3*shares) DESC, created_at DESC, id"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return db.queryStudies(ctx, query)
}

func (db *StudyDB) queryStudies(ctx context.Context, query string, args ...interface{}) ([]*Study, error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get studies: %w", err)
	}
	defer rows.Close()

	var studies []*Study
	for rows.Next() {
		study, err := scanStudy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan study: %w", err)
		}
		studies = append(studies, study)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating studies: %w", err)
	}
	rows.Close()

	for _, study := range studies {
		if err := db.loadSections(ctx, study); err != nil {
			return nil, err
		}
	}
	return studies, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStudy(row rowScanner) (*Study, error) {
	var (
		s                    Study
		theme, passages, img sql.NullString
		difficulty, length   sql.NullString
		createdAt            int64
	)
	m := &s.Metadata
	err := row.Scan(&s.ID, &m.OwnerID, &m.Title, &theme, &passages, &difficulty, &length,
		&createdAt, &m.IsPublic, &m.IsLocked, &img,
		&m.Stats.Views, &m.Stats.Likes, &m.Stats.Shares, &m.Stats.Clones)
	if err != nil {
		return nil, err
	}
	m.Theme = theme.String
	m.Passages = passages.String
	m.Difficulty = Difficulty(difficulty.String)
	m.Length = Length(length.String)
	m.ImageURL = img.String
	m.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &s, nil
}

func (db *StudyDB) loadSections(ctx context.Context, study *Study) error {
	rows, err := db.db.QueryContext(ctx,
		"SELECT section_id, title, content, needs_regeneration FROM sections WHERE study_id = ?",
		study.ID)
	if err != nil {
		return fmt.Errorf("failed to get sections: %w", err)
	}
	defer rows.Close()

	store := NewSectionStore()
	seen := make(map[string]bool)
	for rows.Next() {
		var sec Section
		if err := rows.Scan(&sec.SectionID, &sec.Title, &sec.Content, &sec.NeedsRegeneration); err != nil {
			return fmt.Errorf("failed to scan section: %w", err)
		}
		store.set(sec)
		seen[sec.SectionID] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating sections: %w", err)
	}
	for _, def := range SectionDefinitions {
		if !seen[def.ID] {
			_ = store.MarkNeedsRegeneration(def.ID)
		}
	}
	if study.Metadata.IsLocked {
		store.Freeze()
	}
	study.Sections = store
	return nil
}
