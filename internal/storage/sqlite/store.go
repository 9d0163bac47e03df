package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"crmapp/internal/app"
)

// Store persists per-user page state in a SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open initializes a new SQLite store and runs the required migrations.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("empty database path")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=ON", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	s := &Store{db: conn, logger: logger}
	if err := s.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the database resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureDir(dbPath string) error {
	if dbPath == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ui_state (
            user_id INTEGER PRIMARY KEY,
            state TEXT NOT NULL,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_ui_state_updated ON ui_state(updated_at);`,
		`CREATE TRIGGER IF NOT EXISTS trg_ui_state_updated
            AFTER UPDATE OF state ON ui_state
            FOR EACH ROW BEGIN
                UPDATE ui_state SET updated_at = CURRENT_TIMESTAMP WHERE user_id = OLD.user_id;
            END;`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Load returns the saved state of a user. ok is false when none was saved.
func (s *Store) Load(ctx context.Context, userID int64) (app.State, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM ui_state WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return app.State{}, false, nil
	}
	if err != nil {
		return app.State{}, false, fmt.Errorf("load state: %w", err)
	}

	var st app.State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		// A record we cannot read is treated as absent so the user starts fresh.
		s.logger.Warn("discarding unreadable state", slog.Int64("user", userID), slog.String("error", err.Error()))
		return app.State{}, false, nil
	}
	return st, true, nil
}

// Save upserts the state of st.UserID.
func (s *Store) Save(ctx context.Context, st app.State) error {
	if st.UserID == 0 {
		return fmt.Errorf("save state: missing user id")
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO ui_state (user_id, state) VALUES (?, ?)
        ON CONFLICT(user_id) DO UPDATE SET state = excluded.state`, st.UserID, string(raw))
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Delete forgets the state of a user.
func (s *Store) Delete(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ui_state WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

// Prune removes states not touched since before and returns how many.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ui_state WHERE updated_at < ?`, before.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, fmt.Errorf("prune state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune state: %w", err)
	}
	return n, nil
}
