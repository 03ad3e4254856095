// internal/store/sqlite.go
//
// SQLite implementation of the Store interface.
// Responsibilities:
//   - Opening the database file with safe defaults (WAL, busy timeout, foreign keys).
//   - Applying the embedded migrations (assets/sql/*.sql), recorded in _migrations.
//   - Round history (rounds, round_intents), results + leaderboard, users.
//
// Timestamps are stored as RFC3339 text in UTC.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordle-live/assets"
	"github.com/robalobadob/wordle-live/internal/game"
)

var _ Store = (*SQLite)(nil)

// SQLite is a Store backed by a SQLite database file.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (and creates if missing) the database at path and migrates it.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := migrate(db, assets.Migrations()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db, now: time.Now}, nil
}

// DB exposes the underlying handle (health checks, tests).
func (s *SQLite) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// openDB ensures the parent directory exists for relative paths (e.g. ./data/app.db)
// and configures busy timeout, WAL journaling and foreign keys.
func openDB(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	return db, nil
}

// migrate applies every *.sql file of fsys in lexical order, once.
// Scripts that manage their own transaction (BEGIN TRANSACTION, or turning
// foreign keys off) run outside of the per-file transaction.
func migrate(db *sql.DB, fsys fs.FS) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS _migrations (name TEXT PRIMARY KEY);`); err != nil {
		return fmt.Errorf("create _migrations: %w", err)
	}

	var files []string
	if err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), ".sql") {
			files = append(files, path)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("walk migrations: %w", err)
	}
	sort.Strings(files)

	for _, f := range files {
		var done int
		err := db.QueryRow(`SELECT 1 FROM _migrations WHERE name=?`, f).Scan(&done)
		if err == nil {
			log.Debug().Str("migration", f).Msg("already applied")
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("query _migrations: %w", err)
		}

		b, err := fs.ReadFile(fsys, f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}
		text := string(b)
		upper := strings.ToUpper(text)
		selfManaged := strings.Contains(upper, "BEGIN TRANSACTION") ||
			strings.Contains(upper, "PRAGMA FOREIGN_KEYS=OFF") ||
			strings.Contains(upper, "PRAGMA FOREIGN_KEYS = OFF")

		if selfManaged {
			if _, err := db.Exec(text); err != nil {
				return fmt.Errorf("apply %s: %w", f, err)
			}
			if _, err := db.Exec(`INSERT INTO _migrations(name) VALUES (?)`, f); err != nil {
				return fmt.Errorf("record %s: %w", f, err)
			}
			log.Info().Str("migration", f).Msg("applied (self-managed)")
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(text); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", f, err)
		}
		if _, err := tx.Exec(`INSERT INTO _migrations(name) VALUES (?)`, f); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", f, err)
		}
		log.Info().Str("migration", f).Msg("applied")
	}
	return nil
}

/* ------------------------------ history ------------------------------- */

func (s *SQLite) StartRound(ctx context.Context, info RoundInfo) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO rounds (room_id, round_no, target, started_at)
        VALUES (?, ?, ?, ?)`,
		info.RoomID, info.Round, info.Target, formatTime(info.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("start round %s/%d: %w", info.RoomID, info.Round, err)
	}
	return nil
}

func (s *SQLite) LatestRound(ctx context.Context, roomID string) (RoundInfo, error) {
	var (
		info    RoundInfo
		started string
	)
	err := s.db.QueryRowContext(ctx, `
        SELECT room_id, round_no, target, started_at
        FROM rounds WHERE room_id=?
        ORDER BY round_no DESC LIMIT 1`, roomID,
	).Scan(&info.RoomID, &info.Round, &info.Target, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return RoundInfo{}, ErrNotFound
	}
	if err != nil {
		return RoundInfo{}, err
	}
	info.StartedAt = parseTime(started)
	return info, nil
}

func (s *SQLite) AppendIntent(ctx context.Context, roomID string, round int, e game.Entry) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO round_intents (id, room_id, round_no, seq, kind, letter, actor, at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), roomID, round, e.Seq, string(e.Kind), e.Letter, e.Actor, formatTime(e.At),
	)
	if err != nil {
		return fmt.Errorf("append intent %s/%d#%d: %w", roomID, round, e.Seq, err)
	}
	return nil
}

func (s *SQLite) LoadIntents(ctx context.Context, roomID string, round int) ([]game.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT seq, kind, letter, actor, at
        FROM round_intents
        WHERE room_id=? AND round_no=?
        ORDER BY seq ASC`, roomID, round,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []game.Entry{}
	for rows.Next() {
		var (
			e        game.Entry
			kind, at string
		)
		if err := rows.Scan(&e.Seq, &kind, &e.Letter, &e.Actor, &at); err != nil {
			return nil, err
		}
		e.Kind = game.EntryKind(kind)
		e.At = parseTime(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveResult respects UNIQUE(room_id, round_no); a second insert is ignored.
func (s *SQLite) SaveResult(ctx context.Context, r Result) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO round_results
            (id, room_id, round_no, date, target, winner, outcome, guesses, elapsed_ms, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RoomID, r.Round, r.Date, r.Target, r.Winner, string(r.Outcome),
		r.Guesses, r.ElapsedMs, formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save result %s/%d: %w", r.RoomID, r.Round, err)
	}
	return nil
}

// Leaderboard is ordered by elapsed time, then guesses, then created_at.
func (s *SQLite) Leaderboard(ctx context.Context, date string, limit int) ([]LeaderboardRow, error) {
	if date == "" {
		return []LeaderboardRow{}, nil
	}
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT winner, room_id, guesses, elapsed_ms
        FROM round_results
        WHERE date=? AND outcome=?
        ORDER BY elapsed_ms ASC, guesses ASC, created_at ASC
        LIMIT ?`, date, string(game.PhaseWon), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []LeaderboardRow{}
	for rows.Next() {
		var r LeaderboardRow
		if err := rows.Scan(&r.Winner, &r.RoomID, &r.Guesses, &r.ElapsedMs); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

/* ------------------------------- users -------------------------------- */

func (s *SQLite) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    s.now().UTC().Truncate(time.Second),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES (?,?,?,?)`,
		u.ID, u.Username, u.PasswordHash, formatTime(u.CreatedAt),
	)
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *SQLite) UserByID(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
        SELECT id, username, password_hash, created_at, games_played, wins, streak
        FROM users WHERE id=?`, id))
}

func (s *SQLite) UserByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
        SELECT id, username, password_hash, created_at, games_played, wins, streak
        FROM users WHERE lower(username)=lower(?)`, username))
}

// RecordOutcome increments games played and updates wins and streak in one transaction.
func (s *SQLite) RecordOutcome(ctx context.Context, username string, won bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		id               string
		gp, wins, streak int
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, games_played, wins, streak FROM users WHERE lower(username)=lower(?)`, username,
	).Scan(&id, &gp, &wins, &streak)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	gp++
	if won {
		wins++
		streak++
	} else {
		streak = 0
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET games_played=?, wins=?, streak=? WHERE id=?`, gp, wins, streak, id,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// scanUser converts a *sql.Row into a User.
func scanUser(row *sql.Row) (*User, error) {
	var (
		u       User
		created string
	)
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &created, &u.GamesPlayed, &u.Wins, &u.Streak)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = parseTime(created)
	return &u, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

// parseTime parses RFC3339 timestamps; on error returns zero time.
func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
