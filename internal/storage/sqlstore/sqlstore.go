// Package sqlstore implements storage.Store on database/sql, either as an
// embedded SQLite file or against a PostgreSQL server.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/habitkit/habits/internal/storage"
	"github.com/habitkit/habits/internal/streak"
	"github.com/habitkit/habits/pkg/habit"
)

type Store struct {
	db *sql.DB
	d  dialect
}

// Open connects using driver ("sqlite" or "postgres") and brings the schema
// up to date. For sqlite the dsn is a file path.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var d dialect
	switch driver {
	case DriverSQLite:
		d = sqliteDialect
		dsn = "file:" + dsn + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
	case DriverPostgres:
		d = postgresDialect
	default:
		return nil, fmt.Errorf("unknown sql driver %q", driver)
	}

	db, err := sql.Open(d.sqlDriver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// single writer; avoids SQLITE_BUSY between pooled connections
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, d: d}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) q(query string) string {
	return s.d.rebind(query)
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range s.d.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	var v int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx, s.q("INSERT INTO schema_version(version) VALUES(?)"), schemaVersion)
		return err
	case err != nil:
		return err
	case v > schemaVersion:
		return fmt.Errorf("database schema version %d is newer than supported version %d", v, schemaVersion)
	}
	return nil
}

func now() int64 {
	return time.Now().Unix()
}

// notFound maps sql.ErrNoRows to storage.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return err
}

const userColumns = "id, username, password, external_id, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*habit.User, error) {
	var (
		u         habit.User
		external  sql.NullString
		createdAt int64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &external, &createdAt); err != nil {
		return nil, err
	}
	u.ExternalID = external.String
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &u, nil
}

func (s *Store) insertUser(ctx context.Context, username, passwordHash string, externalID sql.NullString) (*habit.User, error) {
	row := s.db.QueryRowContext(ctx,
		s.q("INSERT INTO users (username, password, external_id, created_at) VALUES (?, ?, ?, ?) RETURNING "+userColumns),
		username, passwordHash, externalID, now())
	u, err := scanUser(row)
	if err != nil {
		if s.d.uniqueErr(err) {
			return nil, fmt.Errorf("username %q: %w", username, storage.ErrConflict)
		}
		return nil, err
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*habit.User, error) {
	return s.insertUser(ctx, username, passwordHash, sql.NullString{})
}

func (s *Store) GetUser(ctx context.Context, id int64) (*habit.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, s.q("SELECT "+userColumns+" FROM users WHERE id = ?"), id))
	return u, notFound(err, "user")
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*habit.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, s.q("SELECT "+userColumns+" FROM users WHERE username = ?"), username))
	return u, notFound(err, "user")
}

func (s *Store) EnsureExternalUser(ctx context.Context, externalID string) (*habit.User, error) {
	lookup := func() (*habit.User, error) {
		return scanUser(s.db.QueryRowContext(ctx, s.q("SELECT "+userColumns+" FROM users WHERE external_id = ?"), externalID))
	}
	u, err := lookup()
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	u, err = s.insertUser(ctx, storage.ExternalUsername(externalID), "", sql.NullString{String: externalID, Valid: true})
	if errors.Is(err, storage.ErrConflict) {
		// lost a race with a concurrent first login
		u, err = lookup()
		return u, notFound(err, "external user")
	}
	return u, err
}

const habitColumns = "id, user_id, name, category, color, reminder_time, streak, created_at"

func scanHabit(row rowScanner) (*habit.Habit, error) {
	var (
		h         habit.Habit
		reminder  sql.NullString
		createdAt int64
	)
	if err := row.Scan(&h.ID, &h.UserID, &h.Name, &h.Category, &h.Color, &reminder, &h.Streak, &createdAt); err != nil {
		return nil, err
	}
	h.ReminderTime = reminder.String
	h.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &h, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *Store) CreateHabit(ctx context.Context, userID int64, in habit.Input) (*habit.Habit, error) {
	row := s.db.QueryRowContext(ctx,
		s.q("INSERT INTO habits (name, user_id, category, color, reminder_time, created_at) VALUES (?, ?, ?, ?, ?, ?) RETURNING "+habitColumns),
		in.Name, userID, in.Category, in.Color, nullable(in.ReminderTime), now())
	return scanHabit(row)
}

func (s *Store) GetHabit(ctx context.Context, userID, habitID int64) (*habit.Habit, error) {
	h, err := scanHabit(s.db.QueryRowContext(ctx,
		s.q("SELECT "+habitColumns+" FROM habits WHERE id = ? AND user_id = ? AND is_deleted = FALSE"),
		habitID, userID))
	return h, notFound(err, fmt.Sprintf("habit %d", habitID))
}

func (s *Store) ListHabits(ctx context.Context, userID int64) ([]habit.Habit, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q("SELECT "+habitColumns+" FROM habits WHERE user_id = ? AND is_deleted = FALSE ORDER BY id"),
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []habit.Habit{}
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	return out, rows.Err()
}

func (s *Store) UpdateHabit(ctx context.Context, userID, habitID int64, in habit.Input) (*habit.Habit, error) {
	h, err := scanHabit(s.db.QueryRowContext(ctx,
		s.q(`UPDATE habits SET name = ?, category = ?, color = ?, reminder_time = ?
			WHERE id = ? AND user_id = ? AND is_deleted = FALSE RETURNING `+habitColumns),
		in.Name, in.Category, in.Color, nullable(in.ReminderTime), habitID, userID))
	return h, notFound(err, fmt.Sprintf("habit %d", habitID))
}

func (s *Store) DeleteHabit(ctx context.Context, userID, habitID int64) error {
	res, err := s.db.ExecContext(ctx,
		s.q("UPDATE habits SET is_deleted = TRUE WHERE id = ? AND user_id = ? AND is_deleted = FALSE"),
		habitID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("habit %d: %w", habitID, storage.ErrNotFound)
	}
	return nil
}

// ToggleCompletion flips the completion for day and recomputes the stored
// streak from the full history inside one transaction.
func (s *Store) ToggleCompletion(ctx context.Context, userID, habitID int64, day time.Time) (habit.ToggleResult, error) {
	res := habit.ToggleResult{HabitID: habitID, Day: streak.Format(day)}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx,
		s.q("SELECT id FROM habits WHERE id = ? AND user_id = ? AND is_deleted = FALSE"+s.d.lockSuffix),
		habitID, userID).Scan(&id)
	if err != nil {
		return res, notFound(err, fmt.Sprintf("habit %d", habitID))
	}

	dayArg := s.d.dayArg(streak.Day(day, time.UTC))
	del, err := tx.ExecContext(ctx,
		s.q("DELETE FROM habit_completions WHERE habit_id = ? AND completed_on = ?"), habitID, dayArg)
	if err != nil {
		return res, err
	}
	removed, err := del.RowsAffected()
	if err != nil {
		return res, err
	}
	if removed == 0 {
		if _, err := tx.ExecContext(ctx,
			s.q("INSERT INTO habit_completions (habit_id, completed_on) VALUES (?, ?)"), habitID, dayArg); err != nil {
			return res, err
		}
		res.Done = true
	}

	days, err := s.completionDays(ctx, tx, habitID)
	if err != nil {
		return res, err
	}
	res.Streak = streak.Run(days)

	if _, err := tx.ExecContext(ctx, s.q("UPDATE habits SET streak = ? WHERE id = ?"), res.Streak, habitID); err != nil {
		return res, err
	}
	return res, tx.Commit()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) completionDays(ctx context.Context, q querier, habitID int64) ([]time.Time, error) {
	rows, err := q.QueryContext(ctx,
		s.q("SELECT completed_on FROM habit_completions WHERE habit_id = ? ORDER BY completed_on DESC"), habitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var d dayValue
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		days = append(days, d.t)
	}
	return days, rows.Err()
}

func (s *Store) ListCompletions(ctx context.Context, userID, habitID int64) ([]time.Time, error) {
	if _, err := s.GetHabit(ctx, userID, habitID); err != nil {
		return nil, err
	}
	return s.completionDays(ctx, s.db, habitID)
}

func (s *Store) ListUserCompletions(ctx context.Context, userID int64, since time.Time) ([]habit.Completion, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT hc.habit_id, hc.completed_on
		FROM habit_completions hc
		JOIN habits h ON h.id = hc.habit_id
		WHERE h.user_id = ? AND h.is_deleted = FALSE AND hc.completed_on >= ?
		ORDER BY hc.completed_on DESC, hc.habit_id`),
		userID, s.d.dayArg(streak.Day(since, time.UTC)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []habit.Completion
	for rows.Next() {
		var (
			c habit.Completion
			d dayValue
		)
		if err := rows.Scan(&c.HabitID, &d); err != nil {
			return nil, err
		}
		c.Day = d.t
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) PutAPIKey(ctx context.Context, keyHash string, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		s.q("INSERT INTO api_keys (key_hash, user_id, created_at) VALUES (?, ?, ?)"), keyHash, userID, now())
	if err != nil && s.d.uniqueErr(err) {
		return fmt.Errorf("api key: %w", storage.ErrConflict)
	}
	return err
}

func (s *Store) GetAPIKey(ctx context.Context, keyHash string) (int64, bool, error) {
	var userID int64
	err := s.db.QueryRowContext(ctx, s.q("SELECT user_id FROM api_keys WHERE key_hash = ?"), keyHash).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return userID, true, nil
}

func (s *Store) ListAPIKeys(ctx context.Context, userID int64) ([]storage.APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q("SELECT key_hash, user_id, created_at FROM api_keys WHERE user_id = ? ORDER BY created_at, key_hash"), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []storage.APIKey{}
	for rows.Next() {
		var (
			k         storage.APIKey
			createdAt int64
		)
		if err := rows.Scan(&k.Hash, &k.UserID, &createdAt); err != nil {
			return nil, err
		}
		k.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) DeleteAPIKey(ctx context.Context, userID int64, keyHash string) error {
	res, err := s.db.ExecContext(ctx, s.q("DELETE FROM api_keys WHERE key_hash = ? AND user_id = ?"), keyHash, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("api key: %w", storage.ErrNotFound)
	}
	return nil
}

var _ storage.Store = (*Store)(nil)
