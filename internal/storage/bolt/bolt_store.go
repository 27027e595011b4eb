package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/habitkit/habits/internal/storage"
	"github.com/habitkit/habits/internal/streak"
	"github.com/habitkit/habits/pkg/habit"
	"go.etcd.io/bbolt"
)

const (
	rootBucket        = "users"
	accountsBucket    = "accounts"
	usernamesBucket   = "usernames"
	externalIDsBucket = "external_ids"
	apiKeysBucket     = "api_keys"
	habitIDsBucket    = "habit_ids"

	habitsBucket      = "habits"
	completionsBucket = "completions"
)

var marker = []byte("1")

type Store struct {
	db *bbolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}

	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{rootBucket, accountsBucket, usernamesBucket, externalIDsBucket, apiKeysBucket, habitIDsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func btoi(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

// userBucket returns users/<uid>/<name>, creating it when the tx is writable.
// A nil bucket on a read-only tx means the user has no data yet.
func userBucket(tx *bbolt.Tx, userID int64, name string) (*bbolt.Bucket, error) {
	users := tx.Bucket([]byte(rootBucket))
	if !tx.Writable() {
		ub := users.Bucket(itob(userID))
		if ub == nil {
			return nil, nil
		}
		return ub.Bucket([]byte(name)), nil
	}
	ub, err := users.CreateBucketIfNotExists(itob(userID))
	if err != nil {
		return nil, err
	}
	return ub.CreateBucketIfNotExists([]byte(name))
}

func getJSON[T any](b *bbolt.Bucket, key []byte) (*T, error) {
	if b == nil {
		return nil, storage.ErrNotFound
	}
	v := b.Get(key)
	if v == nil {
		return nil, storage.ErrNotFound
	}
	var out T
	if err := json.Unmarshal(v, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func putJSON(b *bbolt.Bucket, key []byte, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, val)
}

func (s *Store) CreateUser(_ context.Context, username, passwordHash string) (*habit.User, error) {
	var u *habit.User
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		u, err = createUser(tx, username, passwordHash, "")
		return err
	})
	return u, err
}

func createUser(tx *bbolt.Tx, username, passwordHash, externalID string) (*habit.User, error) {
	names := tx.Bucket([]byte(usernamesBucket))
	if names.Get([]byte(username)) != nil {
		return nil, fmt.Errorf("username %q: %w", username, storage.ErrConflict)
	}
	accounts := tx.Bucket([]byte(accountsBucket))
	seq, err := accounts.NextSequence()
	if err != nil {
		return nil, err
	}
	u := &habit.User{
		ID:           int64(seq),
		Username:     username,
		PasswordHash: passwordHash,
		ExternalID:   externalID,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	if err := putJSON(accounts, itob(u.ID), userRecord{User: *u, PasswordHash: passwordHash}); err != nil {
		return nil, err
	}
	if err := names.Put([]byte(username), itob(u.ID)); err != nil {
		return nil, err
	}
	if externalID != "" {
		if err := tx.Bucket([]byte(externalIDsBucket)).Put([]byte(externalID), itob(u.ID)); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// userRecord persists the password hash, which habit.User hides from JSON.
type userRecord struct {
	habit.User
	PasswordHash string `json:"password_hash"`
}

func getUser(tx *bbolt.Tx, id int64) (*habit.User, error) {
	rec, err := getJSON[userRecord](tx.Bucket([]byte(accountsBucket)), itob(id))
	if err != nil {
		return nil, err
	}
	u := rec.User
	u.PasswordHash = rec.PasswordHash
	return &u, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (*habit.User, error) {
	var u *habit.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		u, err = getUser(tx, id)
		return err
	})
	return u, err
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*habit.User, error) {
	var u *habit.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket([]byte(usernamesBucket)).Get([]byte(username))
		if id == nil {
			return storage.ErrNotFound
		}
		var err error
		u, err = getUser(tx, btoi(id))
		return err
	})
	return u, err
}

func (s *Store) EnsureExternalUser(_ context.Context, externalID string) (*habit.User, error) {
	var u *habit.User
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if id := tx.Bucket([]byte(externalIDsBucket)).Get([]byte(externalID)); id != nil {
			var err error
			u, err = getUser(tx, btoi(id))
			return err
		}
		var err error
		u, err = createUser(tx, storage.ExternalUsername(externalID), "", externalID)
		return err
	})
	return u, err
}

func (s *Store) CreateHabit(_ context.Context, userID int64, in habit.Input) (*habit.Habit, error) {
	var h *habit.Habit
	err := s.db.Update(func(tx *bbolt.Tx) error {
		seq, err := tx.Bucket([]byte(habitIDsBucket)).NextSequence()
		if err != nil {
			return err
		}
		bucket, err := userBucket(tx, userID, habitsBucket)
		if err != nil {
			return err
		}
		h = &habit.Habit{
			ID:           int64(seq),
			UserID:       userID,
			Name:         in.Name,
			Category:     in.Category,
			Color:        in.Color,
			ReminderTime: in.ReminderTime,
			CreatedAt:    time.Now().UTC().Truncate(time.Second),
		}
		return putHabit(bucket, h)
	})
	return h, err
}

// habitRecord keeps the soft-delete flag, which habit.Habit hides from JSON.
type habitRecord struct {
	habit.Habit
	Deleted bool `json:"deleted"`
}

func putHabit(b *bbolt.Bucket, h *habit.Habit) error {
	return putJSON(b, itob(h.ID), habitRecord{Habit: *h, Deleted: h.Deleted})
}

// liveHabit loads a habit owned by userID that has not been deleted.
func liveHabit(tx *bbolt.Tx, userID, habitID int64) (*bbolt.Bucket, *habit.Habit, error) {
	bucket, err := userBucket(tx, userID, habitsBucket)
	if err != nil {
		return nil, nil, err
	}
	rec, err := getJSON[habitRecord](bucket, itob(habitID))
	if err != nil {
		return nil, nil, fmt.Errorf("habit %d: %w", habitID, err)
	}
	if rec.Deleted {
		return nil, nil, fmt.Errorf("habit %d: %w", habitID, storage.ErrNotFound)
	}
	h := rec.Habit
	return bucket, &h, nil
}

func (s *Store) GetHabit(_ context.Context, userID, habitID int64) (*habit.Habit, error) {
	var h *habit.Habit
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		_, h, err = liveHabit(tx, userID, habitID)
		return err
	})
	return h, err
}

func (s *Store) ListHabits(_ context.Context, userID int64) ([]habit.Habit, error) {
	out := []habit.Habit{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := userBucket(tx, userID, habitsBucket)
		if err != nil || bucket == nil {
			return err
		}
		return bucket.ForEach(func(_, v []byte) error {
			var rec habitRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if !rec.Deleted {
				out = append(out, rec.Habit)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateHabit(_ context.Context, userID, habitID int64, in habit.Input) (*habit.Habit, error) {
	var h *habit.Habit
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, cur, err := liveHabit(tx, userID, habitID)
		if err != nil {
			return err
		}
		cur.Name = in.Name
		cur.Category = in.Category
		cur.Color = in.Color
		cur.ReminderTime = in.ReminderTime
		h = cur
		return putHabit(bucket, cur)
	})
	return h, err
}

func (s *Store) DeleteHabit(_ context.Context, userID, habitID int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, cur, err := liveHabit(tx, userID, habitID)
		if err != nil {
			return err
		}
		cur.Deleted = true
		return putHabit(bucket, cur)
	})
}

func completionDays(b *bbolt.Bucket) ([]time.Time, error) {
	var days []time.Time
	if b == nil {
		return days, nil
	}
	err := b.ForEach(func(k, _ []byte) error {
		d, err := streak.Parse(string(k))
		if err != nil {
			return err
		}
		days = append(days, d)
		return nil
	})
	return days, err
}

func (s *Store) ToggleCompletion(_ context.Context, userID, habitID int64, day time.Time) (habit.ToggleResult, error) {
	res := habit.ToggleResult{HabitID: habitID, Day: streak.Format(day)}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		habits, h, err := liveHabit(tx, userID, habitID)
		if err != nil {
			return err
		}
		all, err := userBucket(tx, userID, completionsBucket)
		if err != nil {
			return err
		}
		cb, err := all.CreateBucketIfNotExists(itob(habitID))
		if err != nil {
			return err
		}

		key := []byte(res.Day)
		if cb.Get(key) != nil {
			err = cb.Delete(key)
		} else {
			err = cb.Put(key, marker)
			res.Done = true
		}
		if err != nil {
			return err
		}

		days, err := completionDays(cb)
		if err != nil {
			return err
		}
		h.Streak = streak.Run(days)
		res.Streak = h.Streak
		return putHabit(habits, h)
	})
	return res, err
}

func (s *Store) ListCompletions(_ context.Context, userID, habitID int64) ([]time.Time, error) {
	var days []time.Time
	err := s.db.View(func(tx *bbolt.Tx) error {
		if _, _, err := liveHabit(tx, userID, habitID); err != nil {
			return err
		}
		all, err := userBucket(tx, userID, completionsBucket)
		if err != nil || all == nil {
			return err
		}
		days, err = completionDays(all.Bucket(itob(habitID)))
		return err
	})
	if err != nil {
		return nil, err
	}
	return streak.Normalize(days), nil
}

func (s *Store) ListUserCompletions(ctx context.Context, userID int64, since time.Time) ([]habit.Completion, error) {
	habits, err := s.ListHabits(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []habit.Completion
	err = s.db.View(func(tx *bbolt.Tx) error {
		all, err := userBucket(tx, userID, completionsBucket)
		if err != nil || all == nil {
			return err
		}
		for _, h := range habits {
			days, err := completionDays(all.Bucket(itob(h.ID)))
			if err != nil {
				return err
			}
			for _, d := range days {
				if d.Before(since) {
					continue
				}
				out = append(out, habit.Completion{HabitID: h.ID, Day: d})
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) PutAPIKey(_ context.Context, keyHash string, userID int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		k := storage.APIKey{Hash: keyHash, UserID: userID, CreatedAt: time.Now().UTC().Truncate(time.Second)}
		return putJSON(tx.Bucket([]byte(apiKeysBucket)), []byte(keyHash), k)
	})
}

func (s *Store) GetAPIKey(_ context.Context, keyHash string) (int64, bool, error) {
	var userID int64
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		k, err := getJSON[storage.APIKey](tx.Bucket([]byte(apiKeysBucket)), []byte(keyHash))
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		userID, found = k.UserID, true
		return nil
	})
	return userID, found, err
}

func (s *Store) ListAPIKeys(_ context.Context, userID int64) ([]storage.APIKey, error) {
	out := []storage.APIKey{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(apiKeysBucket)).ForEach(func(_, v []byte) error {
			var k storage.APIKey
			if err := json.Unmarshal(v, &k); err != nil {
				return err
			}
			if k.UserID == userID {
				out = append(out, k)
			}
			return nil
		})
	})
	return out, err
}

func (s *Store) DeleteAPIKey(_ context.Context, userID int64, keyHash string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(apiKeysBucket))
		k, err := getJSON[storage.APIKey](bucket, []byte(keyHash))
		if err != nil {
			return fmt.Errorf("api key: %w", err)
		}
		if k.UserID != userID {
			return fmt.Errorf("api key: %w", storage.ErrNotFound)
		}
		return bucket.Delete([]byte(keyHash))
	})
}

var _ storage.Store = (*Store)(nil)
