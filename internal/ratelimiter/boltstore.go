package ratelimiter

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

var (
	bucketWindows     = []byte("rate_limits")
	bucketCompletions = []byte("task_completions")
)

// boltStore is the durable store backend selected for any storage path that
// isn't ":memory:" or a postgres(ql):// DSN: an embedded, file-backed KV
// store for single-binary deployments with no Postgres instance.
type boltStore struct {
	db *bbolt.DB
}

// newBoltStore opens (creating if necessary) the bbolt file at path.
func newBoltStore(path string) (*boltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("op=ratelimiter.newBoltStore open: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketWindows); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketCompletions)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("op=ratelimiter.newBoltStore migrate: %w", err)
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) WindowCount(_ context.Context, period domain.RateLimitPeriod, windowStart, windowEnd time.Time) (int64, error) {
	var count int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketWindows)
		raw := b.Get([]byte(period))
		if raw != nil {
			var w domain.RateLimitWindow
			if err := json.Unmarshal(raw, &w); err != nil {
				return err
			}
			if w.WindowStart.Equal(windowStart) && w.WindowEnd.Equal(windowEnd) {
				count = w.Count
				return nil
			}
		}
		w := domain.RateLimitWindow{Period: period, Count: 0, WindowStart: windowStart, WindowEnd: windowEnd, UpdatedAt: time.Now().UTC()}
		encoded, err := json.Marshal(w)
		if err != nil {
			return err
		}
		return b.Put([]byte(period), encoded)
	})
	if err != nil {
		return 0, fmt.Errorf("op=ratelimiter.boltStore.WindowCount: %w", err)
	}
	return count, nil
}

func (s *boltStore) IncrementWindow(_ context.Context, period domain.RateLimitPeriod, n int64, windowStart, windowEnd time.Time) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketWindows)
		w := domain.RateLimitWindow{Period: period, WindowStart: windowStart, WindowEnd: windowEnd}
		if raw := b.Get([]byte(period)); raw != nil {
			var existing domain.RateLimitWindow
			if err := json.Unmarshal(raw, &existing); err != nil {
				return err
			}
			if existing.WindowStart.Equal(windowStart) && existing.WindowEnd.Equal(windowEnd) {
				w.Count = existing.Count
			}
		}
		w.Count += n
		w.UpdatedAt = time.Now().UTC()
		encoded, err := json.Marshal(w)
		if err != nil {
			return err
		}
		return b.Put([]byte(period), encoded)
	})
	if err != nil {
		return fmt.Errorf("op=ratelimiter.boltStore.IncrementWindow: %w", err)
	}
	return nil
}

func (s *boltStore) CountCompletionsInRange(_ context.Context, start, end time.Time) (int64, error) {
	var count int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCompletions)
		return b.ForEach(func(_, raw []byte) error {
			var rec domain.TaskCompletionRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			if !rec.CompletedAt.Before(start) && !rec.CompletedAt.After(end) {
				count++
			}
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("op=ratelimiter.boltStore.CountCompletionsInRange: %w", err)
	}
	return count, nil
}

func (s *boltStore) RecordCompletion(_ context.Context, rec domain.TaskCompletionRecord) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCompletions)
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		rec.ID = int64(id)
		encoded, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(itob(id), encoded)
	})
	if err != nil {
		return fmt.Errorf("op=ratelimiter.boltStore.RecordCompletion: %w", err)
	}
	return nil
}

func (s *boltStore) Prune(_ context.Context, before time.Time) (int64, error) {
	var removed int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCompletions)
		var stale [][]byte
		err := b.ForEach(func(k, raw []byte) error {
			var rec domain.TaskCompletionRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			if rec.CompletedAt.Before(before) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("op=ratelimiter.boltStore.Prune: %w", err)
	}
	return removed, nil
}

func (s *boltStore) Close() error {
	return s.db.Close()
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
