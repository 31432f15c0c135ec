package cashcount

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"budgetbook/internal/core"
	applog "budgetbook/internal/log"
)

// Store persists worksheets until the end of their day.
type Store interface {
	// Load returns the worksheet of the project for day, or an empty one.
	Load(ctx context.Context, projectID string, day core.Date) (Worksheet, error)
	Save(ctx context.Context, w Worksheet) error
	Reset(ctx context.Context, projectID string, day core.Date) error
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// RedisStore keeps each worksheet as a JSON string that expires at the next
// local midnight.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
	logger *applog.Logger
}

// NewRedisStore connects to the server at url (redis:// or rediss://).
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisStoreWithClient(client), nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		now:    time.Now,
		logger: applog.ForComponent(applog.ComponentCashCount),
	}
}

func (s *RedisStore) Load(ctx context.Context, projectID string, day core.Date) (Worksheet, error) {
	data, err := s.client.Get(ctx, Key(projectID, day)).Bytes()
	if errors.Is(err, redis.Nil) {
		return New(projectID, day), nil
	}
	if err != nil {
		s.logger.Failure(ctx, "Failed to load cash count", err, applog.OpRead, projectID)
		return Worksheet{}, fmt.Errorf("load cash count: %w", err)
	}
	return decode(data, projectID, day)
}

func (s *RedisStore) Save(ctx context.Context, w Worksheet) error {
	now := s.now()
	w.UpdatedAt = now
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode cash count: %w", err)
	}
	if err := s.client.Set(ctx, Key(w.ProjectID, w.Day), data, untilMidnight(now)).Err(); err != nil {
		s.logger.Failure(ctx, "Failed to save cash count", err, applog.OpUpdate, w.ProjectID)
		return fmt.Errorf("save cash count: %w", err)
	}
	return nil
}

func (s *RedisStore) Reset(ctx context.Context, projectID string, day core.Date) error {
	if err := s.client.Del(ctx, Key(projectID, day)).Err(); err != nil {
		return fmt.Errorf("reset cash count: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// decode tolerates a payload written for another day or project by
// returning an empty worksheet.
func decode(data []byte, projectID string, day core.Date) (Worksheet, error) {
	var w Worksheet
	if err := json.Unmarshal(data, &w); err != nil {
		return Worksheet{}, fmt.Errorf("decode cash count: %w", err)
	}
	if w.ProjectID != projectID || w.Day.Compare(day) != 0 {
		return New(projectID, day), nil
	}
	if w.Denominations == nil {
		w.Denominations = map[int64]int{}
	}
	if w.Entries == nil {
		w.Entries = []Entry{}
	}
	return w, nil
}

// MemoryStore has the same contract as RedisStore within one process.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	data      []byte
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]memoryItem{}, now: time.Now}
}

// WithClock replaces the time source.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Load(_ context.Context, projectID string, day core.Date) (Worksheet, error) {
	s.mu.Lock()
	item, ok := s.items[Key(projectID, day)]
	if ok && !s.now().Before(item.expiresAt) {
		delete(s.items, Key(projectID, day))
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return New(projectID, day), nil
	}
	return decode(item.data, projectID, day)
}

func (s *MemoryStore) Save(_ context.Context, w Worksheet) error {
	now := s.now()
	w.UpdatedAt = now
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode cash count: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, item := range s.items {
		if !now.Before(item.expiresAt) {
			delete(s.items, key)
		}
	}
	s.items[Key(w.ProjectID, w.Day)] = memoryItem{data: data, expiresAt: now.Add(untilMidnight(now))}
	return nil
}

func (s *MemoryStore) Reset(_ context.Context, projectID string, day core.Date) error {
	s.mu.Lock()
	delete(s.items, Key(projectID, day))
	s.mu.Unlock()
	return nil
}
