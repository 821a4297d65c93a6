package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"library-circulation/internal/config"
)

// Connect opens a pooled client and checks the server is reachable.
func Connect(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		PoolTimeout:  cfg.PoolTimeout,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// Store is the fast state store: availability counters, ledgers, expiry indexes and streams.
type Store struct {
	rdb     *goredis.Client
	scripts *scriptSet
	now     func() time.Time

	reservationTTL  time.Duration
	loanTTL         time.Duration
	maxReservations int
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLedgerRules sets reservation and loan windows and the reservation quota.
func WithLedgerRules(cfg config.LedgerConfig) Option {
	return func(s *Store) {
		s.reservationTTL = cfg.ReservationTTL
		s.loanTTL = cfg.LoanTTL
		s.maxReservations = cfg.MaxActiveReservations
	}
}

// NewStore wraps an open client.
func NewStore(rdb *goredis.Client, opts ...Option) *Store {
	s := &Store{
		rdb:             rdb,
		scripts:         loadScripts(),
		now:             time.Now,
		reservationTTL:  3 * 24 * time.Hour,
		loanTTL:         30 * 24 * time.Hour,
		maxReservations: 5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadScripts registers every script on the server ahead of first use.
func (s *Store) LoadScripts(ctx context.Context) error {
	for _, sc := range s.scripts.all() {
		if err := sc.lua.Load(ctx, s.rdb).Err(); err != nil {
			return fmt.Errorf("load script %s: %w", sc.name, err)
		}
	}
	return nil
}

// Client exposes the underlying connection.
func (s *Store) Client() *goredis.Client {
	return s.rdb
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
