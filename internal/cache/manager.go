// Package cache provides a content-addressed, graceful-degradation cache
// for provider search responses. This package is internal and should not be
// imported by external projects.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrCacheMiss is a sentinel error for reporting a cache miss as an error.
// Get itself reports a miss as (nil, false) and does not return it.
var ErrCacheMiss = fmt.Errorf("cache miss")

// IsCacheMiss reports whether err is (or wraps) ErrCacheMiss.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Config configures the Manager's Redis connection.
type Config struct {
	Addr         string        `yaml:"addr" json:"addr"`
	Password     string        `yaml:"password" json:"password"`
	DB           int           `yaml:"db" json:"db"`
	DefaultTTL   time.Duration `yaml:"default_ttl" json:"default_ttl"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" json:"min_idle_conns"`
}

// DefaultConfig returns sane defaults matching a 24h provider-response TTL.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		DB:           0,
		DefaultTTL:   24 * time.Hour,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// Manager is a content-addressed cache of provider search responses.
//
// Construction never fails on a bad Redis connection: the manager marks
// itself unavailable and every subsequent Get/Set becomes a no-op/MISS,
// per the graceful-degradation contract — a cache outage must never turn
// into a pipeline failure.
type Manager struct {
	redis     *redis.Client
	config    Config
	logger    *zap.Logger
	mu        sync.RWMutex
	available bool
	closed    bool

	statsMu sync.Mutex
	hits    uint64
	misses  uint64
}

// NewManager creates a Manager. It pings Redis once; a failed ping leaves
// the manager in the degraded (unavailable) state rather than returning an
// error, since callers should be able to run with no cache at all.
func NewManager(config Config, logger *zap.Logger) *Manager {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	log := logger.With(zap.String("component", "cache"))

	m := &Manager{
		redis:  client,
		config: config,
		logger: log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("cache unavailable at startup, degrading to no-op", zap.Error(err))
		m.available = false
		return m
	}

	m.available = true
	log.Info("cache manager initialized", zap.String("addr", config.Addr))
	return m
}

// Key derives the content-addressed key for a provider query: the first 16
// hex characters of sha256(provider|query|sorted params), matching the
// original research assistant's rc:{prefix}:{sha256[:16]} convention.
func Key(prefix, provider, query string, params map[string]any) string {
	var b strings.Builder
	b.WriteString(provider)
	b.WriteByte('|')
	b.WriteString(strings.ToLower(strings.TrimSpace(query)))
	if len(params) > 0 {
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "|%s=%v", k, params[k])
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s:%s", prefix, hex.EncodeToString(sum[:])[:16])
}

// Get returns the raw cached bytes for key. A nil, false result means
// either a real miss or a degraded (unavailable) cache — callers must
// treat both identically and fall through to the live provider call.
func (m *Manager) Get(ctx context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed || !m.available {
		return nil, false
	}

	val, err := m.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			m.logger.Warn("cache get failed, treating as miss", zap.String("key", key), zap.Error(err))
		}
		m.recordMiss()
		return nil, false
	}

	m.recordHit()
	return val, true
}

// GetJSON is Get plus json.Unmarshal into dest.
func (m *Manager) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	val, ok := m.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(val, dest); err != nil {
		m.logger.Warn("cache value unmarshal failed, treating as miss", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Set stores value under key with ttl. ttl <= 0 means "do not store" and
// is a no-op, not an error. Failures are logged and swallowed: a cache
// write failure must never fail the caller's operation.
func (m *Manager) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed || !m.available {
		return
	}
	if ttl <= 0 {
		return
	}

	if err := m.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		m.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// SetJSON marshals value to JSON and stores it via Set.
func (m *Manager) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		m.logger.Warn("cache value marshal failed, skipping set", zap.String("key", key), zap.Error(err))
		return
	}
	m.Set(ctx, key, data, ttl)
}

// Delete removes keys. Errors are logged and swallowed.
func (m *Manager) Delete(ctx context.Context, keys ...string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed || !m.available || len(keys) == 0 {
		return
	}
	if err := m.redis.Del(ctx, keys...).Err(); err != nil {
		m.logger.Warn("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// Available reports whether the cache is currently backed by a live Redis
// connection, for diagnostics and test assertions.
func (m *Manager) Available() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.available && !m.closed
}

// Close shuts down the underlying Redis connection. Safe to call multiple
// times.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.logger.Info("closing cache manager")
	if m.redis != nil {
		return m.redis.Close()
	}
	return nil
}

// Stats reports cumulative hit/miss counters since construction.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Available bool   `json:"available"`
}

// GetStats returns a snapshot of cache hit/miss counters.
func (m *Manager) GetStats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return Stats{Hits: m.hits, Misses: m.misses, Available: m.Available()}
}

func (m *Manager) recordHit() {
	m.statsMu.Lock()
	m.hits++
	m.statsMu.Unlock()
}

func (m *Manager) recordMiss() {
	m.statsMu.Lock()
	m.misses++
	m.statsMu.Unlock()
}
