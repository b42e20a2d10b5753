package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"storyart/internal/kv"
	"storyart/internal/logging"
	"storyart/internal/services"
)

// latestProbeDepth bounds how many index entries GetLatest walks before
// falling back to a prefix scan.
const latestProbeDepth = 16

// Store persists sessions under timestamp keys with a sorted index for fast
// "latest" lookup. Distinct namespaces keep unrelated session families apart.
type Store struct {
	kv        *kv.Store
	namespace string
	ttl       time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	lastTS int64
}

// NewStore constructs a session store over the supplied KV backend.
func NewStore(backend *kv.Store, namespace string, ttl time.Duration, logger *slog.Logger) *Store {
	if namespace == "" {
		namespace = "storyart"
	}
	return &Store{
		kv:        backend,
		namespace: namespace,
		ttl:       ttl,
		logger:    logging.NewComponentLogger(logger, "session-store"),
		now:       time.Now,
	}
}

// SetClock overrides the time source (used in tests).
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Namespace returns the key prefix this store writes under.
func (s *Store) Namespace() string {
	return s.namespace
}

func (s *Store) keyPrefix() string {
	return s.namespace + ":session:"
}

func (s *Store) indexKey() string {
	return s.namespace + ":sessions:index"
}

// Key builds the payload key for a timestamp.
func (s *Store) Key(ts int64) string {
	return fmt.Sprintf("%s%d", s.keyPrefix(), ts)
}

// parseKeyTimestamp extracts the millisecond timestamp from a session key.
func (s *Store) parseKeyTimestamp(key string) (int64, bool) {
	rest, ok := strings.CutPrefix(key, s.keyPrefix())
	if !ok {
		return 0, false
	}
	ts, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

// nextTimestamp returns a strictly increasing millisecond timestamp so two
// saves within the same millisecond never collide on a key.
func (s *Store) nextTimestamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.now().UnixMilli()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	return ts
}

// Save writes an immutable snapshot and returns its key. The payload write
// is authoritative; a failed index insert only degrades listing to a scan,
// so it is logged and swallowed.
func (s *Store) Save(ctx context.Context, sess *Session) (string, error) {
	if sess == nil {
		return "", services.Wrap(services.ErrPrecondition, "session-store", "save", "nil session", nil)
	}

	ts := s.nextTimestamp()
	snapshot := *sess
	snapshot.SavedAt = time.UnixMilli(ts).UTC()

	payload, err := json.Marshal(&snapshot)
	if err != nil {
		return "", services.Wrap(services.ErrPermanent, "session-store", "save", "encode session", err)
	}

	key := s.Key(ts)
	if err := s.kv.Set(ctx, key, payload, s.ttl); err != nil {
		return "", services.Wrap(services.ErrSessionUnavailable, "session-store", "save", "write payload", err)
	}

	if err := s.kv.IndexInsert(ctx, s.indexKey(), ts, key); err != nil {
		s.logger.Warn("session index write failed; listing degrades to scan",
			logging.String(logging.FieldSessionKey, key),
			logging.Error(err),
		)
	}

	s.logger.Info("session saved",
		logging.String(logging.FieldSessionKey, key),
		logging.Int("beats", len(snapshot.Beats)),
		logging.Int("results", len(snapshot.Results)),
	)
	return key, nil
}

// GetByKey fetches one session. Returns nil when absent or expired.
func (s *Store) GetByKey(ctx context.Context, key string) (*Session, error) {
	payload, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, services.Wrap(services.ErrSessionUnavailable, "session-store", "get", key, err)
	}
	if payload == nil {
		return nil, nil
	}
	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, services.Wrap(services.ErrPermanent, "session-store", "get", "decode "+key, err)
	}
	return &sess, nil
}

// GetLatest returns the most recently saved session and its key. An index
// hit whose payload expired between reads is treated as a cache miss and the
// walk continues to the next-highest entry. An empty or stale index falls
// back to a best-effort prefix scan.
func (s *Store) GetLatest(ctx context.Context) (*Session, string, error) {
	entries, err := s.kv.IndexRev(ctx, s.indexKey(), latestProbeDepth)
	if err != nil {
		return nil, "", services.Wrap(services.ErrSessionUnavailable, "session-store", "latest", "read index", err)
	}
	for _, entry := range entries {
		sess, err := s.GetByKey(ctx, entry.Member)
		if err != nil {
			return nil, "", err
		}
		if sess != nil {
			return sess, entry.Member, nil
		}
	}
	return s.latestByScan(ctx)
}

func (s *Store) latestByScan(ctx context.Context) (*Session, string, error) {
	keys, err := s.kv.KeysByPrefix(ctx, s.keyPrefix())
	if err != nil {
		return nil, "", services.Wrap(services.ErrSessionUnavailable, "session-store", "latest", "prefix scan", err)
	}
	var bestKey string
	var bestTS int64 = -1
	for _, key := range keys {
		if ts, ok := s.parseKeyTimestamp(key); ok && ts > bestTS {
			bestTS = ts
			bestKey = key
		}
	}
	if bestKey == "" {
		return nil, "", nil
	}
	sess, err := s.GetByKey(ctx, bestKey)
	if err != nil {
		return nil, "", err
	}
	return sess, bestKey, nil
}

// List returns summaries for every live session, newest first. Keys present
// on disk but missing from the index (degraded saves) are merged in.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	entries, err := s.kv.IndexRev(ctx, s.indexKey(), 0)
	if err != nil {
		return nil, services.Wrap(services.ErrSessionUnavailable, "session-store", "list", "read index", err)
	}

	seen := make(map[string]struct{}, len(entries))
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		seen[entry.Member] = struct{}{}
		keys = append(keys, entry.Member)
	}

	scanned, err := s.kv.KeysByPrefix(ctx, s.keyPrefix())
	if err != nil {
		return nil, services.Wrap(services.ErrSessionUnavailable, "session-store", "list", "prefix scan", err)
	}
	var extra []string
	for _, key := range scanned {
		if _, ok := seen[key]; !ok {
			extra = append(extra, key)
		}
	}
	// Unindexed keys sort among the indexed ones by their timestamp suffix.
	if len(extra) > 0 {
		keys = append(keys, extra...)
		s.sortKeysDescending(keys)
	}

	summaries := make([]Summary, 0, len(keys))
	for _, key := range keys {
		sess, err := s.GetByKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			continue
		}
		summaries = append(summaries, Summary{
			Key:           key,
			SavedAt:       sess.SavedAt,
			EpisodeNumber: sess.EpisodeNumber,
			Title:         sess.Title,
			Beats:         len(sess.Beats),
			Results:       len(sess.Results),
		})
	}
	return summaries, nil
}

func (s *Store) sortKeysDescending(keys []string) {
	tsOf := func(key string) int64 {
		if ts, ok := s.parseKeyTimestamp(key); ok {
			return ts
		}
		return -1
	}
	sort.Slice(keys, func(i, j int) bool {
		return tsOf(keys[i]) > tsOf(keys[j])
	})
}

// Sweep evicts expired payloads and stale index members.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	removed, err := s.kv.Sweep(ctx)
	if err != nil {
		return removed, services.Wrap(services.ErrSessionUnavailable, "session-store", "sweep", "", err)
	}
	if removed > 0 {
		s.logger.Info("expired sessions evicted", logging.Int("removed", removed))
	}
	return removed, nil
}

// CheckHealth verifies the backing store is reachable.
func (s *Store) CheckHealth(ctx context.Context) error {
	if err := s.kv.CheckHealth(ctx); err != nil {
		return services.Wrap(services.ErrSessionUnavailable, "session-store", "health", "", err)
	}
	return nil
}
