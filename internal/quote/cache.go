package quote

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/atlanteavila/sovos-tax-plugin/internal/domain"
	"github.com/atlanteavila/sovos-tax-plugin/internal/kv"
	"github.com/atlanteavila/sovos-tax-plugin/internal/sovos"
	"github.com/atlanteavila/sovos-tax-plugin/internal/telemetry"
)

const (
	// DefaultSharedTTL bounds how long a shared quote entry may answer
	// for concurrent workers before a fresh calculation is forced.
	DefaultSharedTTL = 5 * time.Minute

	// DefaultPollInterval and DefaultPollAttempts bound the wait for a
	// competing worker's result: 30 sleeps of 100ms, three seconds total.
	DefaultPollInterval = 100 * time.Millisecond
	DefaultPollAttempts = 30
)

// CacheConfig tunes the layered cache. Zero values take the defaults.
type CacheConfig struct {
	SharedTTL    time.Duration
	PollInterval time.Duration
	PollAttempts int
}

// Cache memoizes tax responses in three layers: an in-process memo for
// the current unit of work, a session-scoped entry that survives across
// a checkout session, and a shared short-TTL entry that covers the gap
// before the session layer is populated. Readers take the fastest valid
// layer; writers populate all three.
type Cache struct {
	store kv.Store
	cfg   CacheConfig

	mu   sync.Mutex
	memo map[string]*sovos.Response
}

// NewCache creates a layered cache over the given store.
func NewCache(store kv.Store, cfg CacheConfig) *Cache {
	if cfg.SharedTTL == 0 {
		cfg.SharedTTL = DefaultSharedTTL
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollAttempts == 0 {
		cfg.PollAttempts = DefaultPollAttempts
	}
	return &Cache{
		store: store,
		cfg:   cfg,
		memo:  make(map[string]*sovos.Response),
	}
}

func sharedKey(fingerprint string) string {
	return "sovos:quote:" + fingerprint
}

func sessionKey(sessionID, fingerprint string) string {
	return "sovos:session:" + sessionID + ":quote:" + fingerprint
}

func trackedKeysKey(sessionID string) string {
	return "sovos:session:" + sessionID + ":quote_keys"
}

func memoKey(sessionID, fingerprint string) string {
	return sessionID + "\x00" + fingerprint
}

// Get returns the cached response for the fingerprint, preferring the
// in-process memo, then the session layer, then the shared layer. A hit
// in a slower layer back-fills the faster ones.
func (c *Cache) Get(ctx context.Context, sessionID, fingerprint string) (*sovos.Response, bool, error) {
	c.mu.Lock()
	if resp, ok := c.memo[memoKey(sessionID, fingerprint)]; ok {
		c.mu.Unlock()
		telemetry.CacheHits.WithLabelValues("memo").Inc()
		return resp, true, nil
	}
	c.mu.Unlock()

	if sessionID != "" {
		resp, ok, err := c.load(ctx, sessionKey(sessionID, fingerprint))
		if err != nil {
			return nil, false, err
		}
		if ok {
			telemetry.CacheHits.WithLabelValues("session").Inc()
			c.memoize(sessionID, fingerprint, resp)
			return resp, true, nil
		}
	}

	resp, ok, err := c.load(ctx, sharedKey(fingerprint))
	if err != nil || !ok {
		if err == nil {
			telemetry.CacheMisses.Inc()
		}
		return nil, false, err
	}
	telemetry.CacheHits.WithLabelValues("shared").Inc()

	// Promote into the session layer so this worker stops depending on
	// the short shared TTL.
	if sessionID != "" {
		if err := c.store.Set(ctx, sessionKey(sessionID, fingerprint), mustMarshal(resp), 0); err != nil {
			return nil, false, err
		}
		if err := c.track(ctx, sessionID, fingerprint); err != nil {
			return nil, false, err
		}
	}
	c.memoize(sessionID, fingerprint, resp)
	return resp, true, nil
}

// Set writes the response through all three layers and records the
// fingerprint for later invalidation.
func (c *Cache) Set(ctx context.Context, sessionID, fingerprint string, resp *sovos.Response) error {
	raw := mustMarshal(resp)

	if err := c.store.Set(ctx, sharedKey(fingerprint), raw, c.cfg.SharedTTL); err != nil {
		return domain.WrapError(err, domain.EINTERNAL, "quote.cache", "failed to store shared quote entry")
	}
	if sessionID != "" {
		if err := c.store.Set(ctx, sessionKey(sessionID, fingerprint), raw, 0); err != nil {
			return domain.WrapError(err, domain.EINTERNAL, "quote.cache", "failed to store session quote entry")
		}
		if err := c.track(ctx, sessionID, fingerprint); err != nil {
			return err
		}
	}
	c.memoize(sessionID, fingerprint, resp)
	return nil
}

// WaitFor polls the cache while another worker holds the lock for this
// fingerprint. It gives up after the configured number of attempts and
// reports a miss; callers treat that as "quote not available yet".
func (c *Cache) WaitFor(ctx context.Context, sessionID, fingerprint string) (*sovos.Response, bool, error) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for i := 0; i < c.cfg.PollAttempts; i++ {
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-ticker.C:
		}

		resp, ok, err := c.Get(ctx, sessionID, fingerprint)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return resp, true, nil
		}
	}
	return nil, false, nil
}

// Invalidate drops every quote entry recorded for the session, across
// all layers. Called when an order is finalized so stale quotes do not
// bleed into a future cart.
func (c *Cache) Invalidate(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	raw, ok, err := c.store.Get(ctx, trackedKeysKey(sessionID))
	if err != nil {
		return domain.WrapError(err, domain.EINTERNAL, "quote.cache", "failed to read tracked quote keys")
	}

	var fingerprints []string
	if ok {
		if err := json.Unmarshal(raw, &fingerprints); err != nil {
			fingerprints = nil
		}
	}

	for _, fp := range fingerprints {
		if err := c.store.Delete(ctx, sessionKey(sessionID, fp)); err != nil {
			return domain.WrapError(err, domain.EINTERNAL, "quote.cache", "failed to delete session quote entry")
		}
		if err := c.store.Delete(ctx, sharedKey(fp)); err != nil {
			return domain.WrapError(err, domain.EINTERNAL, "quote.cache", "failed to delete shared quote entry")
		}
	}
	if err := c.store.Delete(ctx, trackedKeysKey(sessionID)); err != nil {
		return domain.WrapError(err, domain.EINTERNAL, "quote.cache", "failed to delete tracked quote keys")
	}

	c.mu.Lock()
	for _, fp := range fingerprints {
		delete(c.memo, memoKey(sessionID, fp))
	}
	c.mu.Unlock()
	return nil
}

func (c *Cache) memoize(sessionID, fingerprint string, resp *sovos.Response) {
	c.mu.Lock()
	c.memo[memoKey(sessionID, fingerprint)] = resp
	c.mu.Unlock()
}

func (c *Cache) load(ctx context.Context, key string) (*sovos.Response, bool, error) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, false, domain.WrapError(err, domain.EINTERNAL, "quote.cache", "failed to read quote entry")
	}
	if !ok {
		return nil, false, nil
	}

	var resp sovos.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		// A corrupt entry is treated as a miss; the next calculation
		// overwrites it.
		return nil, false, nil
	}
	return &resp, true, nil
}

// track appends the fingerprint to the session's key set, once.
func (c *Cache) track(ctx context.Context, sessionID, fingerprint string) error {
	key := trackedKeysKey(sessionID)

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return domain.WrapError(err, domain.EINTERNAL, "quote.cache", "failed to read tracked quote keys")
	}

	var fingerprints []string
	if ok {
		if err := json.Unmarshal(raw, &fingerprints); err != nil {
			fingerprints = nil
		}
	}
	for _, fp := range fingerprints {
		if fp == fingerprint {
			return nil
		}
	}
	fingerprints = append(fingerprints, fingerprint)

	if err := c.store.Set(ctx, key, mustMarshal(fingerprints), 0); err != nil {
		return domain.WrapError(err, domain.EINTERNAL, "quote.cache", "failed to store tracked quote keys")
	}
	return nil
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
