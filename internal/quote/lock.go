package quote

import (
	"context"
	"strconv"
	"time"

	"github.com/atlanteavila/sovos-tax-plugin/internal/domain"
	"github.com/atlanteavila/sovos-tax-plugin/internal/kv"
)

const (
	// DefaultLockTTL is how long a lock entry survives in the store so a
	// crashed worker cannot wedge a fingerprint forever.
	DefaultLockTTL = 10 * time.Second

	// DefaultLockStale is the age past which a held lock is considered
	// abandoned and may be taken over.
	DefaultLockStale = 5 * time.Second
)

// LockConfig tunes the lock. Zero values take the defaults.
type LockConfig struct {
	TTL   time.Duration
	Stale time.Duration
}

// Lock is a short-lived mutual-exclusion lock per quote fingerprint,
// held while a worker performs the outbound call so concurrent workers
// wait on the cache instead of stacking duplicate calls. It stores no
// data beyond the acquisition time.
type Lock struct {
	store kv.Store
	cfg   LockConfig
	now   func() time.Time
}

// NewLock creates a lock over the given store.
func NewLock(store kv.Store, cfg LockConfig) *Lock {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultLockTTL
	}
	if cfg.Stale == 0 {
		cfg.Stale = DefaultLockStale
	}
	return &Lock{store: store, cfg: cfg, now: time.Now}
}

func lockKey(fingerprint string) string {
	return "sovos:lock:" + fingerprint
}

// TryAcquire attempts to take the lock for the fingerprint. It returns
// false when a live, non-stale holder exists.
func (l *Lock) TryAcquire(ctx context.Context, fingerprint string) (bool, error) {
	key := lockKey(fingerprint)
	stamp := []byte(strconv.FormatInt(l.now().UnixNano(), 10))

	ok, err := l.store.Add(ctx, key, stamp, l.cfg.TTL)
	if err != nil {
		return false, domain.WrapError(err, domain.EINTERNAL, "quote.lock", "failed to acquire quote lock")
	}
	if ok {
		return true, nil
	}

	// Entry exists. Take over only if the holder has gone stale.
	raw, found, err := l.store.Get(ctx, key)
	if err != nil {
		return false, domain.WrapError(err, domain.EINTERNAL, "quote.lock", "failed to inspect quote lock")
	}
	if found {
		ns, parseErr := strconv.ParseInt(string(raw), 10, 64)
		if parseErr == nil && l.now().Sub(time.Unix(0, ns)) < l.cfg.Stale {
			return false, nil
		}
	}

	// Stale or unreadable holder: replace it. Two workers racing this
	// branch can both proceed, which only costs a duplicate call in the
	// already-degraded crashed-holder case.
	if err := l.store.Set(ctx, key, stamp, l.cfg.TTL); err != nil {
		return false, domain.WrapError(err, domain.EINTERNAL, "quote.lock", "failed to take over stale quote lock")
	}
	return true, nil
}

// Release drops the lock. Releasing an unheld lock is harmless; callers
// release unconditionally on every exit path.
func (l *Lock) Release(ctx context.Context, fingerprint string) error {
	if err := l.store.Delete(ctx, lockKey(fingerprint)); err != nil {
		return domain.WrapError(err, domain.EINTERNAL, "quote.lock", "failed to release quote lock")
	}
	return nil
}
