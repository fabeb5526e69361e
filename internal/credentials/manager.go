// Package credentials owns the lifecycle of the identity-scoped credential
// triple: acquisition through the broker, single-slot persistence, validity
// evaluation, staleness signaling, and refresh.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"qchat/internal/domain"
)

const (
	// FixedTTL is the locally enforced credential lifetime. The broker's
	// claimed lifetime is never trusted for scheduling.
	FixedTTL = time.Hour
	// RefreshThreshold is the remaining validity below which a cached
	// triple is treated as expired and evicted.
	RefreshThreshold = 5 * time.Minute
)

// State is the derived credential state. It is computed on demand, never
// stored.
type State int

const (
	StateAbsent State = iota
	StateValid
	StateExpiringSoon
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateValid:
		return "valid"
	case StateExpiringSoon:
		return "expiring_soon"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Exchanger exchanges an identity token for a credential triple.
type Exchanger interface {
	Exchange(ctx context.Context, identityToken string) (domain.CredentialTriple, error)
}

// Store is the single-slot persistent cache for one credential triple.
type Store interface {
	Load(ctx context.Context) (domain.CredentialTriple, bool, error)
	Save(ctx context.Context, triple domain.CredentialTriple) error
	Clear(ctx context.Context) error
}

// Manager acquires, caches, expires, and refreshes the credential triple.
// It is the sole writer of the store.
type Manager struct {
	broker Exchanger
	store  Store
	now    func() time.Time

	mu      sync.Mutex
	current domain.CredentialTriple
	loaded  bool
	stale   bool
	timer   *time.Timer
}

type Option func(*Manager)

// WithClock overrides the time source. Tests use this to model expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager backed by the given broker and store.
func NewManager(broker Exchanger, store Store, opts ...Option) (*Manager, error) {
	if broker == nil {
		return nil, errors.New("credentials: broker must not be nil")
	}
	if store == nil {
		return nil, errors.New("credentials: store must not be nil")
	}
	m := &Manager{
		broker: broker,
		store:  store,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Acquire exchanges the identity token with the broker, stamps a local
// expiration of FixedTTL, persists the triple, and arms the staleness timer.
// On any broker error nothing is persisted.
func (m *Manager) Acquire(ctx context.Context, identityToken string) (domain.CredentialTriple, error) {
	return m.exchange(ctx, identityToken)
}

// Refresh has the same contract as Acquire. It is used after a staleness
// signal or an authorization failure observed mid-session; the stale timer is
// cleared before a new one is armed.
func (m *Manager) Refresh(ctx context.Context, identityToken string) (domain.CredentialTriple, error) {
	return m.exchange(ctx, identityToken)
}

func (m *Manager) exchange(ctx context.Context, identityToken string) (domain.CredentialTriple, error) {
	triple, err := m.broker.Exchange(ctx, identityToken)
	if err != nil {
		return domain.CredentialTriple{}, fmt.Errorf("credentials: exchange: %w", err)
	}
	triple.Expiration = m.now().Add(FixedTTL)

	if err := m.store.Save(ctx, triple); err != nil {
		return domain.CredentialTriple{}, fmt.Errorf("credentials: persist: %w", err)
	}

	m.mu.Lock()
	m.current = triple
	m.loaded = true
	m.stale = false
	m.armTimerLocked(FixedTTL)
	m.mu.Unlock()

	return triple, nil
}

// LoadCached reads the store and evaluates validity. A triple with less than
// RefreshThreshold remaining is evicted and reported as expired, so a second
// call finds nothing.
func (m *Manager) LoadCached(ctx context.Context) (State, domain.CredentialTriple, error) {
	triple, found, err := m.store.Load(ctx)
	if err != nil {
		return StateAbsent, domain.CredentialTriple{}, fmt.Errorf("credentials: load cached: %w", err)
	}
	if !found {
		return StateAbsent, domain.CredentialTriple{}, nil
	}

	remaining := triple.Expiration.Sub(m.now())
	if remaining < RefreshThreshold {
		if err := m.store.Clear(ctx); err != nil {
			return StateExpired, domain.CredentialTriple{}, fmt.Errorf("credentials: evict expired: %w", err)
		}
		m.mu.Lock()
		m.loaded = false
		m.current = domain.CredentialTriple{}
		m.mu.Unlock()
		return StateExpired, domain.CredentialTriple{}, nil
	}

	m.mu.Lock()
	m.current = triple
	m.loaded = true
	m.stale = false
	m.armTimerLocked(remaining)
	m.mu.Unlock()

	return StateValid, triple, nil
}

// MarkStale flags the credentials as no longer trustworthy. Any consumer that
// observes an authorization failure downstream calls this instead of waiting
// for the timer.
func (m *Manager) MarkStale() {
	m.mu.Lock()
	m.stale = true
	m.mu.Unlock()
}

// Clear evicts the store, cancels the timer, and drops the in-memory triple.
// Used on sign-out.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.stopTimerLocked()
	m.current = domain.CredentialTriple{}
	m.loaded = false
	m.stale = false
	m.mu.Unlock()

	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("credentials: clear: %w", err)
	}
	return nil
}

// State derives the current credential state from the held triple, the
// staleness flag, and the clock.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		return StateAbsent
	}
	remaining := m.current.Expiration.Sub(m.now())
	if remaining <= 0 {
		return StateExpired
	}
	if m.stale || remaining < RefreshThreshold {
		return StateExpiringSoon
	}
	return StateValid
}

// Current returns the in-memory triple, if one is held.
func (m *Manager) Current() (domain.CredentialTriple, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.loaded
}

// Provider adapts the manager to aws.CredentialsProvider so the triple can
// sign SDK and SigV4 requests directly.
func (m *Manager) Provider() aws.CredentialsProvider {
	return providerAdapter{m: m}
}

type providerAdapter struct {
	m *Manager
}

func (p providerAdapter) Retrieve(context.Context) (aws.Credentials, error) {
	triple, ok := p.m.Current()
	if !ok {
		return aws.Credentials{}, errors.New("credentials: no credential triple held")
	}
	return aws.Credentials{
		AccessKeyID:     triple.AccessKeyID,
		SecretAccessKey: triple.SecretAccessKey,
		SessionToken:    triple.SessionToken,
		Source:          "qchat-broker",
		CanExpire:       true,
		Expires:         triple.Expiration,
	}, nil
}

// armTimerLocked replaces the one-shot staleness timer. Callers hold m.mu.
func (m *Manager) armTimerLocked(d time.Duration) {
	m.stopTimerLocked()
	m.timer = time.AfterFunc(d, func() {
		m.MarkStale()
	})
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// ExportBlock renders the triple as a shell export block. This is a derived,
// read-only view, never persisted.
func ExportBlock(triple domain.CredentialTriple) string {
	return fmt.Sprintf(
		"export AWS_ACCESS_KEY_ID=%s\nexport AWS_SECRET_ACCESS_KEY=%s\nexport AWS_SESSION_TOKEN=%s\n",
		triple.AccessKeyID, triple.SecretAccessKey, triple.SessionToken,
	)
}
