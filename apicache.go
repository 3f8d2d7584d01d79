// Package apicache is a persistent response cache and admission-control
// layer for external, metered HTTP APIs. Callers derive a fingerprint for a
// request, check the cache, ask the rate limiter for permission on a miss,
// and persist the remote response; per-endpoint client methods and
// downstream processors build on this contract.
package apicache

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/fofxtools/api-cache/internal/cachekey"
	"github.com/fofxtools/api-cache/internal/config"
	"github.com/fofxtools/api-cache/internal/models"
	"github.com/fofxtools/api-cache/internal/ratelimit"
	"github.com/fofxtools/api-cache/internal/store"
)

// Aliases expose the storage and admission types collaborators work with.
type (
	Record          = models.ResponseRecord
	Response        = store.Response
	TableHandle     = store.TableHandle
	NamingError     = store.NamingError
	ValidationError = store.ValidationError
	DecodingError   = store.DecodingError
	RateLimitError  = ratelimit.Error
	ClientConfig    = config.ClientConfig
)

// Header and body serialization helpers, re-exported for callers preparing
// payload fields.
var (
	PrepareHeaders  = store.PrepareHeaders
	RetrieveHeaders = store.RetrieveHeaders
	PrepareBody     = store.PrepareBody
	RetrieveBody    = store.RetrieveBody
)

// Manager binds the response store and the admission controller for any
// number of named clients sharing one database.
type Manager struct {
	cfg     *config.Config
	store   *store.Store
	limiter *ratelimit.Limiter
}

func New(logger *logrus.Logger, db *gorm.DB, cfg *config.Config) *Manager {
	return &Manager{
		cfg:   cfg,
		store: store.New(logger, db),
		limiter: ratelimit.New(logger, func(client string) ratelimit.Config {
			cc := cfg.Client(client)
			return ratelimit.Config{
				MaxAttempts:  cc.RateLimitMaxAttempts,
				DecaySeconds: cc.RateLimitDecaySeconds,
			}
		}),
	}
}

// Store exposes the underlying response store for collaborators that need
// table-level operations.
func (m *Manager) Store() *store.Store {
	return m.store
}

// Limiter exposes the admission controller.
func (m *Manager) Limiter() *ratelimit.Limiter {
	return m.limiter
}

// EnsureClient creates or migrates both physical tables for a client.
func (m *Manager) EnsureClient(client string) error {
	return m.store.EnsureTables(client)
}

// Handle resolves a client's active table; a non-nil compressedOverride
// addresses the other physical variant regardless of configured policy.
func (m *Manager) Handle(client string, compressedOverride *bool) (TableHandle, error) {
	return store.HandleFor(client, m.cfg.Client(client).CompressionEnabled, compressedOverride)
}

// DeriveKey fingerprints a logical request; see cachekey.Derive.
func (m *Manager) DeriveKey(client, endpoint string, params map[string]any, method, version string) (string, error) {
	return cachekey.Derive(client, endpoint, params, method, version)
}

// Get returns the live cached record for a key, or nil on miss or expiry.
func (m *Manager) Get(ctx context.Context, client, key string, compressedOverride *bool) (*Record, error) {
	h, err := m.Handle(client, compressedOverride)
	if err != nil {
		return nil, err
	}
	return m.store.Get(ctx, h, key)
}

// StoreResponse persists one remote response under the client's active
// table. ttlSeconds nil caches forever until explicitly cleared.
func (m *Manager) StoreResponse(ctx context.Context, client, key string, resp *Response, ttlSeconds *int, compressedOverride *bool) error {
	h, err := m.Handle(client, compressedOverride)
	if err != nil {
		return err
	}
	return m.store.Store(ctx, h, key, resp, ttlSeconds)
}

// AllowRequest reports whether the client may issue a new remote call.
func (m *Manager) AllowRequest(client string) bool {
	return m.limiter.AllowRequest(client)
}

// IncrementAttempts records n attempts against the client's window.
func (m *Manager) IncrementAttempts(client string, n int) {
	m.limiter.IncrementAttempts(client, n)
}

// CheckRateLimit guards the remote call boundary: it records one attempt
// when admitted and returns a *RateLimitError when the window is exhausted.
func (m *Manager) CheckRateLimit(client string) error {
	return m.limiter.Check(client)
}

// ClearRateLimit resets the client's window immediately.
func (m *Manager) ClearRateLimit(client string) {
	m.limiter.Clear(client)
}

// CountTotalResponses counts all rows in the client's selected table.
func (m *Manager) CountTotalResponses(ctx context.Context, client string, compressedOverride *bool) (int64, error) {
	h, err := m.Handle(client, compressedOverride)
	if err != nil {
		return 0, err
	}
	return m.store.CountTotal(ctx, h)
}

// CountActiveResponses counts rows with no TTL or a future expiry.
func (m *Manager) CountActiveResponses(ctx context.Context, client string, compressedOverride *bool) (int64, error) {
	h, err := m.Handle(client, compressedOverride)
	if err != nil {
		return 0, err
	}
	return m.store.CountActive(ctx, h)
}

// CountExpiredResponses counts rows whose expiry has passed.
func (m *Manager) CountExpiredResponses(ctx context.Context, client string, compressedOverride *bool) (int64, error) {
	h, err := m.Handle(client, compressedOverride)
	if err != nil {
		return 0, err
	}
	return m.store.CountExpired(ctx, h)
}

// DeleteExpired removes expired rows from the client's selected table.
func (m *Manager) DeleteExpired(ctx context.Context, client string, compressedOverride *bool) (int64, error) {
	h, err := m.Handle(client, compressedOverride)
	if err != nil {
		return 0, err
	}
	return m.store.DeleteExpired(ctx, h)
}

// ClearTable removes all rows from the client's selected table.
func (m *Manager) ClearTable(ctx context.Context, client string, compressedOverride *bool) error {
	h, err := m.Handle(client, compressedOverride)
	if err != nil {
		return err
	}
	return m.store.ClearTable(ctx, h)
}
