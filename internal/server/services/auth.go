package services

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/cryptox"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/metrics"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/sessions"
	lru "github.com/hashicorp/golang-lru/v2"
)

// sessionCacheSize bounds the token cache. The cache stores misses too
// (negative caching): the token space is uniform, so a repeated bogus token
// is as cacheable as a valid one.
const sessionCacheSize = 100

// Authenticator resolves session tokens to device identities, consulting a
// bounded LRU cache before the catalog.
type Authenticator struct {
	sessions sessions.Repository
	enc      *cryptox.Encryptor
	cache    *lru.Cache[string, *models.DeviceIdentity]
	logger   logging.Logger
	metrics  metrics.Client
}

func NewAuthenticator(sr sessions.Repository, enc *cryptox.Encryptor, l logging.Logger, m metrics.Client) (*Authenticator, error) {
	cache, err := lru.New[string, *models.DeviceIdentity](sessionCacheSize)
	if err != nil {
		return nil, err
	}

	return &Authenticator{
		sessions: sr,
		enc:      enc,
		cache:    cache,
		logger:   l.With("component", "auth"),
		metrics:  m,
	}, nil
}

// Authenticate resolves a plaintext session token. It returns (nil, nil)
// when the token is unknown or its envelope cannot be decrypted; the two
// cases are indistinguishable to callers but logged distinctly.
//
// A cache hit does not refresh the session's last_used: only a catalog
// round trip does.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*models.DeviceIdentity, error) {
	if identity, ok := a.cache.Get(token); ok {
		return identity, nil
	}

	start := time.Now()

	session, err := a.sessions.GetByID(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			a.cache.Add(token, nil)
			a.metrics.Timing("dao.authenticate", time.Since(start))
			return nil, nil
		}
		return nil, err
	}

	identity, err := a.unseal(session, token)
	if err != nil {
		// A broken envelope means a tampered token or corrupted row; to the
		// caller it looks exactly like a missing session.
		a.logger.Warn(ctx, "session envelope decryption failed",
			"session_id", session.ID, "error", err.Error())
		a.metrics.Inc("authentication.decrypt_failure", 1)
		a.cache.Add(token, nil)
		return nil, nil
	}

	if err := a.sessions.Touch(ctx, session.ID); err != nil {
		a.logger.Warn(ctx, "could not refresh last_used", "error", err.Error())
	}

	a.cache.Add(token, identity)
	a.metrics.Timing("dao.authenticate", time.Since(start))

	return identity, nil
}

// InvalidateDevice drops every cached identity of the (account, device)
// pair. The cache is keyed by plaintext token and Login never learns the
// token it replaces, so the scan goes over the cached identities instead.
// Negative entries carry no identity and are left alone.
func (a *Authenticator) InvalidateDevice(accountID, deviceID string) {
	for _, token := range a.cache.Keys() {
		identity, ok := a.cache.Peek(token)
		if !ok || identity == nil {
			continue
		}
		if identity.AccountID == accountID && identity.DeviceID == deviceID {
			a.cache.Remove(token)
		}
	}
}

func (a *Authenticator) unseal(session *models.Session, token string) (*models.DeviceIdentity, error) {
	sealed, err := hex.DecodeString(session.EncryptedPass)
	if err != nil {
		return nil, err
	}

	passphrase, err := a.enc.Decrypt(sealed, cryptox.DeriveKey(token))
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(passphrase)

	return &models.DeviceIdentity{
		DeviceID:  session.DeviceID,
		AccountID: session.AccountID,
		RepoPass:  string(passphrase),
	}, nil
}
