// Package services implements the server's business operations on top of
// the catalog repositories and the blob store: account registration and
// login, session authentication, and the backup ingest/retrieval paths.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/cryptox"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/metrics"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/sessions"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// LoginResult carries a freshly issued session token. Renewed reports that
// an earlier session for the same (account, device) pair was replaced, which
// invalidated its token.
type LoginResult struct {
	Token   string
	Renewed bool
}

// SessionInvalidator evicts any cached identity of a device whose session
// row was just replaced. Without the eviction a superseded token would keep
// authenticating for as long as it stays cached.
type SessionInvalidator interface {
	InvalidateDevice(accountID, deviceID string)
}

type AccountService struct {
	accounts   accounts.Repository
	sessions   sessions.Repository
	enc        *cryptox.Encryptor
	invalidate SessionInvalidator
	logger     logging.Logger
	metrics    metrics.Client
}

// NewAccountService wires the account operations. inv may be nil when no
// cache front-ends the session catalog.
func NewAccountService(ar accounts.Repository, sr sessions.Repository, enc *cryptox.Encryptor, inv SessionInvalidator, l logging.Logger, m metrics.Client) *AccountService {
	return &AccountService{
		accounts:   ar,
		sessions:   sr,
		enc:        enc,
		invalidate: inv,
		logger:     l.With("component", "accounts"),
		metrics:    m,
	}
}

// Register creates a new account and returns its id.
// An already-taken username surfaces as common.ErrorAccountExists.
func (s *AccountService) Register(ctx context.Context, username, password string) (string, error) {
	start := time.Now()

	_, err := s.accounts.GetByUsername(ctx, username)
	if err == nil {
		s.metrics.Inc("register.exists", 1)
		return "", common.ErrorAccountExists
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("password hash: %w", err)
	}

	account := &models.Account{
		ID:           newAccountID(username, hash),
		Username:     username,
		PasswordHash: string(hash),
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return "", err
	}

	s.metrics.Timing("dao.register", time.Since(start))
	s.logger.Info(ctx, "account registered", "username", username)

	return account.ID, nil
}

// Login verifies the credentials and issues a session token for the device.
// The account's storage passphrase is re-encrypted under a key derived from
// the new token before the session row replaces any previous one.
// Bad credentials surface as common.ErrorUnauthorized.
func (s *AccountService) Login(ctx context.Context, deviceID, username, password string) (*LoginResult, error) {
	start := time.Now()

	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.metrics.Inc("login.not_found", 1)
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		s.metrics.Inc("login.bad_password", 1)
		return nil, common.ErrorUnauthorized
	}

	token := uuid.NewString()

	// The storage passphrase travels inside the session row, sealed under
	// the token; only its hash is persisted as the row key.
	sealed, err := s.enc.Encrypt([]byte(password), cryptox.DeriveKey(token))
	if err != nil {
		return nil, fmt.Errorf("passphrase envelope: %w", err)
	}

	session := &models.Session{
		ID:            HashToken(token),
		AccountID:     account.ID,
		DeviceID:      deviceID,
		EncryptedPass: hex.EncodeToString(sealed),
	}

	renewed, err := s.sessions.Upsert(ctx, session)
	if err != nil {
		return nil, err
	}

	if renewed && s.invalidate != nil {
		s.invalidate.InvalidateDevice(account.ID, deviceID)
	}

	s.metrics.Timing("dao.login", time.Since(start))
	if renewed {
		s.logger.Debug(ctx, "session renewed", "device_id", deviceID)
	} else {
		s.logger.Debug(ctx, "new session", "device_id", deviceID)
	}

	return &LoginResult{Token: token, Renewed: renewed}, nil
}

// HashToken produces the persisted session row key for a plaintext token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// newAccountID derives an unguessable, practically collision-free account id
// from the creation instant, the username and the password hash.
func newAccountID(username string, passwordHash []byte) string {
	var now [8]byte
	binary.BigEndian.PutUint64(now[:], uint64(time.Now().UnixNano()))

	h := sha256.New()
	h.Write(now[:])
	h.Write([]byte(username))
	h.Write(passwordHash)

	return hex.EncodeToString(h.Sum(nil))
}
