package services

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/cryptox"
	"github.com/dmitrijs2005/filevault/internal/server/metrics"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef"

func newAccountService(t *testing.T) (*AccountService, *accounts.MemoryRepository, *fakeSessions) {
	t.Helper()

	enc, err := cryptox.NewEncryptor(testSecret)
	require.NoError(t, err)

	ar := accounts.NewMemoryRepository()
	sr := newFakeSessions()
	return NewAccountService(ar, sr, enc, nil, discardLogger(), metrics.Noop{}), ar, sr
}

func TestRegister(t *testing.T) {
	svc, ar, _ := newAccountService(t)
	ctx := context.Background()

	id, err := svc.Register(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	account, err := ar.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, id, account.ID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte("s3cret")))
}

func TestRegister_UsernameTaken(t *testing.T) {
	svc, _, _ := newAccountService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "s3cret")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "other")
	assert.ErrorIs(t, err, common.ErrorAccountExists)
}

// racyAccounts simulates the window where a concurrent registration commits
// between the username pre-check and the insert: the pre-check sees nothing,
// the insert hits the unique constraint.
type racyAccounts struct {
	*accounts.MemoryRepository
}

func (r *racyAccounts) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	return nil, common.ErrorNotFound
}

func TestRegister_ConcurrentDuplicate(t *testing.T) {
	enc, err := cryptox.NewEncryptor(testSecret)
	require.NoError(t, err)

	ar := &racyAccounts{accounts.NewMemoryRepository()}
	svc := NewAccountService(ar, newFakeSessions(), enc, nil, discardLogger(), metrics.Noop{})
	ctx := context.Background()

	_, err = svc.Register(ctx, "alice", "s3cret")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "other")
	assert.ErrorIs(t, err, common.ErrorAccountExists)
}

func TestLogin_BadCredentials(t *testing.T) {
	svc, _, _ := newAccountService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "s3cret")
	require.NoError(t, err)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"unknown user", "bob", "s3cret"},
		{"wrong password", "alice", "wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(ctx, "laptop", tt.username, tt.password)
			assert.ErrorIs(t, err, common.ErrorUnauthorized)
		})
	}
}

func TestLogin_NewThenRenewed(t *testing.T) {
	svc, _, _ := newAccountService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "s3cret")
	require.NoError(t, err)

	first, err := svc.Login(ctx, "laptop", "alice", "s3cret")
	require.NoError(t, err)
	assert.False(t, first.Renewed)

	second, err := svc.Login(ctx, "laptop", "alice", "s3cret")
	require.NoError(t, err)
	assert.True(t, second.Renewed)
	assert.NotEqual(t, first.Token, second.Token)

	// a different device gets a fresh session, not a renewal
	third, err := svc.Login(ctx, "phone", "alice", "s3cret")
	require.NoError(t, err)
	assert.False(t, third.Renewed)
}

func TestLogin_SealsPassphraseUnderToken(t *testing.T) {
	svc, _, sr := newAccountService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "s3cret")
	require.NoError(t, err)

	result, err := svc.Login(ctx, "laptop", "alice", "s3cret")
	require.NoError(t, err)

	session, err := sr.GetByID(ctx, HashToken(result.Token))
	require.NoError(t, err)

	enc, err := cryptox.NewEncryptor(testSecret)
	require.NoError(t, err)

	sealed, err := hex.DecodeString(session.EncryptedPass)
	require.NoError(t, err)

	passphrase, err := enc.Decrypt(sealed, cryptox.DeriveKey(result.Token))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", string(passphrase))
}

func TestLogin_ReplacesPreviousSessionRow(t *testing.T) {
	svc, _, sr := newAccountService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "s3cret")
	require.NoError(t, err)

	first, err := svc.Login(ctx, "laptop", "alice", "s3cret")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "laptop", "alice", "s3cret")
	require.NoError(t, err)

	_, err = sr.GetByID(ctx, HashToken(first.Token))
	assert.True(t, errors.Is(err, common.ErrorNotFound), "first token must be invalidated")
}

func TestNewAccountID_Distinct(t *testing.T) {
	a := newAccountID("alice", []byte("hash"))
	b := newAccountID("alice", []byte("hash"))
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b, "ids embed the creation instant")
}
