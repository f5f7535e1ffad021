package accounts

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/server/models"
)

// MemoryRepository is a map-backed Repository used in tests and for running
// the server without a database.
type MemoryRepository struct {
	mu         sync.Mutex
	byUsername map[string]*models.Account
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byUsername: make(map[string]*models.Account)}
}

func (r *MemoryRepository) Create(ctx context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byUsername[account.Username]; ok {
		return common.ErrorAccountExists
	}
	r.byUsername[account.Username] = account
	return nil
}

func (r *MemoryRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.byUsername[username]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return account, nil
}
