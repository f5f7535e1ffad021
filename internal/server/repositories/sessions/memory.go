package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/server/models"
)

// MemoryRepository is a map-backed Repository keeping one row per
// (account, device) pair, mirroring the catalog's unique constraint.
type MemoryRepository struct {
	mu     sync.Mutex
	byID   map[string]*models.Session
	byPair map[string]string // accountID+"|"+deviceID -> session id
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:   make(map[string]*models.Session),
		byPair: make(map[string]string),
	}
}

func (r *MemoryRepository) Upsert(ctx context.Context, session *models.Session) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pair := session.AccountID + "|" + session.DeviceID
	renewed := false
	if old, ok := r.byPair[pair]; ok {
		delete(r.byID, old)
		renewed = true
	}

	session.LastUsed = time.Now()
	r.byID[session.ID] = session
	r.byPair[pair] = session.ID

	return renewed, nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return session, nil
}

func (r *MemoryRepository) Touch(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.byID[id]; ok {
		session.LastUsed = time.Now()
	}
	return nil
}

func (r *MemoryRepository) IsKnownDevice(ctx context.Context, accountID, deviceID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.byPair[accountID+"|"+deviceID]
	return ok, nil
}

func (r *MemoryRepository) ListDevices(ctx context.Context, accountID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := map[string]bool{}
	var result []string
	for _, session := range r.byID {
		if session.AccountID == accountID && !seen[session.DeviceID] {
			seen[session.DeviceID] = true
			result = append(result, session.DeviceID)
		}
	}
	sort.Strings(result)

	return result, nil
}
