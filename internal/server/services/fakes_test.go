package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/files"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/sessions"
)

func discardLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// fakeSessions counts catalog lookups and last_used refreshes on top of the
// in-memory repository.
type fakeSessions struct {
	*sessions.MemoryRepository
	mu      sync.Mutex
	gets    int
	touched []string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{MemoryRepository: sessions.NewMemoryRepository()}
}

func (f *fakeSessions) GetByID(ctx context.Context, id string) (*models.Session, error) {
	f.mu.Lock()
	f.gets++
	f.mu.Unlock()
	return f.MemoryRepository.GetByID(ctx, id)
}

func (f *fakeSessions) Touch(ctx context.Context, id string) error {
	f.mu.Lock()
	f.touched = append(f.touched, id)
	f.mu.Unlock()
	return f.MemoryRepository.Touch(ctx, id)
}

// fakeFiles lets a test force a partial file delete: when set, the delete
// fails with the forced count and the in-memory catalog stays untouched,
// like a rolled-back transaction.
type fakeFiles struct {
	*files.MemoryRepository
	deleteVersionsCount *int64
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{MemoryRepository: files.NewMemoryRepository()}
}

func (f *fakeFiles) DeleteFileWithVersions(ctx context.Context, deviceID string, fileID int64, expected int64) (int64, error) {
	if f.deleteVersionsCount != nil {
		return *f.deleteVersionsCount, fmt.Errorf("%w: deleted %d of %d", common.ErrorPartialDelete, *f.deleteVersionsCount, expected)
	}
	return f.MemoryRepository.DeleteFileWithVersions(ctx, deviceID, fileID, expected)
}
