package files

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/server/models"
)

// MemoryRepository is a map-backed Repository used in tests and for running
// the server without a database.
type MemoryRepository struct {
	mu    sync.Mutex
	seq   int64
	vseq  int64
	files []*memoryFile
}

type memoryFile struct {
	id           int64
	accountID    string
	deviceID     string
	originalName string
	identityHash string
	versions     []models.FileVersion
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) find(identityHash string) *memoryFile {
	for _, f := range r.files {
		if f.identityHash == identityHash {
			return f
		}
	}
	return nil
}

func toModel(f *memoryFile) *models.File {
	file := &models.File{
		ID:           f.id,
		DeviceID:     f.deviceID,
		OriginalName: f.originalName,
		Versions:     []models.FileVersion{},
	}
	file.Versions = append(file.Versions, f.versions...)
	return file
}

func (r *MemoryRepository) CreateIfAbsent(ctx context.Context, file *models.UploadedFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.find(file.IdentityHash) != nil {
		return nil
	}

	r.seq++
	r.files = append(r.files, &memoryFile{
		id:           r.seq,
		accountID:    file.AccountID,
		deviceID:     file.DeviceID,
		originalName: file.OriginalName,
		identityHash: file.IdentityHash,
	})

	return nil
}

func (r *MemoryRepository) FindByIdentityHash(ctx context.Context, identityHash string) (*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f := r.find(identityHash)
	if f == nil {
		return nil, common.ErrorNotFound
	}
	return toModel(f), nil
}

func (r *MemoryRepository) AppendVersion(ctx context.Context, fileID int64, version *models.FileVersion) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range r.files {
		if f.id == fileID {
			r.vseq++
			v := *version
			v.Version = r.vseq
			f.versions = append(f.versions, v)
			return r.vseq, nil
		}
	}
	return 0, common.ErrorNotFound
}

func (r *MemoryRepository) ListFiles(ctx context.Context, accountID, deviceID string) ([]models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []models.File
	for _, f := range r.files {
		if f.accountID == accountID && f.deviceID == deviceID {
			result = append(result, *toModel(f))
		}
	}
	return result, nil
}

func (r *MemoryRepository) GetVersionMeta(ctx context.Context, versionID int64) (*models.FileVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range r.files {
		for _, v := range f.versions {
			if v.Version == versionID {
				out := v
				return &out, nil
			}
		}
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) GetStorageNames(ctx context.Context, deviceID string, fileID int64) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var names []string
	for _, f := range r.files {
		if f.id == fileID && f.deviceID == deviceID {
			for _, v := range f.versions {
				names = append(names, v.StorageName)
			}
		}
	}
	return names, nil
}

func (r *MemoryRepository) DeleteVersion(ctx context.Context, versionID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range r.files {
		for i, v := range f.versions {
			if v.Version == versionID {
				f.versions = append(f.versions[:i], f.versions[i+1:]...)
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *MemoryRepository) DeleteFileWithVersions(ctx context.Context, deviceID string, fileID int64, expected int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, f := range r.files {
		if f.id == fileID && f.deviceID == deviceID {
			n := int64(len(f.versions))
			if n != expected {
				return n, fmt.Errorf("%w: deleted %d of %d", common.ErrorPartialDelete, n, expected)
			}
			r.files = append(r.files[:i], r.files[i+1:]...)
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: deleted 0 of %d", common.ErrorPartialDelete, expected)
}
