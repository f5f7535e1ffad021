package files

import (
	"context"

	"github.com/dmitrijs2005/filevault/internal/server/models"
)

type Repository interface {
	// CreateIfAbsent inserts the File row keyed by identity hash unless it
	// already exists. Callers must re-select afterwards: a concurrent insert
	// may have won.
	CreateIfAbsent(ctx context.Context, file *models.UploadedFile) error

	// FindByIdentityHash returns the file with all its versions. A file whose
	// first version append never completed comes back with an empty version
	// list. Missing file: common.ErrorNotFound.
	FindByIdentityHash(ctx context.Context, identityHash string) (*models.File, error)

	// AppendVersion inserts a version row and returns its catalog-assigned id.
	AppendVersion(ctx context.Context, fileID int64, version *models.FileVersion) (int64, error)

	// ListFiles returns all files of the device with their versions.
	ListFiles(ctx context.Context, accountID, deviceID string) ([]models.File, error)

	// GetVersionMeta resolves a version to its hash, size and storage name.
	GetVersionMeta(ctx context.Context, versionID int64) (*models.FileVersion, error)

	// GetStorageNames returns the blob-store keys of all versions of the file.
	GetStorageNames(ctx context.Context, deviceID string, fileID int64) ([]string, error)

	// DeleteVersion removes one version row, reporting whether it existed.
	DeleteVersion(ctx context.Context, versionID int64) (bool, error)

	// DeleteFileWithVersions removes the file row and all its version rows in
	// one transaction, returning the number of versions deleted. When that
	// number differs from expected the whole delete is rolled back and the
	// error wraps common.ErrorPartialDelete.
	DeleteFileWithVersions(ctx context.Context, deviceID string, fileID int64, expected int64) (int64, error)
}
