package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/server/models"
)

// PostgresRepository needs the *sql.DB itself rather than a dbx.DBTX:
// DeleteFileWithVersions opens its own transaction.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateIfAbsent(ctx context.Context, file *models.UploadedFile) error {

	query :=
		`INSERT INTO files (account_id, device_id, original_name, identity_hash)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (identity_hash) DO NOTHING
		 `

	_, err := r.db.ExecContext(ctx, query,
		file.AccountID, file.DeviceID, file.OriginalName, file.IdentityHash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const fileWithVersionsColumns = `files.id, files.device_id, files.original_name,
		 files_versions.id, files_versions.size, files_versions.hash,
		 files_versions.created, files_versions.storage_name`

func (r *PostgresRepository) FindByIdentityHash(ctx context.Context, identityHash string) (*models.File, error) {

	query :=
		`SELECT ` + fileWithVersionsColumns + `
		 FROM files
		 JOIN files_versions ON files_versions.file_id = files.id
		 WHERE files.identity_hash = $1
		 ORDER BY files_versions.id
		 `

	found, err := r.queryFiles(ctx, query, identityHash)
	if err != nil {
		return nil, err
	}
	if len(found) > 0 {
		return &found[0], nil
	}

	// fallback: the file may exist with no versions yet
	query =
		`SELECT id, device_id, original_name FROM files
		 WHERE identity_hash = $1
		 `

	file := &models.File{Versions: []models.FileVersion{}}
	err = r.db.QueryRowContext(ctx, query, identityHash).
		Scan(&file.ID, &file.DeviceID, &file.OriginalName)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return file, nil
}

func (r *PostgresRepository) AppendVersion(ctx context.Context, fileID int64, version *models.FileVersion) (int64, error) {

	query :=
		`INSERT INTO files_versions (file_id, created, size, hash, storage_name)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id
		 `

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		fileID, version.Created, version.Size, version.Hash, version.StorageName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return id, nil
}

func (r *PostgresRepository) ListFiles(ctx context.Context, accountID, deviceID string) ([]models.File, error) {

	query :=
		`SELECT ` + fileWithVersionsColumns + `
		 FROM files
		 JOIN files_versions ON files_versions.file_id = files.id
		 WHERE files.account_id = $1 AND files.device_id = $2
		 ORDER BY files.id, files_versions.id
		 `

	return r.queryFiles(ctx, query, accountID, deviceID)
}

// queryFiles runs a join over files and files_versions and folds the rows
// into File values with their versions in insertion order.
func (r *PostgresRepository) queryFiles(ctx context.Context, query string, args ...any) ([]models.File, error) {

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.File
	byID := map[int64]int{}

	for rows.Next() {
		var f models.File
		var v models.FileVersion
		err := rows.Scan(&f.ID, &f.DeviceID, &f.OriginalName,
			&v.Version, &v.Size, &v.Hash, &v.Created, &v.StorageName)
		if err != nil {
			return nil, err
		}

		i, ok := byID[f.ID]
		if !ok {
			i = len(result)
			byID[f.ID] = i
			result = append(result, f)
		}
		result[i].Versions = append(result[i].Versions, v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PostgresRepository) GetVersionMeta(ctx context.Context, versionID int64) (*models.FileVersion, error) {

	query :=
		`SELECT id, size, hash, created, storage_name FROM files_versions
		 WHERE id = $1
		 `

	version := &models.FileVersion{}
	err := r.db.QueryRowContext(ctx, query, versionID).
		Scan(&version.Version, &version.Size, &version.Hash, &version.Created, &version.StorageName)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return version, nil
}

func (r *PostgresRepository) GetStorageNames(ctx context.Context, deviceID string, fileID int64) ([]string, error) {

	query :=
		`SELECT files_versions.storage_name
		 FROM files_versions
		 JOIN files ON files_versions.file_id = files.id
		 WHERE files.id = $1 AND files.device_id = $2
		 ORDER BY files_versions.id
		 `

	rows, err := r.db.QueryContext(ctx, query, fileID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		result = append(result, name)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PostgresRepository) DeleteVersion(ctx context.Context, versionID int64) (bool, error) {

	query := `DELETE FROM files_versions WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, versionID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}

	return n > 0, nil
}

func (r *PostgresRepository) DeleteFileWithVersions(ctx context.Context, deviceID string, fileID int64, expected int64) (int64, error) {

	versionsQuery :=
		`DELETE FROM files_versions
		 USING files
		 WHERE files_versions.file_id = files.id
		   AND files.id = $1 AND files.device_id = $2
		 `

	fileQuery := `DELETE FROM files WHERE id = $1 AND device_id = $2`

	var deleted int64
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, versionsQuery, fileID, deviceID)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		deleted, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected error: %w", err)
		}
		if deleted != expected {
			return fmt.Errorf("%w: deleted %d of %d", common.ErrorPartialDelete, deleted, expected)
		}

		if _, err := tx.ExecContext(ctx, fileQuery, fileID, deviceID); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})

	return deleted, err
}
