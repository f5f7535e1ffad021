package services

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/metrics"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/files"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/filevault/internal/server/storage"
)

// maxDeclaredHashSize caps the second multipart part; a hex SHA-256 is 64
// bytes, anything much larger is a protocol error anyway.
const maxDeclaredHashSize = 1024

// RemoveFailure names one blob whose deletion failed during RemoveFile.
type RemoveFailure struct {
	StorageName string `json:"storage_name"`
	Error       string `json:"error"`
}

// BackupService implements the ingest pipeline, the retrieval path and the
// catalog read/remove operations.
type BackupService struct {
	files    files.Repository
	sessions sessions.Repository
	blobs    storage.BlobStore
	logger   logging.Logger
	metrics  metrics.Client
}

func NewBackupService(fr files.Repository, sr sessions.Repository, blobs storage.BlobStore, l logging.Logger, m metrics.Client) *BackupService {
	return &BackupService{
		files:    fr,
		sessions: sr,
		blobs:    blobs,
		logger:   l.With("component", "backup"),
		metrics:  m,
	}
}

// Upload consumes a two-part multipart stream ("file" then "file-hash"),
// writing the file bytes through to the blob store while computing their
// digest. A declared/computed mismatch surfaces as common.ErrorDigestMismatch
// with no catalog commit; the already-written blob is left behind, there is
// no cleanup pass. Malformed multipart input surfaces as common.ErrorBadMultipart.
func (s *BackupService) Upload(ctx context.Context, identity *models.DeviceIdentity, originalName string, mr *multipart.Reader) (*models.File, error) {
	now := time.Now()

	uploaded := models.NewUploadedFile(identity.AccountID, identity.DeviceID, originalName)
	storageName := toStorageName(identity.DeviceID, originalName, now)

	part, err := mr.NextPart()
	if err != nil {
		return nil, fmt.Errorf("%w: missing file part", common.ErrorBadMultipart)
	}
	if part.FormName() != "file" {
		return nil, fmt.Errorf("%w: first part must be 'file', got %q", common.ErrorBadMultipart, part.FormName())
	}

	// The digest is computed over exactly the bytes the blob store reads;
	// there is no separate buffering pass.
	dr := newDigestReader(part, s.metrics)

	if _, err := s.blobs.Write(ctx, storageName, dr, storage.StaticSecret(identity.RepoPass)); err != nil {
		return nil, fmt.Errorf("blob write: %w", err)
	}

	computed := dr.SumHex()

	declared, err := readDeclaredHash(mr)
	if err != nil {
		return nil, err
	}

	if computed != declared {
		s.logger.Warn(ctx, "declared hash does not match computed",
			"declared", declared, "computed", computed)
		s.metrics.Inc("upload.sha256_mismatch", 1)
		return nil, common.ErrorDigestMismatch
	}

	version := &models.FileVersion{
		Size:        dr.Size(),
		Hash:        computed,
		Created:     now,
		StorageName: storageName,
	}

	file, err := s.saveFileVersion(ctx, uploaded, version)
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "upload stored", "storage_name", storageName,
		"size", version.Size, "hash", version.Hash)

	return file, nil
}

func readDeclaredHash(mr *multipart.Reader) (string, error) {
	part, err := mr.NextPart()
	if err != nil {
		return "", fmt.Errorf("%w: missing file-hash part", common.ErrorBadMultipart)
	}
	if part.FormName() != "file-hash" {
		return "", fmt.Errorf("%w: second part must be 'file-hash', got %q", common.ErrorBadMultipart, part.FormName())
	}

	b, err := io.ReadAll(io.LimitReader(part, maxDeclaredHashSize))
	if err != nil {
		return "", fmt.Errorf("reading file-hash part: %w", err)
	}

	return strings.ToLower(strings.TrimSpace(string(b))), nil
}

// saveFileVersion idempotently finds-or-creates the File row and appends the
// version. The two steps are not one transaction: a crash in between leaves
// a provisional zero-version File that later uploads adopt.
func (s *BackupService) saveFileVersion(ctx context.Context, uploaded models.UploadedFile, version *models.FileVersion) (*models.File, error) {
	start := time.Now()

	if err := s.files.CreateIfAbsent(ctx, &uploaded); err != nil {
		return nil, err
	}

	// Re-select rather than trusting the insert: a concurrent upload of the
	// same name may have created the row first.
	file, err := s.files.FindByIdentityHash(ctx, uploaded.IdentityHash)
	if err != nil {
		return nil, err
	}

	id, err := s.files.AppendVersion(ctx, file.ID, version)
	if err != nil {
		return nil, err
	}

	version.Version = id
	file.Versions = append(file.Versions, *version)

	s.metrics.Timing("dao.save_file_version", time.Since(start))

	return file, nil
}

// Load resolves a file version and returns its metadata together with a
// stream of its decrypted bytes. The blob read runs in a background
// goroutine feeding a pipe, so store latency and HTTP backpressure stay
// independent; a read error mid-stream surfaces only as a truncated body.
func (s *BackupService) Load(ctx context.Context, identity *models.DeviceIdentity, versionID int64) (*models.FileVersion, io.ReadCloser, error) {
	meta, err := s.files.GetVersionMeta(ctx, versionID)
	if err != nil {
		return nil, nil, err
	}

	pr, pw := io.Pipe()

	go func() {
		err := s.blobs.Read(ctx, meta.StorageName, pw, storage.StaticSecret(identity.RepoPass))
		if err != nil {
			s.logger.Warn(ctx, "error while reading the file",
				"storage_name", meta.StorageName, "error", err.Error())
		}
		_ = pw.CloseWithError(err)
	}()

	return meta, pr, nil
}

// ListFiles distinguishes a device with zero uploads (empty list) from a
// device the account has never seen (common.ErrorNotFound) by checking for
// any session of the pair.
func (s *BackupService) ListFiles(ctx context.Context, accountID, deviceID string) ([]models.File, error) {
	start := time.Now()

	found, err := s.files.ListFiles(ctx, accountID, deviceID)
	if err != nil {
		return nil, err
	}
	s.metrics.Timing("dao.list_files", time.Since(start))

	if len(found) > 0 {
		return found, nil
	}

	known, err := s.sessions.IsKnownDevice(ctx, accountID, deviceID)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, common.ErrorNotFound
	}

	return []models.File{}, nil
}

func (s *BackupService) ListDevices(ctx context.Context, accountID string) ([]string, error) {
	devices, err := s.sessions.ListDevices(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []string{}
	}
	return devices, nil
}

// RemoveFileVersion deletes one version's metadata first, then its blob.
// A missing version surfaces as common.ErrorNotFound; a blob deletion error
// propagates after the metadata is already gone.
func (s *BackupService) RemoveFileVersion(ctx context.Context, versionID int64) error {
	meta, err := s.files.GetVersionMeta(ctx, versionID)
	if err != nil {
		return err
	}

	deleted, err := s.files.DeleteVersion(ctx, versionID)
	if err != nil {
		return err
	}
	if !deleted {
		return common.ErrorNotFound
	}

	if err := s.blobs.Remove(ctx, meta.StorageName); err != nil {
		return fmt.Errorf("blob remove %q: %w", meta.StorageName, err)
	}

	return nil
}

// RemoveFile deletes all metadata of the file in one transaction, rolled
// back when the number of deleted version rows differs from the number of
// known storage names, then removes the blobs one by one. Failed blob
// deletions are returned by name; they are never silently swallowed.
func (s *BackupService) RemoveFile(ctx context.Context, identity *models.DeviceIdentity, fileID int64) ([]RemoveFailure, error) {
	names, err := s.files.GetStorageNames(ctx, identity.DeviceID, fileID)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, common.ErrorNotFound
	}

	if _, err := s.files.DeleteFileWithVersions(ctx, identity.DeviceID, fileID, int64(len(names))); err != nil {
		return nil, err
	}

	var failures []RemoveFailure
	for _, name := range names {
		if err := s.blobs.Remove(ctx, name); err != nil {
			s.logger.Warn(ctx, "blob deletion failed", "storage_name", name, "error", err.Error())
			failures = append(failures, RemoveFailure{StorageName: name, Error: err.Error()})
		}
	}

	return failures, nil
}

// toStorageName derives the blob store key for one upload from the device,
// the original name and a nanosecond-resolution timestamp, making it
// globally unique with overwhelming probability even when identical content
// is re-uploaded.
func toStorageName(deviceID, originalName string, ts time.Time) string {
	var secs [8]byte
	var nanos [4]byte
	binary.BigEndian.PutUint64(secs[:], uint64(ts.Unix()))
	binary.BigEndian.PutUint32(nanos[:], uint32(ts.Nanosecond()))

	h := sha256.New()
	h.Write([]byte(deviceID))
	h.Write([]byte(originalName))
	h.Write(secs[:])
	h.Write(nanos[:])

	return hex.EncodeToString(h.Sum(nil))
}

// digestReader updates a running digest and byte counter on every read,
// reporting chunk sizes to the metrics client, before handing the bytes on.
type digestReader struct {
	r       io.Reader
	h       hash.Hash
	n       int64
	metrics metrics.Client
}

func newDigestReader(r io.Reader, m metrics.Client) *digestReader {
	return &digestReader{r: r, h: sha256.New(), metrics: m}
}

func (d *digestReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if n > 0 {
		d.h.Write(p[:n])
		d.n += int64(n)
		d.metrics.Inc("upload.chunk_bytes", int64(n))
	}
	return n, err
}

func (d *digestReader) Size() int64 {
	return d.n
}

func (d *digestReader) SumHex() string {
	return hex.EncodeToString(d.h.Sum(nil))
}
