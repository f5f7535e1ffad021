package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// File is a named file of one device, with all its stored versions ordered
// by insertion. A File with no versions is provisional: the row was created
// but the first version append did not complete.
type File struct {
	ID           int64         `json:"id"`
	DeviceID     string        `json:"device_id"`
	OriginalName string        `json:"original_name"`
	Versions     []FileVersion `json:"versions"`
}

// FileVersion is one stored revision of a File. StorageName is the blob
// store key; Version is assigned by the catalog on insert.
type FileVersion struct {
	Version     int64     `json:"version"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	Created     time.Time `json:"created"`
	StorageName string    `json:"storage_name"`
}

// UploadedFile carries the identity of an incoming upload before any bytes
// are read.
type UploadedFile struct {
	AccountID    string
	DeviceID     string
	OriginalName string
	IdentityHash string
}

// NewUploadedFile computes the identity hash that keys the File row:
// a deterministic digest of (account, device, original name).
func NewUploadedFile(accountID, deviceID, originalName string) UploadedFile {
	h := sha256.New()
	h.Write([]byte(accountID))
	h.Write([]byte(deviceID))
	h.Write([]byte(originalName))

	return UploadedFile{
		AccountID:    accountID,
		DeviceID:     deviceID,
		OriginalName: originalName,
		IdentityHash: hex.EncodeToString(h.Sum(nil)),
	}
}
