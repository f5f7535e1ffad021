package models

import "time"

// Session is one device's login. ID is the SHA-256 hex of the plaintext
// session token; the token itself is never persisted. EncryptedPass holds
// the account's storage passphrase, hex-encoded, encrypted under a key
// derived from the plaintext token. One row exists per (account, device):
// a later login replaces the row and invalidates the previous token.
type Session struct {
	ID            string
	AccountID     string
	DeviceID      string
	EncryptedPass string
	LastUsed      time.Time
}

// DeviceIdentity is the result of a successful authentication: the device,
// its account, and the decrypted storage passphrase for the blob store.
type DeviceIdentity struct {
	DeviceID  string
	AccountID string
	RepoPass  string
}
