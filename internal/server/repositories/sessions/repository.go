package sessions

import (
	"context"

	"github.com/dmitrijs2005/filevault/internal/server/models"
)

type Repository interface {
	// Upsert stores the session for its (account, device) pair, replacing any
	// previous row and invalidating the previous token. Reports whether an
	// earlier session existed.
	Upsert(ctx context.Context, session *models.Session) (renewed bool, err error)

	// GetByID looks a session up by the token hash.
	GetByID(ctx context.Context, id string) (*models.Session, error)

	// Touch refreshes last_used for the session with the given token hash.
	Touch(ctx context.Context, id string) error

	// IsKnownDevice reports whether the device has ever logged in to the account.
	IsKnownDevice(ctx context.Context, accountID, deviceID string) (bool, error)

	// ListDevices returns the distinct device ids with a session for the account.
	ListDevices(ctx context.Context, accountID string) ([]string, error)
}
