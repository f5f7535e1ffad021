package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, session *models.Session) (bool, error) {

	// xmax is non-zero only when the conflict branch updated an existing row.
	query :=
		`INSERT INTO sessions (id, account_id, device_id, pass, last_used)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (account_id, device_id)
		 DO UPDATE SET id = EXCLUDED.id, pass = EXCLUDED.pass, last_used = now()
		 RETURNING (xmax <> 0)
		 `

	var renewed bool
	err := r.db.QueryRowContext(ctx, query,
		session.ID, session.AccountID, session.DeviceID, session.EncryptedPass).Scan(&renewed)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return renewed, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {

	query :=
		`SELECT id, account_id, device_id, pass, last_used FROM sessions
		 WHERE id = $1
		 `

	session := &models.Session{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&session.ID, &session.AccountID, &session.DeviceID, &session.EncryptedPass, &session.LastUsed)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return session, nil
}

func (r *PostgresRepository) Touch(ctx context.Context, id string) error {

	query := `UPDATE sessions SET last_used = now() WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) IsKnownDevice(ctx context.Context, accountID, deviceID string) (bool, error) {

	query :=
		`SELECT EXISTS (
		   SELECT 1 FROM sessions WHERE account_id = $1 AND device_id = $2
		 )`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, accountID, deviceID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return exists, nil
}

func (r *PostgresRepository) ListDevices(ctx context.Context, accountID string) ([]string, error) {

	query := `SELECT DISTINCT device_id FROM sessions WHERE account_id = $1 ORDER BY device_id`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var deviceID string
		if err := rows.Scan(&deviceID); err != nil {
			return nil, err
		}
		result = append(result, deviceID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
