package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/familycare/checkin-dispatch/internal/model"
)

type DevicePairingRepository interface {
	// FindClaimed returns the most recently claimed pairing for the recipient.
	FindClaimed(ctx context.Context, householdID, recipientID string) (*model.DevicePairing, error)
	ClearDeviceToken(ctx context.Context, id string, key string) error
	DeleteExpired(ctx context.Context, grace time.Duration) (int64, error)
}

type devicePairingRepo struct {
	db *sqlx.DB
}

func NewDevicePairingRepository(db *sqlx.DB) DevicePairingRepository {
	return &devicePairingRepo{db: db}
}

func (r *devicePairingRepo) FindClaimed(ctx context.Context, householdID, recipientID string) (*model.DevicePairing, error) {
	var pairing model.DevicePairing
	err := r.db.GetContext(ctx, &pairing, `
		SELECT * FROM device_pairings
		WHERE household_id = $1 AND recipient_id = $2 AND status = 'claimed'
		ORDER BY claimed_at DESC NULLS LAST
		LIMIT 1
	`, householdID, recipientID)
	return HandleNotFound(&pairing, err)
}

func (r *devicePairingRepo) ClearDeviceToken(ctx context.Context, id string, key string) error {
	if key != model.DeviceInfoPushTokenKey && key != model.DeviceInfoVoIPTokenKey {
		return fmt.Errorf("unknown device info key %q", key)
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE device_pairings SET
			device_info = device_info - $2::text,
			updated_at = $3
		WHERE id = $1
	`, id, key, time.Now())
	return err
}

// DeleteExpired removes unclaimed pairing codes whose expiry passed more than grace ago.
func (r *devicePairingRepo) DeleteExpired(ctx context.Context, grace time.Duration) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM device_pairings
		WHERE status = 'pending' AND expires_at < $1
	`, time.Now().Add(-grace))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
