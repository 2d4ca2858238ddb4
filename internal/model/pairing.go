package model

import (
	"encoding/json"
	"time"
)

// DevicePairing binds a physical device to a care recipient. A pending row is
// an ephemeral pairing code; once a device claims it the row carries the
// device's platform and push credentials in DeviceInfo.
type DevicePairing struct {
	ID          string           `db:"id" json:"id"`
	Code        string           `db:"code" json:"code"`
	HouseholdID string           `db:"household_id" json:"householdId"`
	RecipientID string           `db:"recipient_id" json:"recipientId"`
	Status      PairingStatus    `db:"status" json:"status"`
	ClaimedBy   *string          `db:"claimed_by" json:"claimedBy,omitempty"`
	DeviceInfo  *json.RawMessage `db:"device_info" json:"deviceInfo,omitempty"`
	ExpiresAt   time.Time        `db:"expires_at" json:"expiresAt"`
	ClaimedAt   *time.Time       `db:"claimed_at" json:"claimedAt,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updatedAt"`
}

// DeviceInfo is the JSON document stored on a claimed pairing.
type DeviceInfo struct {
	Platform  Platform `json:"platform,omitempty"`
	PushToken string   `json:"pushToken,omitempty"`
	VoIPToken string   `json:"voipToken,omitempty"`
	Model     string   `json:"model,omitempty"`
}

// Device decodes DeviceInfo. A missing or malformed document yields the zero value.
func (p *DevicePairing) Device() DeviceInfo {
	var info DeviceInfo
	if p.DeviceInfo == nil {
		return info
	}
	_ = json.Unmarshal(*p.DeviceInfo, &info)
	return info
}

// Device-info keys that a failed delivery can clear.
const (
	DeviceInfoPushTokenKey = "pushToken"
	DeviceInfoVoIPTokenKey = "voipToken"
)

type PushToken struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"userId"`
	Platform    Platform  `db:"platform" json:"platform"`
	Token       string    `db:"token" json:"token"`
	VoIPToken   *string   `db:"voip_token" json:"voipToken,omitempty"`
	IsActive    bool      `db:"is_active" json:"isActive"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}
