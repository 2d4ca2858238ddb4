package model

import "time"

type CredentialSource string

const (
	SourceDevicePairing   CredentialSource = "device_pairing"
	SourcePairingUser     CredentialSource = "pairing_user_token"
	SourceHouseholdMember CredentialSource = "household_member_token"
)

// Credential is a resolved delivery address for one recipient. RecordID is the
// pairing id or push-token id the credential was read from.
type Credential struct {
	Platform  Platform
	PushToken string
	VoIPToken string
	Source    CredentialSource
	RecordID  string
	UpdatedAt time.Time
}

// Usable reports whether the credential can reach its platform. Only iOS can
// be reached through a VoIP token alone.
func (c *Credential) Usable() bool {
	if c == nil {
		return false
	}
	if c.Platform == PlatformIOS {
		return c.PushToken != "" || c.VoIPToken != ""
	}
	return c.PushToken != ""
}

// UsesVoIP reports whether delivery should go through the VoIP channel.
func (c *Credential) UsesVoIP() bool {
	return c.Platform == PlatformIOS && c.VoIPToken != ""
}
