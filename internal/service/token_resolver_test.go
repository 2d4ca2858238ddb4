package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/familycare/checkin-dispatch/internal/model"
)

func claimedPairing(info string) *model.DevicePairing {
	raw := json.RawMessage(info)
	return &model.DevicePairing{
		ID:          "pairing-1",
		HouseholdID: "household-1",
		RecipientID: "recipient-1",
		Status:      model.PairingStatusClaimed,
		ClaimedBy:   strPtr("user-1"),
		DeviceInfo:  &raw,
	}
}

func TestTokenResolver_PairingWinsWithoutConsultingFallbacks(t *testing.T) {
	pairings := new(mockPairingRepo)
	tokens := new(mockPushTokenRepo)
	pairings.On("FindClaimed", mock.Anything, "household-1", "recipient-1").
		Return(claimedPairing(`{"platform":"android","pushToken":"fcm-token-1"}`), nil)

	cred, err := NewTokenResolver(pairings, tokens).Resolve(context.Background(), "household-1", "recipient-1")

	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, model.SourceDevicePairing, cred.Source)
	assert.Equal(t, model.PlatformAndroid, cred.Platform)
	assert.Equal(t, "fcm-token-1", cred.PushToken)
	assert.Equal(t, "pairing-1", cred.RecordID)

	pairings.AssertNumberOfCalls(t, "FindClaimed", 1)
	tokens.AssertNumberOfCalls(t, "FindLatestActiveByUser", 0)
	tokens.AssertNumberOfCalls(t, "FindActiveByHousehold", 0)
}

func TestTokenResolver_PairingPlatformWithoutTokenUsesClaimingUser(t *testing.T) {
	pairings := new(mockPairingRepo)
	tokens := new(mockPushTokenRepo)
	pairings.On("FindClaimed", mock.Anything, "household-1", "recipient-1").
		Return(claimedPairing(`{"platform":"ios"}`), nil)
	tokens.On("FindLatestActiveByUser", mock.Anything, "user-1").
		Return(&model.PushToken{ID: "token-7", UserID: "user-1", Platform: model.PlatformIOS, Token: "apns-7", VoIPToken: strPtr("voip-7")}, nil)

	cred, err := NewTokenResolver(pairings, tokens).Resolve(context.Background(), "household-1", "recipient-1")

	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, model.SourcePairingUser, cred.Source)
	assert.Equal(t, "token-7", cred.RecordID)
	assert.Equal(t, "voip-7", cred.VoIPToken)
	assert.True(t, cred.UsesVoIP())

	pairings.AssertNumberOfCalls(t, "FindClaimed", 1)
	tokens.AssertNumberOfCalls(t, "FindActiveByHousehold", 0)
}

func TestTokenResolver_AndroidPairingWithOnlyVoIPTokenFallsThrough(t *testing.T) {
	pairings := new(mockPairingRepo)
	tokens := new(mockPushTokenRepo)
	pairings.On("FindClaimed", mock.Anything, "household-1", "recipient-1").
		Return(claimedPairing(`{"platform":"android","voipToken":"stray-voip"}`), nil)
	tokens.On("FindLatestActiveByUser", mock.Anything, "user-1").
		Return(&model.PushToken{ID: "token-9", UserID: "user-1", Platform: model.PlatformAndroid, Token: "fcm-9"}, nil)

	cred, err := NewTokenResolver(pairings, tokens).Resolve(context.Background(), "household-1", "recipient-1")

	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, model.SourcePairingUser, cred.Source)
	assert.Equal(t, "fcm-9", cred.PushToken)
	assert.False(t, cred.UsesVoIP())
	tokens.AssertNumberOfCalls(t, "FindActiveByHousehold", 0)
}

func TestCredentialUsable(t *testing.T) {
	tests := []struct {
		name string
		cred *model.Credential
		want bool
	}{
		{"nil", nil, false},
		{"android push", &model.Credential{Platform: model.PlatformAndroid, PushToken: "fcm"}, true},
		{"android voip only", &model.Credential{Platform: model.PlatformAndroid, VoIPToken: "voip"}, false},
		{"ios push", &model.Credential{Platform: model.PlatformIOS, PushToken: "apns"}, true},
		{"ios voip only", &model.Credential{Platform: model.PlatformIOS, VoIPToken: "voip"}, true},
		{"unknown platform voip only", &model.Credential{VoIPToken: "voip"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cred.Usable())
		})
	}
}

func TestTokenResolver_FallsBackToHousehold(t *testing.T) {
	t.Run("no pairing", func(t *testing.T) {
		pairings := new(mockPairingRepo)
		tokens := new(mockPushTokenRepo)
		pairings.On("FindClaimed", mock.Anything, "household-1", "recipient-1").Return(nil, nil)
		tokens.On("FindActiveByHousehold", mock.Anything, "household-1").
			Return([]model.PushToken{
				{ID: "token-empty", Platform: model.PlatformAndroid},
				{ID: "token-2", Platform: model.PlatformAndroid, Token: "fcm-2"},
			}, nil)

		cred, err := NewTokenResolver(pairings, tokens).Resolve(context.Background(), "household-1", "recipient-1")

		require.NoError(t, err)
		require.NotNil(t, cred)
		assert.Equal(t, model.SourceHouseholdMember, cred.Source)
		assert.Equal(t, "token-2", cred.RecordID)
		tokens.AssertNumberOfCalls(t, "FindLatestActiveByUser", 0)
	})

	t.Run("pairing without platform skips claiming user", func(t *testing.T) {
		pairings := new(mockPairingRepo)
		tokens := new(mockPushTokenRepo)
		pairings.On("FindClaimed", mock.Anything, "household-1", "recipient-1").
			Return(claimedPairing(`{}`), nil)
		tokens.On("FindActiveByHousehold", mock.Anything, "household-1").
			Return([]model.PushToken{{ID: "token-3", Platform: model.PlatformIOS, Token: "apns-3"}}, nil)

		cred, err := NewTokenResolver(pairings, tokens).Resolve(context.Background(), "household-1", "recipient-1")

		require.NoError(t, err)
		assert.Equal(t, model.SourceHouseholdMember, cred.Source)
		tokens.AssertNumberOfCalls(t, "FindLatestActiveByUser", 0)
	})
}

func TestTokenResolver_NotFound(t *testing.T) {
	pairings := new(mockPairingRepo)
	tokens := new(mockPushTokenRepo)
	pairings.On("FindClaimed", mock.Anything, "household-1", "recipient-1").
		Return(claimedPairing(`{"platform":"android"}`), nil)
	tokens.On("FindLatestActiveByUser", mock.Anything, "user-1").Return(nil, nil)
	tokens.On("FindActiveByHousehold", mock.Anything, "household-1").Return([]model.PushToken{}, nil)

	cred, err := NewTokenResolver(pairings, tokens).Resolve(context.Background(), "household-1", "recipient-1")

	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestTokenResolver_StoreErrorStopsChain(t *testing.T) {
	pairings := new(mockPairingRepo)
	tokens := new(mockPushTokenRepo)
	pairings.On("FindClaimed", mock.Anything, "household-1", "recipient-1").Return(nil, errors.New("timeout"))

	cred, err := NewTokenResolver(pairings, tokens).Resolve(context.Background(), "household-1", "recipient-1")

	assert.Error(t, err)
	assert.Nil(t, cred)
	tokens.AssertNotCalled(t, "FindActiveByHousehold", mock.Anything, mock.Anything)
}

func TestTokenResolver_Invalidate(t *testing.T) {
	t.Run("pairing push token clears device key", func(t *testing.T) {
		pairings := new(mockPairingRepo)
		tokens := new(mockPushTokenRepo)
		pairings.On("ClearDeviceToken", mock.Anything, "pairing-1", model.DeviceInfoPushTokenKey).Return(nil)

		err := NewTokenResolver(pairings, tokens).Invalidate(context.Background(), &model.Credential{
			Source: model.SourceDevicePairing, RecordID: "pairing-1", PushToken: "fcm",
		}, false)

		require.NoError(t, err)
		pairings.AssertExpectations(t)
		tokens.AssertNotCalled(t, "Deactivate", mock.Anything, mock.Anything)
	})

	t.Run("pairing voip token clears voip key", func(t *testing.T) {
		pairings := new(mockPairingRepo)
		pairings.On("ClearDeviceToken", mock.Anything, "pairing-1", model.DeviceInfoVoIPTokenKey).Return(nil)

		err := NewTokenResolver(pairings, new(mockPushTokenRepo)).Invalidate(context.Background(), &model.Credential{
			Source: model.SourceDevicePairing, RecordID: "pairing-1", VoIPToken: "voip",
		}, true)

		require.NoError(t, err)
		pairings.AssertExpectations(t)
	})

	t.Run("push token row is deactivated", func(t *testing.T) {
		tokens := new(mockPushTokenRepo)
		tokens.On("Deactivate", mock.Anything, "token-9").Return(nil)

		err := NewTokenResolver(new(mockPairingRepo), tokens).Invalidate(context.Background(), &model.Credential{
			Source: model.SourceHouseholdMember, RecordID: "token-9",
		}, false)

		require.NoError(t, err)
		tokens.AssertExpectations(t)
	})

	t.Run("store error is returned", func(t *testing.T) {
		tokens := new(mockPushTokenRepo)
		tokens.On("Deactivate", mock.Anything, "token-9").Return(errors.New("boom"))

		err := NewTokenResolver(new(mockPairingRepo), tokens).Invalidate(context.Background(), &model.Credential{
			Source: model.SourcePairingUser, RecordID: "token-9",
		}, false)

		assert.Error(t, err)
	})
}
