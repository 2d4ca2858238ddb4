package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/familycare/checkin-dispatch/internal/audit"
	"github.com/familycare/checkin-dispatch/internal/model"
	"github.com/familycare/checkin-dispatch/internal/repository"
)

// credentialQuery carries one resolution through the strategy chain. The
// claimed pairing is loaded at most once and shared by the strategies that
// need it.
type credentialQuery struct {
	HouseholdID string
	RecipientID string

	pairing       *model.DevicePairing
	pairingLoaded bool
}

type credentialStrategy struct {
	source  model.CredentialSource
	resolve func(ctx context.Context, q *credentialQuery) (*model.Credential, error)
}

// TokenResolver finds the delivery credential for a recipient by trying, in
// order: the claimed device pairing, the claiming user's latest push token,
// and any active token in the household.
type TokenResolver struct {
	pairingRepo   repository.DevicePairingRepository
	pushTokenRepo repository.PushTokenRepository
	strategies    []credentialStrategy
}

func NewTokenResolver(
	pairingRepo repository.DevicePairingRepository,
	pushTokenRepo repository.PushTokenRepository,
) *TokenResolver {
	r := &TokenResolver{
		pairingRepo:   pairingRepo,
		pushTokenRepo: pushTokenRepo,
	}
	r.strategies = []credentialStrategy{
		{source: model.SourceDevicePairing, resolve: r.fromPairing},
		{source: model.SourcePairingUser, resolve: r.fromPairingUser},
		{source: model.SourceHouseholdMember, resolve: r.fromHousehold},
	}
	return r
}

// Resolve returns the first usable credential, or (nil, nil) when no source
// has one. A store error stops the chain.
func (r *TokenResolver) Resolve(ctx context.Context, householdID, recipientID string) (*model.Credential, error) {
	q := &credentialQuery{HouseholdID: householdID, RecipientID: recipientID}

	for _, strategy := range r.strategies {
		cred, err := strategy.resolve(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("resolve credential from %s: %w", strategy.source, err)
		}
		if cred.Usable() {
			cred.Source = strategy.source
			return cred, nil
		}
	}

	log.Debug().
		Str("householdId", householdID).
		Str("recipientId", recipientID).
		Msg("no delivery credential found")
	return nil, nil
}

// Invalidate marks the record a credential came from as unusable. Pairing
// credentials lose the rejected token key; push-token rows are deactivated.
func (r *TokenResolver) Invalidate(ctx context.Context, cred *model.Credential, voip bool) error {
	if cred == nil || cred.RecordID == "" {
		return nil
	}

	var err error
	switch cred.Source {
	case model.SourceDevicePairing:
		key := model.DeviceInfoPushTokenKey
		if voip {
			key = model.DeviceInfoVoIPTokenKey
		}
		err = r.pairingRepo.ClearDeviceToken(ctx, cred.RecordID, key)
	default:
		err = r.pushTokenRepo.Deactivate(ctx, cred.RecordID)
	}
	if err != nil {
		return fmt.Errorf("invalidate %s credential: %w", cred.Source, err)
	}

	audit.Log(ctx, audit.Event{
		Type: audit.EventTokenDeactivated,
		Details: map[string]interface{}{
			"source":   string(cred.Source),
			"recordId": cred.RecordID,
			"platform": string(cred.Platform),
			"voip":     voip,
		},
	})
	return nil
}

func (q *credentialQuery) claimedPairing(ctx context.Context, repo repository.DevicePairingRepository) (*model.DevicePairing, error) {
	if q.pairingLoaded {
		return q.pairing, nil
	}
	pairing, err := repo.FindClaimed(ctx, q.HouseholdID, q.RecipientID)
	if err != nil {
		return nil, err
	}
	q.pairing = pairing
	q.pairingLoaded = true
	return pairing, nil
}

func (r *TokenResolver) fromPairing(ctx context.Context, q *credentialQuery) (*model.Credential, error) {
	pairing, err := q.claimedPairing(ctx, r.pairingRepo)
	if err != nil || pairing == nil {
		return nil, err
	}
	device := pairing.Device()
	return &model.Credential{
		Platform:  device.Platform,
		PushToken: device.PushToken,
		VoIPToken: device.VoIPToken,
		RecordID:  pairing.ID,
		UpdatedAt: pairing.UpdatedAt,
	}, nil
}

// fromPairingUser only applies when the pairing names a platform but carries
// no usable token of its own.
func (r *TokenResolver) fromPairingUser(ctx context.Context, q *credentialQuery) (*model.Credential, error) {
	pairing, err := q.claimedPairing(ctx, r.pairingRepo)
	if err != nil || pairing == nil || pairing.ClaimedBy == nil {
		return nil, err
	}
	device := pairing.Device()
	if device.Platform == "" {
		return nil, nil
	}

	token, err := r.pushTokenRepo.FindLatestActiveByUser(ctx, *pairing.ClaimedBy)
	if err != nil || token == nil {
		return nil, err
	}
	cred := credentialFromToken(token)
	if cred.Platform == "" {
		cred.Platform = device.Platform
	}
	return cred, nil
}

func (r *TokenResolver) fromHousehold(ctx context.Context, q *credentialQuery) (*model.Credential, error) {
	tokens, err := r.pushTokenRepo.FindActiveByHousehold(ctx, q.HouseholdID)
	if err != nil {
		return nil, err
	}
	for i := range tokens {
		if cred := credentialFromToken(&tokens[i]); cred.Usable() {
			return cred, nil
		}
	}
	return nil, nil
}

func credentialFromToken(token *model.PushToken) *model.Credential {
	cred := &model.Credential{
		Platform:  token.Platform,
		PushToken: token.Token,
		RecordID:  token.ID,
		UpdatedAt: token.UpdatedAt,
	}
	if token.VoIPToken != nil {
		cred.VoIPToken = *token.VoIPToken
	}
	return cred
}
