package localstore

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/floorlinehq/floorline/api/pkg/system"
)

const (
	holderIDKey    = "identity/holder_id"
	deviceLabelKey = "identity/device_label"
)

// EnsureHolderID returns this device's stable holder ID, minting and
// persisting one on first run. The ID must survive restarts so leases
// written before a crash are recognised as our own.
func EnsureHolderID(ctx context.Context, store *LocalStore) (string, error) {
	id, err := store.Get(ctx, holderIDKey)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	id = system.GenerateUUID()
	if err := store.Set(ctx, holderIDKey, id); err != nil {
		return "", err
	}

	log.Info().Str("holder_id", id).Msg("generated new holder ID for this device")

	return id, nil
}

// EnsureDeviceLabel returns the human readable label shown to operators
// on conflict banners. A configured label always wins and is persisted;
// otherwise the stored one is reused, and a fresh device gets a generated
// label.
func EnsureDeviceLabel(ctx context.Context, store *LocalStore, configured string) (string, error) {
	if configured != "" {
		if err := store.Set(ctx, deviceLabelKey, configured); err != nil {
			return "", err
		}
		return configured, nil
	}

	label, err := store.Get(ctx, deviceLabelKey)
	if err == nil {
		return label, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	label = system.GenerateDeviceLabel()
	if err := store.Set(ctx, deviceLabelKey, label); err != nil {
		return "", err
	}

	log.Info().Str("device_label", label).Msg("generated new device label")

	return label, nil
}
