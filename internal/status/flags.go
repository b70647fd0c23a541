package status

import (
	"context"
	"errors"

	"biketrack/internal/apperrors"
	"biketrack/internal/kvstore"
)

func stolenKey(device string) string { return "stolen:" + device }

// Flags persists per-device operator flags in the key-value store. The
// stolen flag is written without a TTL; it survives every telemetry and job
// retention window and only an explicit clear removes it.
type Flags struct {
	store kvstore.Store
}

// NewFlags creates a flag store over the given key-value store.
func NewFlags(store kvstore.Store) *Flags {
	return &Flags{store: store}
}

// SetStolen marks or clears the stolen flag for a device.
func (f *Flags) SetStolen(ctx context.Context, device string, stolen bool) error {
	if device == "" {
		return apperrors.Validation("device", "device is required")
	}
	if !stolen {
		if err := f.store.Delete(ctx, stolenKey(device)); err != nil {
			return apperrors.Internal("kvstore.delete stolen flag", err)
		}
		return nil
	}
	if err := f.store.Put(ctx, stolenKey(device), []byte("1"), 0); err != nil {
		return apperrors.Internal("kvstore.put stolen flag", err)
	}
	return nil
}

// Stolen reads the stolen flag for a device. An absent key means not stolen.
func (f *Flags) Stolen(ctx context.Context, device string) (bool, error) {
	_, err := f.store.Get(ctx, stolenKey(device))
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Internal("kvstore.get stolen flag", err)
	}
	return true, nil
}
