// Package snapshot persists small JSON documents in key-value slots: the two
// wizard slots per owner and the per-token response drafts.
//
// Every slot carries a version envelope. Payloads written before the envelope
// existed are read as version 0; anything newer than CurrentVersion is refused
// so callers can fall back to defaults.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const CurrentVersion = 1

var (
	ErrMissing            = errors.New("snapshot: slot is empty")
	ErrUnsupportedVersion = errors.New("snapshot: unsupported version")
	ErrCorrupt            = errors.New("snapshot: corrupt slot")
)

// Store is a best-effort key-value backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

const keyPrefix = "com.refcheck"

func WizardFormKey(owner string) string {
	return keyPrefix + ".wizard." + owner + ".formData"
}

func WizardStepKey(owner string) string {
	return keyPrefix + ".wizard." + owner + ".currentStep"
}

func ResponseDraftKey(token string) string {
	return keyPrefix + ".response." + token + ".draft"
}

type envelope struct {
	Version *int            `json:"version"`
	SavedAt time.Time       `json:"savedAt"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps v in the current envelope.
func Encode(v any, now time.Time) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal payload: %w", err)
	}
	version := CurrentVersion
	return json.Marshal(envelope{Version: &version, SavedAt: now.UTC(), Payload: payload})
}

// Decode unpacks data into v and reports the version it was written with.
func Decode(data []byte, v any) (int, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err == nil && env.Version != nil && env.Payload != nil {
		if *env.Version > CurrentVersion || *env.Version < 1 {
			return *env.Version, fmt.Errorf("%w: %d", ErrUnsupportedVersion, *env.Version)
		}
		if err := json.Unmarshal(env.Payload, v); err != nil {
			return *env.Version, fmt.Errorf("%w: decode payload: %w", ErrCorrupt, err)
		}
		return *env.Version, nil
	}

	// legacy slot: the bare payload
	if err := json.Unmarshal(data, v); err != nil {
		return 0, fmt.Errorf("%w: decode legacy payload: %w", ErrCorrupt, err)
	}
	return 0, nil
}

// Load reads and decodes one slot.
func Load(ctx context.Context, s Store, key string, v any) (int, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	return Decode(data, v)
}

// IsReadFailure reports whether err came from the backend rather than from
// what the slot holds. An empty, corrupt or too new slot is not one.
func IsReadFailure(err error) bool {
	return err != nil &&
		!errors.Is(err, ErrMissing) &&
		!errors.Is(err, ErrCorrupt) &&
		!errors.Is(err, ErrUnsupportedVersion)
}

// Save encodes v and writes it to one slot.
func Save(ctx context.Context, s Store, key string, v any, ttl time.Duration, now time.Time) error {
	data, err := Encode(v, now)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, data, ttl)
}
