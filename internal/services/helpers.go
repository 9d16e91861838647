package services

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"gorm.io/datatypes"

	apperrors "github.com/charlesng35/dealcache/pkg/errors"
)

// Clock returns the current time. Services store UTC timestamps.
type Clock func() time.Time

// Reachability reports whether the remote API is currently reachable.
type Reachability interface {
	IsOnline() bool
}

type alwaysOffline struct{}

func (alwaysOffline) IsOnline() bool { return false }

func utcClock(clock Clock) Clock {
	if clock == nil {
		clock = time.Now
	}
	return func() time.Time { return clock().UTC() }
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func normaliseIDs(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func uniqueUints(values []uint) []uint {
	seen := make(map[uint]struct{}, len(values))
	out := make([]uint, 0, len(values))
	for _, value := range values {
		if value == 0 {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

// recordID extracts the "id" member of a JSON object. Numeric ids are kept in their literal form.
func recordID(payload []byte) (string, error) {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return "", apperrors.NewBadRequest("payload must be a JSON object")
	}

	raw := bytes.TrimSpace(probe.ID)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", apperrors.NewBadRequest("payload id is required")
	}

	if raw[0] == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", apperrors.NewBadRequest("payload id is invalid")
		}
		id = strings.TrimSpace(id)
		if id == "" {
			return "", apperrors.NewBadRequest("payload id is required")
		}
		return id, nil
	}

	if _, err := strconv.ParseFloat(string(raw), 64); err != nil {
		return "", apperrors.NewBadRequest("payload id must be a string or number")
	}
	return string(raw), nil
}

// encodePayload accepts raw JSON bytes or any marshalable value.
func encodePayload(value any) (datatypes.JSON, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return validJSON(v)
	case datatypes.JSON:
		return validJSON(v)
	case []byte:
		return validJSON(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, apperrors.NewBadRequest("payload is not serialisable")
		}
		return datatypes.JSON(data), nil
	}
}

func validJSON(data []byte) (datatypes.JSON, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, apperrors.NewBadRequest("payload must be valid JSON")
	}
	return datatypes.JSON(data), nil
}

func wellFormed(payload datatypes.JSON) bool {
	return len(payload) > 0 && json.Valid(payload)
}
