package router

import (
	"encoding/json"
	"strings"
	"time"
)

// envelopeMarker prefixes every serialized TTL envelope so that raw
// values are never mistaken for one. The prefix is stable because the
// marker is the first declared struct field.
const envelopeMarker = `{"_tsv":1`

// envelope wraps a value with an absolute expiry for backends that
// have no native TTL support.
type envelope struct {
	Marker    int    `json:"_tsv"`
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expiresAt"`
}

// wrapTTL serializes a value into a TTL envelope expiring at the
// given absolute time.
func wrapTTL(value string, expiresAt time.Time) (string, error) {
	data, err := json.Marshal(envelope{
		Marker:    1,
		Value:     value,
		ExpiresAt: expiresAt.UnixMilli(),
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unwrapTTL decodes a raw stored string. Non-enveloped values pass
// through unchanged with a zero expiresAt. An enveloped value past its
// expiry reports expired=true and must be treated as absent by the
// caller; a live one carries its deadline so the cache can honor it.
func unwrapTTL(raw string, now time.Time) (value string, expiresAt time.Time, expired bool) {
	if !strings.HasPrefix(raw, envelopeMarker) {
		return raw, time.Time{}, false
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || env.Marker != 1 {
		// Not a well-formed envelope after all; hand back the raw value.
		return raw, time.Time{}, false
	}
	if env.ExpiresAt <= 0 {
		return env.Value, time.Time{}, false
	}
	if now.UnixMilli() > env.ExpiresAt {
		return "", time.Time{}, true
	}
	return env.Value, time.UnixMilli(env.ExpiresAt), false
}
