package reader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"mfa-orphans/internal/mfastatus/domain"
)

// wireSnapshot is the worker-authored document. totp and webauthn are decoded by hand to keep key order.
type wireSnapshot struct {
	GeneratedTS json.Number     `json:"generated_ts"`
	TOTP        json.RawMessage `json:"totp"`
	WebAuthn    json.RawMessage `json:"webauthn"`
}

type rawPair struct {
	key   string
	value json.RawMessage
}

// Parse decodes and normalizes a status snapshot document.
func Parse(raw []byte) (*domain.Snapshot, error) {
	var w wireSnapshot
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("status: decode snapshot: %w", err)
	}
	var ts int64
	if w.GeneratedTS != "" {
		f, err := w.GeneratedTS.Float64()
		if err != nil {
			return nil, fmt.Errorf("status: generated_ts: %w", err)
		}
		ts = int64(f)
	}

	totpPairs, err := orderedObject(w.TOTP)
	if err != nil {
		return nil, fmt.Errorf("status: totp: %w", err)
	}
	webauthnPairs, err := orderedObject(w.WebAuthn)
	if err != nil {
		return nil, fmt.Errorf("status: webauthn: %w", err)
	}

	totp := make([]domain.TOTPEntry, 0, len(totpPairs))
	for _, p := range totpPairs {
		totp = append(totp, domain.TOTPEntry{Subject: p.key, Present: totpPresent(p.value)})
	}
	webauthn := make([]domain.WebAuthnEntry, 0, len(webauthnPairs))
	for _, p := range webauthnPairs {
		webauthn = append(webauthn, domain.WebAuthnEntry{Subject: p.key, Count: webauthnCount(p.value)})
	}
	return domain.NewSnapshot(ts, totp, webauthn), nil
}

// orderedObject returns the members of a JSON object in document order. null and absent yield nil.
func orderedObject(raw json.RawMessage) ([]rawPair, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		// The worker emits [] for an empty map in some versions.
		if d == '[' {
			if tok, err := dec.Token(); err == nil {
				if end, ok := tok.(json.Delim); ok && end == ']' {
					return nil, nil
				}
			}
		}
		return nil, errors.New("expected object")
	}
	var out []rawPair
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errors.New("expected object key")
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, rawPair{key: key, value: v})
	}
	return out, nil
}

func decodeAny(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func totpPresent(raw json.RawMessage) bool {
	v, err := decodeAny(raw)
	if err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	}
	return false
}

// webauthnCount normalizes int | {count:int} | bool. An accepted entry without a count is one device;
// anything that does not normalize to a positive count is absent.
func webauthnCount(raw json.RawMessage) int {
	v, err := decodeAny(raw)
	if err != nil {
		return 0
	}
	switch t := v.(type) {
	case json.Number:
		return numberCount(t)
	case bool:
		if t {
			return 1
		}
		return 0
	case map[string]any:
		c, ok := t["count"]
		if !ok || c == nil {
			return 1
		}
		if n, ok := c.(json.Number); ok {
			return numberCount(n)
		}
		return 1
	}
	return 0
}

func numberCount(n json.Number) int {
	f, err := n.Float64()
	if err != nil || f <= 0 || math.IsNaN(f) {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}
