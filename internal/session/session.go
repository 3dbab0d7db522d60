// Package session binds per-client session data to an opaque identifier
// carried in a cookie and persists it in an external key-value store.
package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
)

// reservedKeys are bookkeeping names that are never persisted and never
// counted as session fields.
var reservedKeys = map[string]struct{}{
	"isNew": {},
	"_ctx":  {},
	"_json": {},
}

// IsReserved reports whether key is excluded from serialization.
func IsReserved(key string) bool {
	_, ok := reservedKeys[key]
	return ok
}

// Session holds application data for a single client.
type Session struct {
	values map[string]any
	isNew  bool

	// snapshot caches the serialized form computed by Changed until the next mutation.
	snapshot    []byte
	snapshotErr error
}

// New creates a session from prior data. A nil map produces a new, empty
// session; otherwise the fields are copied shallowly.
func New(prior map[string]any) *Session {
	if prior == nil {
		return &Session{values: make(map[string]any), isNew: true}
	}
	return &Session{values: maps.Clone(prior)}
}

// Decode builds a session from a stored payload. Numbers are kept as
// json.Number so a canonical payload re-serializes byte for byte.
func Decode(data []byte) (*Session, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var values map[string]any
	if err := dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	if values == nil {
		return nil, ErrCorruptPayload
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrCorruptPayload)
	}
	return New(values), nil
}

// IsNew reports whether the session was created without stored data.
func (s *Session) IsNew() bool {
	return s != nil && s.isNew
}

// Len returns the number of public fields.
func (s *Session) Len() int {
	if s == nil {
		return 0
	}
	n := 0
	for k := range s.values {
		if !IsReserved(k) {
			n++
		}
	}
	return n
}

// Populated reports whether the session has at least one public field.
func (s *Session) Populated() bool {
	return s.Len() > 0
}

// Keys returns the public field names in sorted order.
func (s *Session) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		if !IsReserved(k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// Values returns a shallow copy of the public fields.
func (s *Session) Values() map[string]any {
	out := make(map[string]any)
	if s == nil {
		return out
	}
	for k, v := range s.values {
		if !IsReserved(k) {
			out[k] = v
		}
	}
	return out
}

// Get retrieves a value.
func (s *Session) Get(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.values[key]
	return v, ok
}

// GetString retrieves a string value.
func (s *Session) GetString(key string) (string, bool) {
	v, ok := s.Get(key)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// GetInt retrieves an integer value. Loaded numbers arrive as json.Number.
func (s *Session) GetInt(key string) (int, bool) {
	v, ok := s.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return int(f), true
		}
		return int(i), true
	default:
		return 0, false
	}
}

// GetBool retrieves a bool value.
func (s *Session) GetBool(key string) (bool, bool) {
	v, ok := s.Get(key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Set stores a value.
func (s *Session) Set(key string, value any) {
	if s == nil {
		return
	}
	s.values[key] = value
	s.invalidate()
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	if s == nil {
		return
	}
	delete(s.values, key)
	s.invalidate()
}

// Clear removes every value but keeps the session itself.
func (s *Session) Clear() {
	if s == nil {
		return
	}
	clear(s.values)
	s.invalidate()
}

// MarshalJSON returns the canonical serialized form: a compact JSON object
// with sorted keys and without reserved keys.
func (s *Session) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	if s.snapshot != nil || s.snapshotErr != nil {
		return s.snapshot, s.snapshotErr
	}
	return encode(s.Values())
}

// Changed reports whether the session differs from prev, a previously
// serialized form. With no baseline it is always changed. The serialization
// computed here is reused by MarshalJSON until the session is mutated.
func (s *Session) Changed(prev []byte) bool {
	if len(prev) == 0 {
		return true
	}
	s.snapshot, s.snapshotErr = encode(s.Values())
	if s.snapshotErr != nil {
		return true
	}
	return !bytes.Equal(s.snapshot, prev)
}

// encode marshals without HTML escaping so payloads written by other
// JSON.stringify-style producers compare equal.
func encode(values map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(values); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (s *Session) invalidate() {
	s.snapshot = nil
	s.snapshotErr = nil
}
