package session

import (
	"context"
	"encoding/json"
	"maps"
	"reflect"
)

// Status is the per-request session state seen by finalization.
type Status int

const (
	// Untouched means downstream handling never accessed the session.
	Untouched Status = iota
	// Present means a session exists and may have been mutated.
	Present
	// Cleared means the session was explicitly set to nil.
	Cleared
)

func (s Status) String() string {
	switch s {
	case Untouched:
		return "untouched"
	case Present:
		return "present"
	case Cleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// State is the accessor pair handed to downstream handlers for one request.
// It is owned by a single request and is not safe for concurrent use.
type State struct {
	id       string
	status   Status
	current  *Session
	baseline []byte
}

func newState(id string, sess *Session, baseline []byte) *State {
	return &State{id: id, current: sess, baseline: baseline}
}

// ID returns the identifier the session will be stored under.
func (st *State) ID() string {
	return st.id
}

// Status returns the current state.
func (st *State) Status() Status {
	return st.status
}

// Session returns the current session, or nil once it has been cleared.
func (st *State) Session() *Session {
	switch st.status {
	case Cleared:
		return nil
	case Untouched:
		st.status = Present
	}
	return st.current
}

// Set replaces the session. nil clears it; maps, *Session values and
// anything whose JSON form is an object produce a new session wrapping a
// copy of the fields. Other values return ErrInvalidValue.
func (st *State) Set(v any) error {
	if v == nil {
		st.status = Cleared
		st.current = nil
		return nil
	}

	values, err := objectFields(v)
	if err != nil {
		return err
	}
	st.status = Present
	st.current = New(values)
	return nil
}

// Clear is shorthand for Set(nil).
func (st *State) Clear() {
	_ = st.Set(nil)
}

func objectFields(v any) (map[string]any, error) {
	switch val := v.(type) {
	case *Session:
		if val == nil {
			return nil, ErrInvalidValue
		}
		return val.Values(), nil
	case map[string]any:
		if val == nil {
			return map[string]any{}, nil
		}
		return maps.Clone(val), nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, ErrInvalidValue
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, ErrInvalidValue
		}
	default:
		return nil, ErrInvalidValue
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	sess, err := Decode(data)
	if err != nil {
		return nil, ErrInvalidValue
	}
	return sess.values, nil
}

type stateContextKey struct{}

// WithState returns a context carrying st.
func WithState(ctx context.Context, st *State) context.Context {
	return context.WithValue(ctx, stateContextKey{}, st)
}

// FromContext returns the request's session state.
func FromContext(ctx context.Context) (*State, bool) {
	if ctx == nil {
		return nil, false
	}
	st, ok := ctx.Value(stateContextKey{}).(*State)
	return st, ok && st != nil
}

// Get returns the request's session, or nil when it was cleared or the
// middleware is not installed.
func Get(ctx context.Context) *Session {
	st, ok := FromContext(ctx)
	if !ok {
		return nil
	}
	return st.Session()
}

// Set assigns the request's session. See State.Set.
func Set(ctx context.Context, v any) error {
	st, ok := FromContext(ctx)
	if !ok {
		return ErrNoState
	}
	return st.Set(v)
}

// Clear marks the request's session for deletion.
func Clear(ctx context.Context) error {
	return Set(ctx, nil)
}
