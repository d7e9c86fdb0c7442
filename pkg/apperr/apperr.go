package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can route it without inspecting messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindClientInput
	KindAuthorization
	KindNotFound
	KindUpstream
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindClientInput:
		return "client_input"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

var (
	// Client input errors
	ErrMissingCode    = errors.New("authorization code not provided")
	ErrMissingEventID = errors.New("event id is required")
	ErrInvalidState   = errors.New("invalid oauth state")
	ErrEmptyIdentity  = errors.New("identity is required")

	// Credential errors
	ErrCredentialNotFound = errors.New("credential not found")
	ErrNoAccessToken      = errors.New("no access token")
	ErrNoRefreshToken     = errors.New("no refresh token, consent required")
	ErrRefreshRejected    = errors.New("refresh token rejected by provider")

	// Calendar errors
	ErrEventNotFound = errors.New("event not found")
	ErrInvalidEvent  = errors.New("invalid event")
)

// Error is a tagged failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E tags err with kind. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func ClientInput(op string, err error) error   { return E(KindClientInput, op, err) }
func Authorization(op string, err error) error { return E(KindAuthorization, op, err) }
func NotFound(op string, err error) error      { return E(KindNotFound, op, err) }
func Upstream(op string, err error) error      { return E(KindUpstream, op, err) }
func Storage(op string, err error) error       { return E(KindStorage, op, err) }

// KindOf returns the kind of the outermost tagged error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsAuthorization(err error) bool {
	return KindOf(err) == KindAuthorization
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
