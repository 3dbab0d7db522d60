package cookie

import "errors"

var (
	ErrCookieNotFound   = errors.New("cookie.not_found")
	ErrNoKeys           = errors.New("cookie.keys_required_for_signed_cookies")
	ErrInvalidSignature = errors.New("cookie.invalid_signature")
	ErrInvalidName      = errors.New("cookie.invalid_name")
	ErrInvalidValue     = errors.New("cookie.invalid_value")
)
