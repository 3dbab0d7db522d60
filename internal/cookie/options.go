package cookie

import (
	"net/http"
	"time"
)

// Options describes how a cookie is written and read.
type Options struct {
	Path     string
	Domain   string
	MaxAge   time.Duration // zero means a browser-session cookie
	Secure   bool
	HttpOnly bool
	SameSite http.SameSite
	// Signed adds a companion "<name>.sig" cookie and verifies it on read.
	Signed bool
	// Overwrite drops Set-Cookie headers for the same name already added to the response.
	Overwrite bool
}

type Option func(*Options)

func WithPath(path string) Option {
	return func(o *Options) {
		o.Path = path
	}
}

func WithDomain(domain string) Option {
	return func(o *Options) {
		o.Domain = domain
	}
}

func WithMaxAge(maxAge time.Duration) Option {
	return func(o *Options) {
		o.MaxAge = maxAge
	}
}

func WithSecure(secure bool) Option {
	return func(o *Options) {
		o.Secure = secure
	}
}

func WithHTTPOnly(httpOnly bool) Option {
	return func(o *Options) {
		o.HttpOnly = httpOnly
	}
}

func WithSameSite(sameSite http.SameSite) Option {
	return func(o *Options) {
		o.SameSite = sameSite
	}
}

func WithSigned(signed bool) Option {
	return func(o *Options) {
		o.Signed = signed
	}
}

func WithOverwrite(overwrite bool) Option {
	return func(o *Options) {
		o.Overwrite = overwrite
	}
}

// DefaultOptions returns the options applied before any Option: path "/",
// http-only, signed, overwrite and SameSite=Lax.
func DefaultOptions() Options {
	return Options{
		Path:      "/",
		HttpOnly:  true,
		SameSite:  http.SameSiteLaxMode,
		Signed:    true,
		Overwrite: true,
	}
}

// applyOptions copies base and applies opts to the copy.
func applyOptions(base Options, opts []Option) Options {
	result := base
	for _, opt := range opts {
		if opt != nil {
			opt(&result)
		}
	}
	return result
}
