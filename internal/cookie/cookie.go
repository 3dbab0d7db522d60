// Package cookie reads and writes response cookies, optionally signed with
// HMAC-SHA256 in a companion "<name>.sig" cookie.
//
// Cookies are serialized by hand instead of through http.SetCookie because
// net/http silently drops names containing separators such as ':' (the
// default session cookie is "koa:sess").
package cookie

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

const sigSuffix = ".sig"

// Jar gets and sets cookies. The first key signs, every key verifies.
type Jar struct {
	keys     []string
	defaults Options
}

// NewJar creates a Jar. Empty keys are ignored; a Jar without keys still
// handles unsigned cookies but fails signed reads and writes with ErrNoKeys.
func NewJar(keys []string, opts ...Option) *Jar {
	keys = slices.DeleteFunc(slices.Clone(keys), func(k string) bool { return strings.TrimSpace(k) == "" })
	return &Jar{
		keys:     keys,
		defaults: applyOptions(DefaultOptions(), opts),
	}
}

// HasKeys reports whether the jar can sign cookies.
func (j *Jar) HasKeys() bool {
	return len(j.keys) > 0
}

// Get returns the value of the named request cookie. For signed cookies the
// companion signature must be present and valid.
func (j *Jar) Get(r *http.Request, name string, opts ...Option) (string, error) {
	options := applyOptions(j.defaults, opts)

	value, ok := readCookie(r, name)
	if !ok {
		return "", ErrCookieNotFound
	}
	if !options.Signed {
		return value, nil
	}

	sig, ok := readCookie(r, name+sigSuffix)
	if !ok {
		return "", ErrCookieNotFound
	}
	if len(j.keys) == 0 {
		return "", ErrNoKeys
	}

	data := name + "=" + value
	for _, key := range j.keys {
		if subtle.ConstantTimeCompare([]byte(sig), []byte(sign(key, data))) == 1 {
			return value, nil
		}
	}
	return "", ErrInvalidSignature
}

// Set adds a Set-Cookie header. An empty value expires the cookie.
func (j *Jar) Set(w http.ResponseWriter, name, value string, opts ...Option) error {
	options := applyOptions(j.defaults, opts)

	if options.Signed && len(j.keys) == 0 {
		return ErrNoKeys
	}

	header, err := serialize(name, value, options)
	if err != nil {
		return err
	}
	j.push(w, name, header, options.Overwrite)

	if !options.Signed {
		return nil
	}

	sigName := name + sigSuffix
	sigValue := ""
	if value != "" {
		sigValue = sign(j.keys[0], name+"="+value)
	}
	sigHeader, err := serialize(sigName, sigValue, options)
	if err != nil {
		return err
	}
	j.push(w, sigName, sigHeader, options.Overwrite)

	return nil
}

// Delete expires the named cookie (and its signature when signed).
func (j *Jar) Delete(w http.ResponseWriter, name string, opts ...Option) error {
	return j.Set(w, name, "", opts...)
}

func (j *Jar) push(w http.ResponseWriter, name, header string, overwrite bool) {
	headers := w.Header()
	if overwrite {
		prefix := name + "="
		existing := headers.Values("Set-Cookie")
		kept := slices.DeleteFunc(slices.Clone(existing), func(h string) bool {
			return strings.HasPrefix(h, prefix)
		})
		if len(kept) != len(existing) {
			headers.Del("Set-Cookie")
			for _, h := range kept {
				headers.Add("Set-Cookie", h)
			}
		}
	}
	headers.Add("Set-Cookie", header)
}

func sign(key, data string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func serialize(name, value string, o Options) (string, error) {
	if !validName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if !validValue(value) {
		return "", fmt.Errorf("%w: cookie %q", ErrInvalidValue, name)
	}

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(value)

	if o.Path != "" {
		b.WriteString("; Path=")
		b.WriteString(o.Path)
	}
	if o.Domain != "" {
		b.WriteString("; Domain=")
		b.WriteString(strings.TrimPrefix(o.Domain, "."))
	}

	switch {
	case value == "":
		b.WriteString("; Expires=")
		b.WriteString(time.Unix(0, 0).UTC().Format(http.TimeFormat))
		b.WriteString("; Max-Age=0")
	case o.MaxAge > 0:
		b.WriteString("; Expires=")
		b.WriteString(time.Now().Add(o.MaxAge).UTC().Format(http.TimeFormat))
		b.WriteString("; Max-Age=")
		b.WriteString(strconv.FormatInt(int64(o.MaxAge/time.Second), 10))
	}

	if o.HttpOnly {
		b.WriteString("; HttpOnly")
	}
	if o.Secure {
		b.WriteString("; Secure")
	}
	switch o.SameSite {
	case http.SameSiteLaxMode:
		b.WriteString("; SameSite=Lax")
	case http.SameSiteStrictMode:
		b.WriteString("; SameSite=Strict")
	case http.SameSiteNoneMode:
		b.WriteString("; SameSite=None")
	}

	return b.String(), nil
}

// readCookie returns the first cookie called name in the Cookie headers.
func readCookie(r *http.Request, name string) (string, bool) {
	if r == nil {
		return "", false
	}
	for _, line := range r.Header.Values("Cookie") {
		for part := range strings.SplitSeq(line, ";") {
			part = strings.TrimSpace(part)
			k, v, ok := strings.Cut(part, "=")
			if !ok || strings.TrimSpace(k) != name {
				continue
			}
			v = strings.TrimSpace(v)
			if len(v) > 1 && v[0] == '"' && v[len(v)-1] == '"' {
				v = v[1 : len(v)-1]
			}
			return v, true
		}
	}
	return "", false
}

// validName rejects control characters, whitespace and the separators that
// would break the header: ';', ',', '=' and '"'.
func validName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= ' ' || c >= 0x7f || strings.IndexByte(";,=\"\\", c) >= 0 {
			return false
		}
	}
	return true
}

// validValue accepts RFC 6265 cookie-octets.
func validValue(value string) bool {
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c < 0x21 || c > 0x7e || c == '"' || c == ',' || c == ';' || c == '\\' {
			return false
		}
	}
	return true
}
