package session

import (
	"bytes"
	"net/http"
)

// bufferedWriter holds the downstream status and body until the session has
// been finalized, so Set-Cookie headers can still be added afterwards.
// Headers go straight to the underlying writer. It exposes
// neither Flush nor Unwrap: http.ResponseController reports
// http.ErrNotSupported instead of committing headers early.
type bufferedWriter struct {
	w      http.ResponseWriter
	status int
	body   bytes.Buffer
}

func newBufferedWriter(w http.ResponseWriter) *bufferedWriter {
	return &bufferedWriter{w: w}
}

func (b *bufferedWriter) Header() http.Header {
	return b.w.Header()
}

func (b *bufferedWriter) WriteHeader(status int) {
	if b.status != 0 || status < http.StatusOK {
		return
	}
	b.status = status
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

// discard drops the buffered status and body.
func (b *bufferedWriter) discard() {
	b.status = 0
	b.body.Reset()
}

// flush writes the buffered response. Nothing is written when downstream
// produced neither a status nor a body.
func (b *bufferedWriter) flush() error {
	if b.status == 0 {
		return nil
	}
	b.w.WriteHeader(b.status)
	if b.body.Len() == 0 {
		return nil
	}
	_, err := b.body.WriteTo(b.w)
	return err
}
