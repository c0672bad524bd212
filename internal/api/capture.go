package api

import (
	"bytes"
	"net/http"
)

// captureWriter defers status and body to an internal buffer so the full
// response can be recorded before anything reaches the real transport.
// Headers are written through to the underlying writer's header map, which
// is not sent until flush calls WriteHeader.
type captureWriter struct {
	rw          http.ResponseWriter
	buf         bytes.Buffer
	status      int
	wroteHeader bool
}

func newCaptureWriter(rw http.ResponseWriter) *captureWriter {
	return &captureWriter{rw: rw, status: http.StatusOK}
}

func (c *captureWriter) Header() http.Header {
	return c.rw.Header()
}

func (c *captureWriter) WriteHeader(status int) {
	if c.wroteHeader {
		return
	}
	c.status = status
	c.wroteHeader = true
}

func (c *captureWriter) Write(b []byte) (int, error) {
	return c.buf.Write(b)
}

// flush replays the buffered status and body to the real writer.
func (c *captureWriter) flush() error {
	c.rw.WriteHeader(c.status)
	_, err := c.rw.Write(c.buf.Bytes())
	return err
}
