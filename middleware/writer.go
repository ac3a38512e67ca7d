package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
)

// statusWriter records the status and size of a response.
type statusWriter struct {
	http.ResponseWriter
	status        int
	size          int64
	headerWritten bool
}

func newStatusWriter(w http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: w, status: http.StatusOK}
}

func (w *statusWriter) WriteHeader(status int) {
	if w.headerWritten {
		return
	}
	w.status = status
	w.headerWritten = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.headerWritten {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.size += int64(n)
	return n, err
}

// Written reports whether a status line was sent.
func (w *statusWriter) Written() bool {
	if w.headerWritten {
		return true
	}
	ww, ok := w.ResponseWriter.(interface{ Written() bool })
	return ok && ww.Written()
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		if !w.headerWritten {
			w.WriteHeader(http.StatusOK)
		}
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("middleware: response writer does not support hijacking")
	}
	conn, rw, err := h.Hijack()
	if err == nil {
		w.status = http.StatusSwitchingProtocols
		w.headerWritten = true
	}
	return conn, rw, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// observe wraps response so that done runs after it rendered, with the final writer state.
func observe(response func(http.ResponseWriter, *http.Request) error, done func(w *statusWriter, r *http.Request, err error)) func(http.ResponseWriter, *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		sw := newStatusWriter(w)
		err := response(sw, r)
		done(sw, r, err)
		return err
	}
}

// statusOf is the status the client sees once the router error handler has rendered err.
func statusOf(w *statusWriter, err error) int {
	if err == nil || w.Written() {
		return w.status
	}
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}
