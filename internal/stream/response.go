package stream

import (
	"errors"
	"net/http"
)

var errResponseClosed = errors.New("response closed")

type responseState int

const (
	stateNotStarted responseState = iota
	stateHeadersSent
	stateClosed
)

func (s responseState) String() string {
	switch s {
	case stateNotStarted:
		return "not_started"
	case stateHeadersSent:
		return "headers_sent"
	default:
		return "closed"
	}
}

// responseWriter owns the response state so the status line is written at
// most once no matter how the fallback chain ends.
type responseWriter struct {
	w     http.ResponseWriter
	state responseState
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{w: w}
}

func (rw *responseWriter) Header() http.Header {
	return rw.w.Header()
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.state != stateNotStarted {
		return
	}
	rw.state = stateHeadersSent
	rw.w.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.state == stateClosed {
		return 0, errResponseClosed
	}
	rw.WriteHeader(http.StatusOK)
	n, err := rw.w.Write(b)
	if err != nil {
		rw.state = stateClosed
	}
	return n, err
}

func (rw *responseWriter) Flush() {
	if rw.state != stateHeadersSent {
		return
	}
	if f, ok := rw.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) close() {
	rw.state = stateClosed
}

func (rw *responseWriter) started() bool {
	return rw.state != stateNotStarted
}
