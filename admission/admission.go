// Package admission serializes HTTP requests through a turnstyle.
//
// Every request joins the turnstyle and is only handed to the next handler
// once a coordinator (usually a pacer) lets it through.
package admission

import (
	"context"
	"net/http"
	"strconv"

	"github.com/quintans/go-turnstyle/turnstyle"
)

// HeaderSequence carries the admission sequence number of a request.
const HeaderSequence = "X-Admission-Seq"

type seqKey struct{}

// Sequence returns the admission sequence number stored in ctx by the middleware.
func Sequence(ctx context.Context) (uint64, bool) {
	seq, ok := ctx.Value(seqKey{}).(uint64)
	return seq, ok
}

type Option func(*middleware)

func WithLogger(logger turnstyle.Logger) Option {
	return func(m *middleware) {
		m.logger = logger
	}
}

// WithRejectStatus sets the status returned to requests that gave up waiting.
// Defaults to 503.
func WithRejectStatus(status int) Option {
	return func(m *middleware) {
		m.rejectStatus = status
	}
}

type middleware struct {
	gate         *turnstyle.Turnstyle
	logger       turnstyle.Logger
	rejectStatus int
}

// Middleware returns a middleware admitting requests through gate, in arrival order.
//
// A request whose context ends before its turn is rejected, but its place in
// line is still consumed by a later turn.
func Middleware(gate *turnstyle.Turnstyle, options ...Option) func(http.Handler) http.Handler {
	m := &middleware{
		gate:         gate,
		logger:       turnstyle.StdLogger(),
		rejectStatus: http.StatusServiceUnavailable,
	}
	for _, o := range options {
		o(m)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seq, err := m.gate.Join().Wait(r.Context())
			if err != nil {
				m.logger.Warn("request %s %s gave up waiting for admission: %v", r.Method, r.URL.Path, err)
				http.Error(w, http.StatusText(m.rejectStatus), m.rejectStatus)
				return
			}

			w.Header().Set(HeaderSequence, strconv.FormatUint(seq, 10))
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), seqKey{}, seq)))
		})
	}
}
