package admission_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quintans/go-turnstyle/admission"
	"github.com/quintans/go-turnstyle/turnstyle"
)

func echoSequence(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := admission.Sequence(r.Context())
		assert.True(t, ok)
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, r *http.Request) <-chan *httptest.ResponseRecorder {
	out := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		out <- rec
	}()
	return out
}

func TestRequestsAdmittedInOrder(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		gate := turnstyle.New()
		defer gate.Close()

		h := admission.Middleware(gate, admission.WithLogger(turnstyle.NopLogger()))(echoSequence(t))

		first := serve(h, httptest.NewRequest(http.MethodGet, "/first", nil))
		synctest.Wait()
		second := serve(h, httptest.NewRequest(http.MethodGet, "/second", nil))
		synctest.Wait()
		require.Equal(t, 2, gate.Len())
		require.Empty(t, first)
		require.Empty(t, second)

		require.True(t, gate.Turn())
		synctest.Wait()
		rec := <-first
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "0", rec.Header().Get(admission.HeaderSequence))
		require.Empty(t, second)

		require.True(t, gate.Turn())
		rec = <-second
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "1", rec.Header().Get(admission.HeaderSequence))
	})
}

func TestRequestGivesUp(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		gate := turnstyle.New()
		defer gate.Close()

		h := admission.Middleware(
			gate,
			admission.WithLogger(turnstyle.NopLogger()),
			admission.WithRejectStatus(http.StatusTooManyRequests),
		)(echoSequence(t))

		ctx, cancel := context.WithCancel(context.Background())
		out := serve(h, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
		synctest.Wait()
		require.Equal(t, 1, gate.Len())

		cancel()
		rec := <-out
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.Empty(t, rec.Header().Get(admission.HeaderSequence))

		// the abandoned place in line is consumed by the next turn
		require.Equal(t, 1, gate.Len())
		next := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
		synctest.Wait()
		require.True(t, gate.Turn())
		synctest.Wait()
		require.Empty(t, next)

		require.True(t, gate.Turn())
		rec = <-next
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "1", rec.Header().Get(admission.HeaderSequence))
	})
}

func TestClosingTheGateAdmitsEveryone(t *testing.T) {
	gate := turnstyle.New()
	h := admission.Middleware(gate, admission.WithLogger(turnstyle.NopLogger()))(echoSequence(t))

	out := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Eventually(t, func() bool { return gate.Len() == 1 }, time.Second, time.Millisecond)

	gate.Close()
	rec := <-out
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "0", rec.Header().Get(admission.HeaderSequence))
}
