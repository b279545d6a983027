package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func TestLogging_GeneratesRequestID(t *testing.T) {
	var seen string
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(RequestIDHeader)
		okHandler(w, r)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/levels", nil))

	id := rec.Header().Get(RequestIDHeader)
	require.NotEmpty(t, id)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.Equal(t, id, seen, "handlers see the same id as the response")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogging_EchoesRequestID(t *testing.T) {
	h := Logging(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/levels", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

func TestRecovery_ReturnsJSON500(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/update_level/blue", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body["error"])
}

func TestRecovery_RepanicsAbort(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(okHandler), mark("first"), mark("second"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestStack_OnRouter(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Stack)
	r.Get("/readings/{bin}", func(w http.ResponseWriter, r *http.Request) {
		panic("store exploded")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readings/green", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestEndpoint_UsesRoutePattern(t *testing.T) {
	var got string
	r := chi.NewRouter()
	r.Get("/readings/{bin}", func(w http.ResponseWriter, r *http.Request) {
		got = endpoint(r)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readings/yellow", nil))
	assert.Equal(t, "/readings/{bin}", got)

	assert.Equal(t, "unmatched", endpoint(httptest.NewRequest(http.MethodGet, "/nowhere", nil)))
}
