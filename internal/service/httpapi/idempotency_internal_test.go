package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

func TestReplay_InFlightKeyConflicts(t *testing.T) {
	a := New(Config{})
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, BasePath+"/orders", nil)

	a.replay(w, r, domain.IdempotencyRecord{Key: "k", Status: domain.IdempotencyStatusProcessing}, domain.ErrIdempotencyKeyAlreadyExists)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "idempotency_in_progress")
}

func TestIdempotent_PanicReleasesKey(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	a := New(Config{Idempotency: repo})

	calls := 0
	handler := middleware.Recoverer(a.idempotent(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls++
		panic("boom")
	})))

	send := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, BasePath+"/orders", strings.NewReader(`{"a":1}`))
		r.Header.Set(headerIdempotencyKey, "panic-key")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	first := send()
	assert.Equal(t, http.StatusInternalServerError, first.Code)

	record, err := repo.Get(context.Background(), "panic-key")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusFailed, record.Status)
	assert.Equal(t, http.StatusInternalServerError, record.HTTPStatus)

	retry := send()
	assert.Equal(t, http.StatusInternalServerError, retry.Code)
	assert.Equal(t, "true", retry.Header().Get(headerReplayed))
	assert.JSONEq(t, string(panicResponseBody), retry.Body.String())
	assert.Equal(t, 1, calls)
}

func TestRequestHash_DependsOnCallerAndBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, BasePath+"/orders", nil)
	r.Header.Set(headerUserID, "b1")
	base := requestHash(r, []byte(`{"a":1}`))

	assert.Equal(t, base, requestHash(r, []byte(" {\"a\":1}\n")))
	assert.NotEqual(t, base, requestHash(r, []byte(`{"a":2}`)))

	r.Header.Set(headerUserID, "b2")
	assert.NotEqual(t, base, requestHash(r, []byte(`{"a":1}`)))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: domain.ErrOrderNotFound, want: http.StatusNotFound},
		{err: domain.ErrTotalMismatch, want: http.StatusBadRequest},
		{err: domain.ErrInvalidTransition, want: http.StatusConflict},
		{err: domain.ErrOrderVersionConflict, want: http.StatusConflict},
		{err: domain.ErrGatewayRequest, want: http.StatusBadRequest},
		{err: domain.ErrOutboxPublish, want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err).Status)
		})
	}

	assert.Equal(t, "internal server error", classify(domain.ErrOutboxPublish).Message)
}
