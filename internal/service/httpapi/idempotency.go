package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	maxIdempotencyKeyLen = 128
)

var panicResponseBody = []byte(`{"error":"internal","message":"internal server error"}`)

// idempotent сохраняет ответ по Idempotency-Key и отдаёт его повторным
// запросам с тем же телом. Без заголовка запрос проходит как есть.
func (a *API) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
		if key == "" || a.idem == nil {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			badRequest(w, r, "Idempotency-Key is too long")
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			badRequest(w, r, "request body is too large")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		ctx := r.Context()
		record, err := a.idem.CreateProcessing(ctx, key, requestHash(r, body), a.now().Add(a.idemTTL))
		if err != nil {
			a.replay(w, r, record, err)
			return
		}

		var captured bytes.Buffer
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Tee(&captured)
		storeCtx := context.WithoutCancel(ctx)
		logger := a.logger.WithField("idempotency_key", key)

		// Паника в обработчике закрывает ключ как failed.
		defer func() {
			if rec := recover(); rec != nil {
				if err := a.idem.MarkFailed(storeCtx, key, panicResponseBody, http.StatusInternalServerError); err != nil {
					logger.WithError(err).Warn("failed to release idempotency key after panic")
				}
				panic(rec)
			}
		}()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if status < http.StatusBadRequest {
			if err := a.idem.MarkDone(storeCtx, key, captured.Bytes(), status); err != nil {
				logger.WithError(err).Warn("failed to store idempotent success response")
			}
			return
		}
		if err := a.idem.MarkFailed(storeCtx, key, captured.Bytes(), status); err != nil {
			logger.WithError(err).Warn("failed to store idempotency failure response")
		}
	})
}

func (a *API) replay(w http.ResponseWriter, r *http.Request, record domain.IdempotencyRecord, createErr error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		writeAPIError(w, r, newAPIError("idempotency_mismatch",
			"idempotency key is already used with different request payload", http.StatusUnprocessableEntity))
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		if !record.Replayable() {
			writeAPIError(w, r, newAPIError("idempotency_in_progress",
				"request with the same idempotency key is already processing", http.StatusConflict))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(headerReplayed, "true")
		w.WriteHeader(record.HTTPStatus)
		_, _ = w.Write(record.ResponseBody)
	default:
		a.logger.WithError(createErr).WithFields(log.Fields{
			"path": r.URL.Path,
		}).Warn("failed to create idempotency record")
		writeAPIError(w, r, newAPIError("internal", "failed to initialize idempotency request", http.StatusInternalServerError))
	}
}

// requestHash связывает ключ с маршрутом, вызывающим и телом запроса.
func requestHash(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{0})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{0})
	h.Write([]byte(userID(r)))
	h.Write([]byte{0})
	h.Write(bytes.TrimSpace(body))
	return hex.EncodeToString(h.Sum(nil))
}
