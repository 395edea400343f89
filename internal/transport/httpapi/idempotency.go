package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

const (
	idempotencyKeyHeader    = "Idempotency-Key"
	idempotentReplayHeader  = "X-Idempotent-Replay"
	maxIdempotencyKeyLength = 128
)

// idempotent защищает неидемпотентные POST. Без заголовка запрос выполняется как обычно.
// Ключ привязан к актору, а hash тела отличает повтор от переиспользования ключа.
func (s *Server) idempotent(next http.Handler) http.Handler {
	if s.idempotency == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			writeError(w, r, s.logger, domain.NewValidationError(idempotencyKeyHeader))
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, r, s.logger, domain.NewValidationError("body"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		actor := actorFrom(r)
		scoped := domain.IdempotencyScope(actor.ID, key)
		logger := s.logger.WithFields(log.Fields{
			"idempotency_key": key,
			"actor_id":        actor.ID,
			"request_id":      middleware.GetReqID(r.Context()),
		})

		record, err := s.idempotency.CreateProcessing(r.Context(), scoped, requestHash(r, body), s.now().Add(s.idempotencyTTL))
		if err != nil {
			s.replay(w, r, logger, record, err)
			return
		}
		s.metrics.RecordIdempotency("new")

		// Результат сохраняется и после обрыва соединения клиента.
		storeCtx := context.WithoutCancel(r.Context())

		completed := false
		defer func() {
			if completed {
				return
			}
			// Обработчик запаниковал: освобождаем ключ, паника идёт дальше к Recoverer.
			if err := s.idempotency.MarkFailed(storeCtx, scoped, nil, http.StatusInternalServerError); err != nil {
				logger.WithError(err).Warn("failed to release idempotency key after panic")
			}
		}()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		var captured bytes.Buffer
		ww.Tee(&captured)
		next.ServeHTTP(ww, r)
		completed = true

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		// Ответ уже ушёл клиенту; ошибка сохранения только логируется.
		if status >= 200 && status < 300 {
			err = s.idempotency.MarkDone(storeCtx, scoped, captured.Bytes(), status)
		} else {
			err = s.idempotency.MarkFailed(storeCtx, scoped, captured.Bytes(), status)
		}
		if err != nil {
			logger.WithError(err).Warn("failed to store idempotent response")
		}
	})
}

func (s *Server) replay(w http.ResponseWriter, r *http.Request, logger *log.Entry, record domain.IdempotencyRecord, createErr error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		s.metrics.RecordIdempotency("mismatch")
		writeError(w, r, s.logger, createErr)
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists) && record.Status == domain.IdempotencyStatusDone:
		s.metrics.RecordIdempotency("replayed")
		status := record.HTTPStatus
		if status == 0 {
			status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(idempotentReplayHeader, "true")
		w.WriteHeader(status)
		_, _ = w.Write(record.ResponseBody)
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		s.metrics.RecordIdempotency("in_progress")
		writeError(w, r, s.logger, createErr)
	default:
		s.metrics.RecordIdempotency("error")
		logger.WithError(createErr).Warn("failed to reserve idempotency key")
		writeError(w, r, s.logger, createErr)
	}
}

// requestHash — sha256 от метода, пути и тела запроса.
func requestHash(r *http.Request, body []byte) string {
	h := sha256.New()
	_, _ = io.WriteString(h, r.Method)
	_, _ = io.WriteString(h, " ")
	_, _ = io.WriteString(h, r.URL.Path)
	_, _ = io.WriteString(h, " ")
	_, _ = io.WriteString(h, strconv.Itoa(len(body)))
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
