package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"
)

// HeaderAuthenticator доверяет заголовкам X-User-*. Только для локальной разработки и тестов.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) Authenticate(_ context.Context, r *http.Request) (domain.Actor, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		return domain.Actor{}, fmt.Errorf("missing %s header: %w", HeaderUserID, domain.ErrUnauthenticated)
	}
	return domain.Actor{
		ID:      id,
		Email:   strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
		IsAdmin: strings.EqualFold(strings.TrimSpace(r.Header.Get(HeaderUserRole)), "admin"),
	}, nil
}
