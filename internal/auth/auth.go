// Package auth определяет, от имени какого актора выполняется HTTP-запрос.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

// Authenticator извлекает подтверждённого актора из запроса.
// Ошибка всегда оборачивает domain.ErrUnauthenticated.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (domain.Actor, error)
}

type actorKey struct{}

// WithActor кладёт актора в контекст.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom достаёт актора, положенного middleware.
func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(domain.Actor)
	return actor, ok && actor.ID != ""
}

// bearerToken возвращает токен из заголовка Authorization: Bearer <token>.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
