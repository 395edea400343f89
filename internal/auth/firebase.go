package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

const (
	defaultAdminClaim    = "admin"
	defaultVerifyTimeout = 5 * time.Second
)

// TokenVerifier проверяет Firebase ID token. Реализуется *firebaseauth.Client.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// NewFirebaseVerifier инициализирует Admin SDK для проверки токенов.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsFile string) (TokenVerifier, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, errors.New("firebase project id is required")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}
	return client, nil
}

// FirebaseAuthenticator принимает Bearer ID token клиентского приложения.
type FirebaseAuthenticator struct {
	verifier   TokenVerifier
	adminClaim string
	timeout    time.Duration
}

// NewFirebaseAuthenticator: adminClaim задаёт имя custom claim, который делает пользователя администратором.
func NewFirebaseAuthenticator(verifier TokenVerifier, adminClaim string) *FirebaseAuthenticator {
	adminClaim = strings.TrimSpace(adminClaim)
	if adminClaim == "" {
		adminClaim = defaultAdminClaim
	}
	return &FirebaseAuthenticator{
		verifier:   verifier,
		adminClaim: adminClaim,
		timeout:    defaultVerifyTimeout,
	}
}

func (a *FirebaseAuthenticator) Authenticate(ctx context.Context, r *http.Request) (domain.Actor, error) {
	raw := bearerToken(r)
	if raw == "" {
		return domain.Actor{}, fmt.Errorf("missing bearer token: %w", domain.ErrUnauthenticated)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	token, err := a.verifier.VerifyIDToken(ctx, raw)
	if err != nil {
		if firebaseauth.IsIDTokenExpired(err) {
			return domain.Actor{}, fmt.Errorf("id token expired: %w", domain.ErrUnauthenticated)
		}
		return domain.Actor{}, fmt.Errorf("verify id token: %w: %w", domain.ErrUnauthenticated, err)
	}
	if token == nil || token.UID == "" {
		return domain.Actor{}, fmt.Errorf("id token without uid: %w", domain.ErrUnauthenticated)
	}

	actor := domain.Actor{ID: token.UID}
	if email, ok := token.Claims["email"].(string); ok {
		actor.Email = email
	}
	actor.IsAdmin = isAdminClaim(token.Claims[a.adminClaim])
	return actor, nil
}

// isAdminClaim понимает и булев флаг {"admin": true}, и роль {"role": "admin"}.
func isAdminClaim(v any) bool {
	switch claim := v.(type) {
	case bool:
		return claim
	case string:
		return strings.EqualFold(strings.TrimSpace(claim), "admin") || strings.EqualFold(claim, "true")
	default:
		return false
	}
}
