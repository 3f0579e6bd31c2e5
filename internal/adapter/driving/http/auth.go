package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Wyydra/yasignal/internal/core/domain"
	"github.com/golang-jwt/jwt/v4"
)

// Authenticator checks that a connecting client holds an HMAC-signed token
// whose subject is the client id it registers under.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Authorize reads the token from the "token" query parameter or a Bearer
// Authorization header.
func (a *Authenticator) Authorize(r *http.Request, id domain.ClientID) error {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		parts := strings.Fields(r.Header.Get("Authorization"))
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			raw = parts[1]
		}
	}
	if raw == "" {
		return fmt.Errorf("%w: missing token", domain.ErrUnauthorized)
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if !token.Valid {
		return fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}
	if claims.Subject != id.String() {
		return fmt.Errorf("%w: %v", domain.ErrUnauthorized, errors.New("token subject does not match id"))
	}
	return nil
}
