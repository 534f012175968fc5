// Package jwt firma y verifica los tokens HS256 con que llegan usuario, tenant y rol.
// Los tokens se emiten fuera del servicio; Issue existe para herramientas y tests.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoSecret      = errors.New("jwt: secret vacío")
	ErrMissingTenant = errors.New("jwt: token sin company_id")
	ErrInvalidToken  = errors.New("jwt: token inválido")
)

// Identity lo que el libro necesita saber de quien llama. TenantID viaja como company_id.
type Identity struct {
	UserID   string
	TenantID string
	Role     string // admin | bodeguero | auditor
}

type ledgerClaims struct {
	jwt.RegisteredClaims
	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id"`
	Role      string `json:"role"`
}

// Issue firma un token para id con vigencia ttl.
func Issue(secret string, id Identity, issuer string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := ledgerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:    id.UserID,
		CompanyID: id.TenantID,
		Role:      id.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Verify exige firma HMAC válida, exp presente y vigente, y tenant no vacío.
func Verify(secret, token string) (Identity, error) {
	if secret == "" {
		return Identity{}, ErrNoSecret
	}
	var claims ledgerClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.CompanyID == "" {
		return Identity{}, ErrMissingTenant
	}
	return Identity{UserID: claims.UserID, TenantID: claims.CompanyID, Role: claims.Role}, nil
}
