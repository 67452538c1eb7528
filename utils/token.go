package utils

import (
	"fmt"
	"os"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// JwtCustomClaim is issued by the identity provider. Permissions maps a module
// to the actions the user may perform on it (view, add, edit, delete, approve).
type JwtCustomClaim struct {
	ID          int                 `json:"id"`
	Name        string              `json:"name"`
	TenantCode  string              `json:"tenant_code"`
	Permissions map[string][]string `json:"permissions"`
	jwt.StandardClaims
}

func getJwtSecret() []byte {
	secret := os.Getenv("API_SECRET")
	if secret == "" {
		return []byte("Compliance-Secret")
	}
	return []byte(secret)
}

// JwtGenerate is used by the CLI and tests to mint tokens; production tokens
// come from the identity provider with the same secret.
func JwtGenerate(claim JwtCustomClaim, lifespan time.Duration) (string, error) {
	now := time.Now()
	claim.StandardClaims = jwt.StandardClaims{
		ExpiresAt: now.Add(lifespan).Unix(),
		IssuedAt:  now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &claim)
	return t.SignedString(getJwtSecret())
}

func JwtValidate(token string) (*JwtCustomClaim, error) {
	parsed, err := jwt.ParseWithClaims(token, &JwtCustomClaim{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("there's a problem with the signing method")
		}
		return getJwtSecret(), nil
	})
	if err != nil {
		return nil, err
	}
	claim, ok := parsed.Claims.(*JwtCustomClaim)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claim, nil
}
