// internal/auth/jwt.go
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vertabase/verta-backend/internal/domain"
)

var (
	ErrTokenMalformed          = errors.New("malformed token")
	ErrTokenExpired            = errors.New("token is expired or not valid yet")
	ErrTokenInvalid            = errors.New("invalid token")
	ErrTokenClaimsInvalid      = errors.New("invalid token claims")
	ErrTokenRevoked            = errors.New("token has been revoked")
	ErrUnexpectedSigningMethod = errors.New("unexpected token signing method")
)

// Claims is the access token payload. TokenKey binds the token to the
// user's current key: rotating the key invalidates every token minted
// before the rotation without any server-side token list.
type Claims struct {
	UserID   string `json:"uid"`
	TokenKey string `json:"tk"`
	jwt.RegisteredClaims
}

// --- JWT Utilities ---

// GenerateAccessToken creates a signed JWT string for the given user.
func GenerateAccessToken(user *domain.User, jwtSecret string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID:   user.ID,
		TokenKey: user.TokenKey,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "verta-backend",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedToken, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		customLog.Warnf("Error signing JWT for user %s: %v", user.ID, err)
		return "", fmt.Errorf("failed to generate token")
	}

	return signedToken, nil
}

// ParseAccessToken parses and validates a JWT string, returning its claims.
// Signature and expiry are checked here; the token-key check against the
// stored user happens in Manager.VerifyAccess.
func ParseAccessToken(tokenString, jwtSecret string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			customLog.Warnf("ParseAccessToken: Unexpected signing method: %v", token.Header["alg"])
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedSigningMethod, token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})

	// Map library errors to our defined errors
	if err != nil {
		customLog.Warnf("ParseAccessToken: Token parsing error: %v", err)
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenExpired
		case errors.Is(err, ErrUnexpectedSigningMethod):
			return nil, err
		default:
			return nil, ErrTokenInvalid
		}
	}

	if !token.Valid {
		customLog.Warnf("ParseAccessToken: Invalid token marked by library")
		return nil, ErrTokenInvalid
	}

	if claims.UserID == "" || claims.TokenKey == "" {
		customLog.Warnf("ParseAccessToken: Required claims missing")
		return nil, ErrTokenClaimsInvalid
	}

	return claims, nil
}
