package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidToken covers expired, malformed, and badly-signed tokens alike so
// callers can report one distinct "credential rejected" condition.
var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is the verified user identity carried through all engines.
// It is validated once at the authentication boundary and never re-checked.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Level    int    `json:"level"`
}

// TokenVerifier validates a credential token and returns the identity it carries.
type TokenVerifier interface {
	Verify(token string) (Identity, error)
}

// JWTVerifier verifies HS256 tokens minted by the login endpoint.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates the token, returning the embedded identity.
func (v *JWTVerifier) Verify(token string) (Identity, error) {
	parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	userID, _ := claims["user_id"].(string)
	username, _ := claims["username"].(string)
	if userID == "" || username == "" {
		return Identity{}, ErrInvalidToken
	}

	level := 1
	if lv, ok := claims["level"].(float64); ok && lv > 0 {
		level = int(lv)
	}

	return Identity{UserID: userID, Username: username, Level: level}, nil
}

// Mint issues a signed token for the given identity. Used by the login
// endpoint and by tests.
func Mint(secret string, id Identity, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id":  id.UserID,
		"username": id.Username,
		"level":    id.Level,
		"exp":      jwt.NewNumericDate(time.Now().Add(ttl)).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
