package wrk2

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dgrijalva/jwt-go"
)

var (
	errUnauthenticated = errors.New("authentication required")
	errForbidden       = errors.New("not allowed to read another user's reactions")
)

// header the mutation layer authenticates with when publishing reactions
const INTERNAL_TOKEN_HEADER = "X-Internal-Token"

type Claims struct {
	Username  string `json:"username,omitempty"`
	UserID    string `json:"user_id"`
	Timestamp int64  `json:"timestamp,omitempty"`
	jwt.StandardClaims
}

// viewerFromRequest returns the user id carried by the bearer token of r, or
// zero for anonymous requests without an Authorization header
func viewerFromRequest(r *http.Request, secret string) (int64, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return 0, nil
	}
	tokenStr := strings.TrimPrefix(header, "Bearer ")
	if tokenStr == header {
		return 0, fmt.Errorf("unsupported authorization scheme")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return 0, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return 0, fmt.Errorf("invalid token")
	}
	userID, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("invalid user_id claim %q", claims.UserID)
	}
	return userID, nil
}

// ownedBy fails unless the viewer is the user whose private data is requested
func ownedBy(viewer int64, userID int64) error {
	if viewer == 0 || viewer != userID {
		return errForbidden
	}
	return nil
}

// internalCaller reports whether r carries the shared secret of the mutation
// layer. An empty secret disables internal calls.
func internalCaller(r *http.Request, secret string) bool {
	token := r.Header.Get(INTERNAL_TOKEN_HEADER)
	if secret == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}
