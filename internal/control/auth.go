package control

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned by ValidateOperatorToken when the bearer
// token is missing, malformed, or signed with the wrong secret.
var ErrUnauthorized = errors.New("unauthorized")

// OperatorAuth validates the bearer token destructive Control Surface
// operations (emergency_stop excepted — see RequireOperator) require,
// adapted from the teacher's auth.Service.ValidateToken: same HS256
// shared-secret check, stripped of the user/session lookup this system
// has no use for since there is one operator role, not an account
// system.
type OperatorAuth struct {
	secret []byte
}

func NewOperatorAuth(secret string) *OperatorAuth {
	return &OperatorAuth{secret: []byte(secret)}
}

func (a *OperatorAuth) ValidateToken(tokenString string) error {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !token.Valid {
		return ErrUnauthorized
	}
	return nil
}

// RequireOperator wraps an http.HandlerFunc so it only runs when the
// request carries a valid "Bearer <token>" Authorization header. Used
// on every destructive route (start_production, start_test, stop,
// pause, resume, set_polling_interval) except emergency_stop, which must stay reachable
// without a token: an operator slapping the e-stop button is never
// blocked on credential checks.
func (a *OperatorAuth) RequireOperator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == "" || tokenString == header {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if err := a.ValidateToken(tokenString); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
