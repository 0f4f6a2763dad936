package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
)

type contextKey string

const ApproverKey contextKey = "approver"

// AdminAuth guards routes that mutate on behalf of an operator (top-up
// apply). The bearer token must carry role=admin; the subject is exposed to
// handlers as the approver identity.
func AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		subject, role, err := validateToken(parts[1])
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		if role != "admin" {
			http.Error(w, "Admin role required", http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), ApproverKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Approver returns the authenticated operator identity, if any.
func Approver(ctx context.Context) string {
	if v, ok := ctx.Value(ApproverKey).(string); ok {
		return v
	}
	return ""
}

func validateToken(tokenString string) (subject, role string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(viper.GetString("jwt.secret_key")), nil
	})
	if err != nil || !token.Valid {
		return "", "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", fmt.Errorf("unexpected claims type")
	}

	return fmt.Sprintf("%v", claims["sub"]), fmt.Sprintf("%v", claims["role"]), nil
}
