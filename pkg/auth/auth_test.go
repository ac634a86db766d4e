package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hugohenrick/companychat/internal/domain/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUser(t *testing.T) *user.User {
	t.Helper()
	u, err := user.NewUser("c1", "Ana", "ana@acme.com", "senha-segura", user.RoleMember)
	require.NoError(t, err)
	return u
}

func TestJWTService_RoundTrip(t *testing.T) {
	svc, err := NewJWTService("segredo", time.Hour)
	require.NoError(t, err)

	u := testUser(t)
	token, err := svc.GenerateToken(u)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, "c1", claims.CompanyID)
	assert.Equal(t, "member", claims.Role)

	other, err := NewJWTService("outro", time.Hour)
	require.NoError(t, err)
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewJWTService("", time.Hour)
	assert.ErrorIs(t, err, ErrMissingJWTKey)
}

func TestJWTService_ExpiredAndRefresh(t *testing.T) {
	svc, err := NewJWTService("segredo", time.Hour)
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	claims := &JWTClaims{
		UserID:    "u1",
		CompanyID: "c1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(past),
		},
	}
	expired, err := svc.sign(claims)
	require.NoError(t, err)

	_, err = svc.ValidateToken(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	renewed, err := svc.RefreshToken(expired)
	require.NoError(t, err)
	got, err := svc.ValidateToken(renewed)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	_, err = svc.RefreshToken("lixo")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, err := NewJWTService("segredo", time.Hour)
	require.NoError(t, err)

	router := gin.New()
	router.GET("/me", JWTAuthMiddleware(svc), func(c *gin.Context) {
		cu := GetCurrentUser(c)
		c.String(http.StatusOK, cu.UserID+"|"+cu.CompanyID)
	})

	u := testUser(t)
	token, err := svc.GenerateToken(u)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"sem cabeçalho", "", http.StatusUnauthorized},
		{"formato inválido", "Token " + token, http.StatusUnauthorized},
		{"token inválido", "Bearer abc", http.StatusUnauthorized},
		{"token válido", "Bearer " + token, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, u.ID+"|c1", w.Body.String())
			}
		})
	}
}
