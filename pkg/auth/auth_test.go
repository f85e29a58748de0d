package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret-for-hs256"

func signHS256(t *testing.T, claims *Claims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func testClaims() *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		OrganizationID: 42,
		Roles:          []string{"member"},
	}
}

func TestValidator_HMAC(t *testing.T) {
	v, err := NewValidator(t.Context(), ValidatorConfig{EnableVerification: true, HMACSecret: testSecret})
	require.NoError(t, err)

	claims, err := v.ValidateToken(signHS256(t, testClaims(), testSecret))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, int64(42), claims.OrganizationID)

	_, err = v.ValidateToken(signHS256(t, testClaims(), "other-secret"))
	assert.Error(t, err)
}

func TestValidator_ExpiredToken(t *testing.T) {
	v, err := NewValidator(t.Context(), ValidatorConfig{EnableVerification: true, HMACSecret: testSecret})
	require.NoError(t, err)

	claims := testClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	_, err = v.ValidateToken(signHS256(t, claims, testSecret))
	assert.Error(t, err)
}

func TestValidator_VerificationDisabled(t *testing.T) {
	v, err := NewValidator(t.Context(), ValidatorConfig{EnableVerification: false})
	require.NoError(t, err)

	claims, err := v.ValidateToken(signHS256(t, testClaims(), "anything"))
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.OrganizationID)
}

func TestNewValidator_RequiresKeyMaterial(t *testing.T) {
	_, err := NewValidator(t.Context(), ValidatorConfig{EnableVerification: true})
	assert.Error(t, err)
}

type stubValidator struct {
	claims *Claims
	err    error
}

func (s *stubValidator) ValidateToken(string) (*Claims, error) {
	return s.claims, s.err
}

func TestMiddleware_RequireAuth(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		validator  *stubValidator
		wantStatus int
		wantCalled bool
	}{
		{"valid", "Bearer abc", &stubValidator{claims: testClaims()}, http.StatusOK, true},
		{"lowercase scheme", "bearer abc", &stubValidator{claims: testClaims()}, http.StatusOK, true},
		{"missing header", "", &stubValidator{claims: testClaims()}, http.StatusUnauthorized, false},
		{"invalid token", "Bearer abc", &stubValidator{err: errors.New("bad signature")}, http.StatusUnauthorized, false},
		{"missing organization", "Bearer abc", &stubValidator{claims: &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}}}, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMiddleware(tt.validator, zap.NewNop())
			var called bool
			var userID string
			var orgID int64
			handler := m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
				called = true
				userID, orgID, _ = Identity(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/tables", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCalled, called)
			if tt.wantCalled {
				assert.Equal(t, "user-1", userID)
				assert.Equal(t, int64(42), orgID)
			}
		})
	}
}

func TestMiddleware_RequireRole(t *testing.T) {
	member := &stubValidator{claims: testClaims()}
	admin := testClaims()
	admin.Roles = []string{RoleAdmin}

	for _, tc := range []struct {
		validator  *stubValidator
		wantStatus int
	}{
		{member, http.StatusForbidden},
		{&stubValidator{claims: admin}, http.StatusOK},
	} {
		m := NewMiddleware(tc.validator, zap.NewNop())
		handler := m.RequireRole(RoleAdmin, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		req := httptest.NewRequest(http.MethodDelete, "/api/tables/sales", nil)
		req.Header.Set("Authorization", "Bearer abc")
		rec := httptest.NewRecorder()
		handler(rec, req)
		assert.Equal(t, tc.wantStatus, rec.Code)
	}
}

func TestIdentity_NoClaims(t *testing.T) {
	_, _, err := Identity(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.Error(t, err)
}

func TestSessionStore_HandleIsStable(t *testing.T) {
	store := NewSessionStore("cookie-secret", false, 3600)

	rec := httptest.NewRecorder()
	first, err := store.Handle(rec, httptest.NewRequest(http.MethodPost, "/api/chat", nil))
	require.NoError(t, err)
	require.NotEmpty(t, first)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	second, err := store.Handle(httptest.NewRecorder(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
