package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func TestSignAndVerify(t *testing.T) {
	v, err := NewVerifier(testSecret, "photoflow")
	require.NoError(t, err)

	token, err := Sign(testSecret, "photoflow", User{ID: "u1", Username: "alice"}, time.Hour, time.Now())
	require.NoError(t, err)

	user, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, User{ID: "u1", Username: "alice"}, user)
}

func TestVerifyRejects(t *testing.T) {
	v, err := NewVerifier(testSecret, "photoflow")
	require.NoError(t, err)

	expired, err := Sign(testSecret, "photoflow", User{ID: "u1"}, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrTokenExpired)

	forged, err := Sign("other-secret", "photoflow", User{ID: "u1"}, time.Hour, time.Now())
	require.NoError(t, err)
	_, err = v.Verify(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer, err := Sign(testSecret, "someone-else", User{ID: "u1"}, time.Hour, time.Now())
	require.NoError(t, err)
	_, err = v.Verify(wrongIssuer)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noUser, err := Sign(testSecret, "photoflow", User{}, time.Hour, time.Now())
	require.NoError(t, err)
	_, err = v.Verify(noUser)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	token, err := BearerToken("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", token)

	for _, header := range []string{"", "Bearer", "Bearer   ", "Basic abc"} {
		_, err := BearerToken(header)
		assert.ErrorIs(t, err, ErrMissingToken, header)
	}
}

func TestMiddlewareStatusCodes(t *testing.T) {
	v, err := NewVerifier(testSecret, "photoflow")
	require.NoError(t, err)

	var seen User
	handler := Middleware(v, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	valid, _ := Sign(testSecret, "photoflow", User{ID: "u1", Username: "alice"}, time.Hour, time.Now())
	expired, _ := Sign(testSecret, "photoflow", User{ID: "u1"}, time.Minute, time.Now().Add(-time.Hour))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"invalid", "Bearer nope", http.StatusForbidden},
		{"valid", "Bearer " + valid, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/photos", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
	assert.Equal(t, "alice", seen.Username)
}
