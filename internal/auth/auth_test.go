package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "LedgerAgent-Kit/internal/errors"
)

func newService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService([]Key{
		{Name: "ops", Secret: "s3cret", Permissions: []string{PermissionExecute, PermissionRead}},
		{Name: "dashboard", Secret: "viewer", Permissions: []string{PermissionRead}},
	})
	require.NoError(t, err)
	return svc
}

func TestAuthenticateRequest(t *testing.T) {
	svc := newService(t)

	subject, err := svc.AuthenticateRequest(context.Background(), "Bearer s3cret")
	require.NoError(t, err)
	assert.Equal(t, "ops", subject.Name)
	assert.True(t, subject.HasPermission(PermissionExecute))

	_, err = svc.AuthenticateRequest(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = svc.AuthenticateRequest(context.Background(), "Bearer nope")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewServiceRejectsDuplicates(t *testing.T) {
	_, err := NewService([]Key{{Name: "a", Secret: "1"}, {Name: "a", Secret: "2"}})
	assert.True(t, xerrors.HasCode(err, xerrors.CodeInvalidArgument))

	_, err = NewService([]Key{{Name: "a"}})
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	svc := newService(t)
	var seen string
	handler := svc.Middleware(PermissionsByMethod())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SubjectFromContext(r.Context()).Name
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		method string
		token  string
		want   int
	}{
		{"missing token", http.MethodGet, "", http.StatusUnauthorized},
		{"unknown token", http.MethodGet, "Bearer x", http.StatusUnauthorized},
		{"reader can list", http.MethodGet, "Bearer viewer", http.StatusNoContent},
		{"reader cannot execute", http.MethodPost, "Bearer viewer", http.StatusForbidden},
		{"operator executes", http.MethodPost, "Bearer s3cret", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/api/v1/operations", nil)
			if tc.token != "" {
				req.Header.Set("Authorization", tc.token)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
	assert.Equal(t, "ops", seen)
}

func TestMiddlewareDisabledPassesThrough(t *testing.T) {
	svc, err := NewService(nil)
	require.NoError(t, err)
	called := false
	handler := svc.Middleware(PermissionsByMethod())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	assert.True(t, called)
}
