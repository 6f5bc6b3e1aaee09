package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func requestWithRoles(t *testing.T, mw echo.MiddlewareFunc, roles []string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if roles != nil {
		ctx := context.WithValue(req.Context(), UserRolesKey, roles)
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := mw(okHandler)(c)
	if err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		name     string
		required []string
		roles    []string
		want     int
	}{
		{"doctor allowed", []string{RoleDoctor}, []string{RoleDoctor}, http.StatusOK},
		{"visitor forbidden", []string{RoleDoctor}, []string{RoleVisitor}, http.StatusForbidden},
		{"either role passes", []string{RoleDoctor, RoleVisitor}, []string{RoleVisitor}, http.StatusOK},
		{"no roles forbidden", []string{RoleDoctor}, nil, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := requestWithRoles(t, RequireRole(tc.required...), tc.roles)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
