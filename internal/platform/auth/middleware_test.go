package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func testJWTConfig() JWTConfig {
	return JWTConfig{
		SigningKey: []byte("test-signing-key-for-unit-tests"),
		TTL:        time.Hour,
	}
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func doRequest(t *testing.T, mw echo.MiddlewareFunc, handler echo.HandlerFunc, token string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := mw(handler)(c)
	if err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestJWTMiddlewareValidToken(t *testing.T) {
	cfg := testJWTConfig()
	token, err := IssueToken(cfg, "alice", []string{RoleDoctor})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	var gotUser string
	var gotRoles []string
	handler := func(c echo.Context) error {
		gotUser = UserIDFromContext(c.Request().Context())
		gotRoles = RolesFromContext(c.Request().Context())
		return c.String(http.StatusOK, "ok")
	}

	rec := doRequest(t, JWTMiddleware(cfg), handler, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotUser != "alice" {
		t.Errorf("subject = %q, want alice", gotUser)
	}
	if len(gotRoles) != 1 || gotRoles[0] != RoleDoctor {
		t.Errorf("roles = %v, want [%s]", gotRoles, RoleDoctor)
	}
}

func TestJWTMiddlewareRejectsMissingHeader(t *testing.T) {
	rec := doRequest(t, JWTMiddleware(testJWTConfig()), okHandler, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestJWTMiddlewareRejectsTamperedToken(t *testing.T) {
	cfg := testJWTConfig()
	token, err := IssueToken(cfg, "alice", []string{RoleDoctor})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	rec := doRequest(t, JWTMiddleware(cfg), okHandler, token+"x")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestJWTMiddlewareRejectsWrongKey(t *testing.T) {
	cfg := testJWTConfig()
	other := JWTConfig{SigningKey: []byte("a-different-key-entirely"), TTL: time.Hour}
	token, err := IssueToken(other, "alice", []string{RoleDoctor})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	rec := doRequest(t, JWTMiddleware(cfg), okHandler, token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestJWTMiddlewareRejectsExpiredToken(t *testing.T) {
	cfg := testJWTConfig()
	expired := JWTConfig{SigningKey: cfg.SigningKey, TTL: -time.Minute}
	token, err := IssueToken(expired, "alice", []string{RoleDoctor})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	rec := doRequest(t, JWTMiddleware(cfg), okHandler, token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestDevAuthGrantsDoctorWithoutToken(t *testing.T) {
	var gotRoles []string
	handler := func(c echo.Context) error {
		gotRoles = RolesFromContext(c.Request().Context())
		return c.String(http.StatusOK, "ok")
	}

	rec := doRequest(t, DevAuthMiddleware(testJWTConfig()), handler, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(gotRoles) != 1 || gotRoles[0] != RoleDoctor {
		t.Errorf("roles = %v, want [%s]", gotRoles, RoleDoctor)
	}
}

func TestDevAuthStillValidatesPresentedToken(t *testing.T) {
	cfg := testJWTConfig()
	token, err := IssueToken(cfg, "bob", []string{RoleVisitor})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	var gotRoles []string
	handler := func(c echo.Context) error {
		gotRoles = RolesFromContext(c.Request().Context())
		return c.String(http.StatusOK, "ok")
	}

	rec := doRequest(t, DevAuthMiddleware(cfg), handler, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(gotRoles) != 1 || gotRoles[0] != RoleVisitor {
		t.Errorf("roles = %v, want [%s]", gotRoles, RoleVisitor)
	}

	rec = doRequest(t, DevAuthMiddleware(cfg), okHandler, "garbage")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token status = %d, want 401", rec.Code)
	}
}

func TestElevated(t *testing.T) {
	cfg := testJWTConfig()

	cases := []struct {
		roles []string
		want  bool
	}{
		{[]string{RoleDoctor}, true},
		{[]string{RoleVisitor}, false},
		{[]string{RoleVisitor, RoleDoctor}, true},
		{nil, false},
	}
	for _, tc := range cases {
		token, err := IssueToken(cfg, "u", tc.roles)
		if err != nil {
			t.Fatalf("IssueToken: %v", err)
		}
		var got bool
		handler := func(c echo.Context) error {
			got = Elevated(c.Request().Context())
			return c.String(http.StatusOK, "ok")
		}
		doRequest(t, JWTMiddleware(cfg), handler, token)
		if got != tc.want {
			t.Errorf("Elevated(%v) = %v, want %v", tc.roles, got, tc.want)
		}
	}
}
