package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, target string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return FromContext(e.NewContext(req, rec))
}

func TestFromContext_Defaults(t *testing.T) {
	p := paramsFor(t, "/")
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := paramsFor(t, "/?limit=50&offset=10")
	if p.Limit != 50 {
		t.Errorf("expected limit 50, got %d", p.Limit)
	}
	if p.Offset != 10 {
		t.Errorf("expected offset 10, got %d", p.Offset)
	}
}

func TestFromContext_ClampsLimit(t *testing.T) {
	p := paramsFor(t, "/?limit=5000")
	if p.Limit != MaxLimit {
		t.Errorf("expected limit clamped to %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_IgnoresGarbage(t *testing.T) {
	p := paramsFor(t, "/?limit=abc&offset=-5")
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit, got %d", p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected offset 0, got %d", p.Offset)
	}
}

func TestNewResponse_HasMore(t *testing.T) {
	resp := NewResponse([]int{1, 2}, 10, Params{Limit: 2, Offset: 0})
	if !resp.HasMore {
		t.Error("expected has_more true")
	}
	if resp.NextOffset != 2 {
		t.Errorf("NextOffset = %d, want 2", resp.NextOffset)
	}

	resp = NewResponse([]int{1, 2}, 10, Params{Limit: 2, Offset: 8})
	if resp.HasMore {
		t.Error("expected has_more false on last page")
	}
	if resp.NextOffset != 0 {
		t.Errorf("NextOffset = %d, want omitted on last page", resp.NextOffset)
	}
}

func TestParams_NextOffset(t *testing.T) {
	p := Params{Limit: 20, Offset: 40}
	if p.NextOffset() != 60 {
		t.Errorf("NextOffset = %d, want 60", p.NextOffset())
	}
	if !p.HasNext(100) {
		t.Error("expected HasNext true")
	}
	if p.HasNext(60) {
		t.Error("expected HasNext false at end")
	}
}
