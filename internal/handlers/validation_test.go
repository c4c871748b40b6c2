package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", 50, 0},
		{"limit=10&offset=20", 10, 20},
		{"limit=-1&offset=-5", 50, 0},
		{"limit=abc", 50, 0},
		{"limit=100000", MaxLimit, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
			p := parsePagination(r)
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("parsePagination(%q) = %+v, want %d/%d", tt.query, p, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestAPIKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?api_key=from-query", nil)
	if got := apiKey(r); got != "from-query" {
		t.Errorf("apiKey() = %q, want from-query", got)
	}
	r.Header.Set("X-API-Key", " from-header ")
	if got := apiKey(r); got != "from-header" {
		t.Errorf("apiKey() = %q, want from-header", got)
	}
}

func TestRequireInt64Param(t *testing.T) {
	tests := []struct {
		query  string
		want   int64
		wantOK bool
	}{
		{"school_id=12", 12, true},
		{"", 0, false},
		{"school_id=0", 0, false},
		{"school_id=x", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
			got, ok := requireInt64Param(w, r, "school_id")
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("requireInt64Param(%q) = %d, %v, want %d, %v", tt.query, got, ok, tt.want, tt.wantOK)
			}
			if !ok && w.Code != http.StatusBadRequest {
				t.Errorf("requireInt64Param(%q) status = %d, want 400", tt.query, w.Code)
			}
		})
	}
}
