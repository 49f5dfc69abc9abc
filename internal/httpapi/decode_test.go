package httpapi

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"learnhub.org/internal/apperr"
)

func TestParseQuery(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		allowed []string
		wantErr bool
		check   func(t *testing.T, p queryParams)
	}{
		{name: "defaults", raw: "", allowed: []string{qLimit}, check: func(t *testing.T, p queryParams) {
			if p.Limit != defaultPageLimit || p.Offset != 0 {
				t.Fatalf("unexpected defaults %+v", p)
			}
		}},
		{name: "typed values", raw: "limit=5&offset=10&q=go", allowed: []string{qLimit, qOffset, qSearch}, check: func(t *testing.T, p queryParams) {
			if p.Limit != 5 || p.Offset != 10 || p.Search != "go" {
				t.Fatalf("unexpected params %+v", p)
			}
		}},
		{name: "unknown key", raw: "sort=desc", allowed: []string{qLimit}, wantErr: true},
		{name: "limit too large", raw: "limit=101", allowed: []string{qLimit}, wantErr: true},
		{name: "limit zero", raw: "limit=0", allowed: []string{qLimit}, wantErr: true},
		{name: "negative offset", raw: "offset=-1", allowed: []string{qOffset}, wantErr: true},
		{name: "non numeric", raw: "limit=ten", allowed: []string{qLimit}, wantErr: true},
		{name: "repeated key", raw: "limit=1&limit=2", allowed: []string{qLimit}, wantErr: true},
		{name: "days out of range", raw: "days=366", allowed: []string{qDays}, wantErr: true},
		{name: "empty id", raw: "category=", allowed: []string{qCategory}, wantErr: true},
		{name: "featured flag", raw: "featured=true", allowed: []string{qFeatured}, check: func(t *testing.T, p queryParams) {
			if !p.Featured {
				t.Fatalf("featured not set: %+v", p)
			}
		}},
		{name: "featured not boolean", raw: "featured=maybe", allowed: []string{qFeatured}, wantErr: true},
		{name: "search too long", raw: "q=" + strings.Repeat("x", maxSearchLength+1), allowed: []string{qSearch}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			values, err := url.ParseQuery(tc.raw)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			p, err := parseQuery(values, tc.allowed...)
			if tc.wantErr {
				if apperr.KindOf(err) != apperr.KindInvalidInput {
					t.Fatalf("expected invalid input, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseQuery: %v", err)
			}
			tc.check(t, p)
		})
	}
}

func TestDecodeJSONStrict(t *testing.T) {
	cases := []struct {
		name string
		body string
		ok   bool
	}{
		{"valid", `{"email":"a@b.co"}`, true},
		{"unknown field", `{"email":"a@b.co","admin":true}`, false},
		{"trailing data", `{"email":"a@b.co"} {}`, false},
		{"empty", ``, false},
		{"wrong type", `{"email":1}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dst struct {
				Email string `json:"email"`
			}
			err := decodeJSON(httptest.NewRecorder(), req, &dst)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && apperr.KindOf(err) != apperr.KindInvalidInput {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}
