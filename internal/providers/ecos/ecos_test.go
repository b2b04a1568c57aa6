package ecos

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kofinhq/kofin/internal/core"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		APIKey:   "secret",
		BaseURL:  srv.URL,
		StateDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestBuildURLStatisticSearch(t *testing.T) {
	c := &Client{apiKey: "secret", baseURL: "https://ecos.bok.or.kr/api"}

	got, err := c.buildURL(EndpointStatisticSearch, map[string]string{
		"table":      "722Y001",
		"period":     "M",
		"start_date": "202401",
		"end_date":   "202412",
		"item1":      "0101000",
	})
	if err != nil {
		t.Fatalf("buildURL() error = %v", err)
	}
	want := "https://ecos.bok.or.kr/api/StatisticSearch/secret/json/kr/1/100/722Y001/M/202401/202412/0101000"
	if got != want {
		t.Errorf("buildURL() = %q, want %q", got, want)
	}
}

func TestBuildURLTrimsTrailingEmptySegments(t *testing.T) {
	c := &Client{apiKey: "secret", baseURL: "https://ecos.bok.or.kr/api"}

	got, err := c.buildURL(EndpointStatisticSearch, map[string]string{
		"table":      "722Y001",
		"period":     "M",
		"start_date": "202401",
		"end_date":   "202412",
	})
	if err != nil {
		t.Fatalf("buildURL() error = %v", err)
	}
	if strings.HasSuffix(got, "/") || strings.Contains(got, "//202401") {
		t.Errorf("buildURL() = %q, trailing empties not trimmed", got)
	}
	if !strings.HasSuffix(got, "/722Y001/M/202401/202412") {
		t.Errorf("buildURL() = %q, want suffix /722Y001/M/202401/202412", got)
	}
}

func TestBuildURLStatisticWordEscapesTerm(t *testing.T) {
	c := &Client{apiKey: "secret", baseURL: "https://ecos.bok.or.kr/api"}

	got, err := c.buildURL(EndpointStatisticWord, map[string]string{"term": "기준금리"})
	if err != nil {
		t.Fatalf("buildURL() error = %v", err)
	}
	if !strings.HasSuffix(got, "/"+"%EA%B8%B0%EC%A4%80%EA%B8%88%EB%A6%AC") {
		t.Errorf("buildURL() = %q, want percent-escaped term", got)
	}
}

func TestBuildURLStatisticWordRequiresTerm(t *testing.T) {
	c := &Client{apiKey: "secret", baseURL: "https://ecos.bok.or.kr/api"}

	_, err := c.buildURL(EndpointStatisticWord, map[string]string{"term": "  "})
	te, ok := core.AsToolError(err)
	if !ok {
		t.Fatalf("buildURL() error = %v, want *core.ToolError", err)
	}
	if te.Kind != core.ErrParse {
		t.Errorf("Kind = %v, want %v", te.Kind, core.ErrParse)
	}
}

func TestRequestPaging(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"KeyStatisticList":{"list_total_count":1,"row":[{"KEYSTAT_NAME":"한국은행 기준금리"}]}}`))
	})

	raw, _, err := c.Request(context.Background(), EndpointKeyStatistics, map[string]string{"start": "1", "end": "10"}, nil)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if gotPath != "/KeyStatisticList/secret/json/kr/1/10" {
		t.Errorf("path = %q, want /KeyStatisticList/secret/json/kr/1/10", gotPath)
	}
	if !strings.Contains(string(raw), "기준금리") {
		t.Errorf("payload %q missing row", raw)
	}
}

func TestRequestResultMapping(t *testing.T) {
	tests := []struct {
		code     string
		wantKind core.ErrorKind
	}{
		{"INFO-100", core.ErrAuthExpired},
		{"INFO-200", core.ErrNotFound},
		{"INFO-300", core.ErrRateLimited},
		{"ERROR-500", core.ErrAPIError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"RESULT":{"CODE":"` + tt.code + `","MESSAGE":"요청 실패"}}`))
			})

			_, _, err := c.Request(context.Background(), EndpointKeyStatistics, nil, nil)
			te, ok := core.AsToolError(err)
			if !ok {
				t.Fatalf("Request() error = %v, want *core.ToolError", err)
			}
			if te.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", te.Kind, tt.wantKind)
			}
		})
	}
}
