package dart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kofinhq/kofin/internal/core"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		APIKey:   "test-key",
		BaseURL:  srv.URL,
		StateDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRequestSuccess(t *testing.T) {
	var gotURL string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		w.Write([]byte(`{"status":"000","message":"정상","corp_name":"삼성전자"}`))
	})

	raw, meta, err := c.Request(context.Background(), "company", map[string]string{"corp_code": "00126380"}, nil)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if !strings.HasPrefix(gotURL, "/company.json?") {
		t.Errorf("request path = %q, want /company.json?...", gotURL)
	}
	if !strings.Contains(gotURL, "crtfc_key=test-key") {
		t.Errorf("request URL missing crtfc_key: %q", gotURL)
	}
	if !strings.Contains(gotURL, "corp_code=00126380") {
		t.Errorf("request URL missing corp_code: %q", gotURL)
	}
	if meta.Provider != "dart" || meta.Provenance != core.ProvenanceOrigin {
		t.Errorf("meta = %+v, want provider dart from origin", meta)
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if body["corp_name"] != "삼성전자" {
		t.Errorf("corp_name = %v, want 삼성전자", body["corp_name"])
	}
}

func TestRequestStatusMapping(t *testing.T) {
	tests := []struct {
		status        string
		wantKind      core.ErrorKind
		wantRetryable bool
	}{
		{"010", core.ErrAuthExpired, false},
		{"011", core.ErrNotFound, false},
		{"013", core.ErrNotFound, false},
		{"020", core.ErrRateLimited, true},
		{"800", core.ErrAPIError, true},
		{"100", core.ErrAPIError, false},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status":"` + tt.status + `","message":"boom"}`))
			})

			_, _, err := c.Request(context.Background(), "fnlttSinglAcntAll", map[string]string{"corp_code": "x"}, nil)
			te, ok := core.AsToolError(err)
			if !ok {
				t.Fatalf("Request() error = %v, want *core.ToolError", err)
			}
			if te.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", te.Kind, tt.wantKind)
			}
			if te.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", te.Retryable, tt.wantRetryable)
			}
		})
	}
}

func TestRequestSecondCallServedFromMemory(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"status":"000","message":"정상"}`))
	})

	ttl := time.Hour
	opts := &core.RequestOptions{TTL: &ttl}

	if _, _, err := c.Request(context.Background(), "company", map[string]string{"corp_code": "a"}, opts); err != nil {
		t.Fatalf("first Request() error = %v", err)
	}
	_, meta, err := c.Request(context.Background(), "company", map[string]string{"corp_code": "a"}, opts)
	if err != nil {
		t.Fatalf("second Request() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("origin calls = %d, want 1", calls)
	}
	if meta.Provenance != core.ProvenanceMemory {
		t.Errorf("Provenance = %v, want %v", meta.Provenance, core.ProvenanceMemory)
	}
}

func TestDownloadCorpIndex(t *testing.T) {
	zipPayload := []byte("PK\x03\x04fake-zip-bytes")
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/corpCode.xml") {
			t.Errorf("path = %q, want /corpCode.xml", r.URL.Path)
		}
		w.Write(zipPayload)
	})

	got, err := c.DownloadCorpIndex(context.Background())
	if err != nil {
		t.Fatalf("DownloadCorpIndex() error = %v", err)
	}
	if string(got) != string(zipPayload) {
		t.Errorf("payload = %q, want %q", got, zipPayload)
	}
}

func TestDownloadCorpIndexErrorBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"020","message":"사용한도 초과"}`))
	})

	_, err := c.DownloadCorpIndex(context.Background())
	te, ok := core.AsToolError(err)
	if !ok {
		t.Fatalf("DownloadCorpIndex() error = %v, want *core.ToolError", err)
	}
	if te.Kind != core.ErrRateLimited {
		t.Errorf("Kind = %v, want %v", te.Kind, core.ErrRateLimited)
	}
}
