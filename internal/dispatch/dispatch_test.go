package dispatch

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/unionsquare/core/internal/audit"
	"github.com/unionsquare/core/internal/middleware"
	"github.com/unionsquare/core/internal/reqctx"
	"github.com/unionsquare/core/internal/ringbuf"
)

func TestDispatcher_ResolvesUpstreamAndRunsChain(t *testing.T) {
	var gotPath, gotQuery string

	chain := middleware.Build(
		middleware.Handler(func(w http.ResponseWriter, r *http.Request, rc *reqctx.Context, pub *middleware.Publisher) error {
			gotPath = rc.UpstreamTarget.Path
			gotQuery = rc.UpstreamTarget.RawQuery
			rc.TerminalStatus = "200"
			w.WriteHeader(http.StatusOK)
			return nil
		}),
		middleware.ErrorShaping,
	)

	rb := ringbuf.New(16, 256)
	base, _ := url.Parse("http://upstream.internal/api")

	d := New(chain, rb, Config{
		UpstreamBaseURL: base,
		RequestIDHeader: "X-Request-Id",
		RequestTimeout:  time.Second,
	}, zap.NewNop())

	srv := httptest.NewServer(d.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/chat?stream=true")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if gotPath != "/api/v1/chat" {
		t.Fatalf("expected resolved path /api/v1/chat, got %q", gotPath)
	}
	if gotQuery != "stream=true" {
		t.Fatalf("expected query stream=true, got %q", gotQuery)
	}
}

func TestDispatcher_RecoversPanicAndReportsCompletion(t *testing.T) {
	chain := middleware.Build(
		middleware.Handler(func(w http.ResponseWriter, r *http.Request, rc *reqctx.Context, pub *middleware.Publisher) error {
			panic("boom")
		}),
		middleware.ErrorShaping,
	)

	rb := ringbuf.New(16, 256)
	base, _ := url.Parse("http://upstream.internal")

	d := New(chain, rb, Config{
		UpstreamBaseURL: base,
		RequestIDHeader: "X-Request-Id",
		RequestTimeout:  time.Second,
	}, zap.NewNop())

	srv := httptest.NewServer(d.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/chat")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	// The recover path does not itself write a status: handle returns
	// normally after recovering, so net/http sends its implicit response.
	// What this test checks is that the server survives the panic and that
	// the deferred exit guard still published RequestCompleted.
	_ = resp

	res := rb.TryConsume()
	if res.Outcome != ringbuf.Record || res.Kind != uint8(audit.KindRequestCompleted) {
		t.Fatalf("expected a RequestCompleted record after the panic, got outcome %v kind %d", res.Outcome, res.Kind)
	}
}
