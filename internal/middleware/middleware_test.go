package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/unionsquare/core/internal/authstore"
	"github.com/unionsquare/core/internal/ratelimit"
	"github.com/unionsquare/core/internal/reqctx"
	"github.com/unionsquare/core/internal/ringbuf"
)

func newTestPublisher(t *testing.T) *Publisher {
	t.Helper()
	rb := ringbuf.New(16, 256)
	return NewPublisher(rb)
}

func newTestRequest(t *testing.T, header, value string) (*http.Request, *reqctx.Context) {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/v1/chat", nil)
	if header != "" {
		r.Header.Set(header, value)
	}
	rc := reqctx.New(reqctx.NewID(), time.Second)
	return r, rc
}

func TestBuild_RunsFirstLayerOutermost(t *testing.T) {
	var order []string
	mark := func(name string) Layer {
		return func(next Handler) Handler {
			return func(w http.ResponseWriter, r *http.Request, rc *reqctx.Context, pub *Publisher) error {
				order = append(order, name)
				return next(w, r, rc, pub)
			}
		}
	}

	terminal := Handler(func(w http.ResponseWriter, r *http.Request, rc *reqctx.Context, pub *Publisher) error {
		order = append(order, "terminal")
		return nil
	})

	h := Build(terminal, mark("a"), mark("b"))
	w := httptest.NewRecorder()
	r, rc := newTestRequest(t, "", "")
	pub := newTestPublisher(t)

	if err := h(w, r, rc, pub); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "terminal" {
		t.Fatalf("unexpected call order: %v", order)
	}
}

func TestErrorShaping_MapsTaxonomyToStatus(t *testing.T) {
	cases := []struct {
		kind ErrorKind
		want int
	}{
		{BadRequest, http.StatusBadRequest},
		{Unauthenticated, http.StatusUnauthorized},
		{RateLimited, http.StatusTooManyRequests},
		{UpstreamTimeout, http.StatusGatewayTimeout},
		{UpstreamUnavailable, http.StatusBadGateway},
		{Internal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.kind.String(), func(t *testing.T) {
			terminal := Handler(func(w http.ResponseWriter, r *http.Request, rc *reqctx.Context, pub *Publisher) error {
				return &TaxonomyError{Kind: tc.kind}
			})
			h := Build(terminal, ErrorShaping)

			w := httptest.NewRecorder()
			r, rc := newTestRequest(t, "", "")
			pub := newTestPublisher(t)

			if err := h(w, r, rc, pub); err != nil {
				t.Fatalf("ErrorShaping must swallow the error, got %v", err)
			}
			if w.Code != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestErrorShaping_WrapsUnknownErrorAsInternal(t *testing.T) {
	terminal := Handler(func(w http.ResponseWriter, r *http.Request, rc *reqctx.Context, pub *Publisher) error {
		return errString("boom")
	})
	h := Build(terminal, ErrorShaping)

	w := httptest.NewRecorder()
	r, rc := newTestRequest(t, "", "")
	pub := newTestPublisher(t)

	_ = h(w, r, rc, pub)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func TestAuthLayer_MissingAndInvalidAndAccept(t *testing.T) {
	store := authstore.New(map[string]string{"good-key": "acme-corp"})

	terminal := Handler(func(w http.ResponseWriter, r *http.Request, rc *reqctx.Context, pub *Publisher) error {
		return nil
	})

	t.Run("missing", func(t *testing.T) {
		h := Build(terminal, ErrorShaping, AuthLayer("X-Api-Key", store))
		w := httptest.NewRecorder()
		r, rc := newTestRequest(t, "", "")
		pub := newTestPublisher(t)

		_ = h(w, r, rc, pub)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		h := Build(terminal, ErrorShaping, AuthLayer("X-Api-Key", store))
		w := httptest.NewRecorder()
		r, rc := newTestRequest(t, "X-Api-Key", "wrong")
		pub := newTestPublisher(t)

		_ = h(w, r, rc, pub)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})

	t.Run("accept", func(t *testing.T) {
		h := Build(terminal, ErrorShaping, AuthLayer("X-Api-Key", store))
		w := httptest.NewRecorder()
		r, rc := newTestRequest(t, "X-Api-Key", "good-key")
		pub := newTestPublisher(t)

		if err := h(w, r, rc, pub); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rc.ClientPrincipal != "acme-corp" {
			t.Fatalf("expected principal acme-corp, got %q", rc.ClientPrincipal)
		}
	})
}

func TestRateLimitLayer_DeniesOverBurstAndSetsRetryAfter(t *testing.T) {
	limiter := ratelimit.New(1, 1)
	terminal := Handler(func(w http.ResponseWriter, r *http.Request, rc *reqctx.Context, pub *Publisher) error {
		return nil
	})
	h := Build(terminal, ErrorShaping, RateLimitLayer(limiter))

	r, rc := newTestRequest(t, "", "")
	pub := newTestPublisher(t)
	rc.ClientPrincipal = "acme-corp"

	w1 := httptest.NewRecorder()
	if err := h(w1, r, rc, pub); err != nil {
		t.Fatalf("expected first request to pass, got err=%v", err)
	}
	if w1.Code != http.StatusOK {
		t.Fatalf("expected first request to pass through untouched, got status %d", w1.Code)
	}

	w2 := httptest.NewRecorder()
	_ = h(w2, r, rc, pub)
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on second request, got %d", w2.Code)
	}
	if w2.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on denial")
	}
}

func TestRequestIDLayer_AdoptsValidHeaderAndMintsOtherwise(t *testing.T) {
	terminal := Handler(func(w http.ResponseWriter, r *http.Request, rc *reqctx.Context, pub *Publisher) error {
		return nil
	})
	h := Build(terminal, ErrorShaping, RequestIDLayer("X-Request-Id"))

	r, rc := newTestRequest(t, "", "")
	originalID := rc.RequestID
	w := httptest.NewRecorder()
	pub := newTestPublisher(t)

	if err := h(w, r, rc, pub); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rc.RequestID != originalID {
		t.Fatal("expected a freshly minted id to be retained when no header is supplied")
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected response to carry the request id header")
	}

	supplied := reqctx.NewID()
	r2, rc2 := newTestRequest(t, "X-Request-Id", supplied.String())
	w2 := httptest.NewRecorder()

	if err := h(w2, r2, rc2, pub); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rc2.RequestID != supplied {
		t.Fatalf("expected supplied id %v to be adopted, got %v", supplied, rc2.RequestID)
	}
	if got := w2.Header().Get("X-Request-Id"); got != supplied.String() {
		t.Fatalf("expected response to echo %q, got %q", supplied.String(), got)
	}
}

func TestLoggingLayer_SampleRateZeroEmitsNothingObservable(t *testing.T) {
	terminal := Handler(func(w http.ResponseWriter, r *http.Request, rc *reqctx.Context, pub *Publisher) error {
		return nil
	})
	h := Build(terminal, ErrorShaping, LoggingLayer(0))

	r, rc := newTestRequest(t, "", "")
	w := httptest.NewRecorder()
	rb := ringbuf.New(16, 256)
	pub := NewPublisher(rb)

	if err := h(w, r, rc, pub); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rb.Stats().Published; got != 0 {
		t.Fatalf("expected no audit events at sample rate 0, got %d", got)
	}
}
