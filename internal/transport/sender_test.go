package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"lovefi/agent-client/pkg/models"
)

func newTestSender(t *testing.T, endpoints ...string) *Sender {
	t.Helper()
	s, err := NewSender(SenderConfig{
		Endpoints:      NewStickyEndpoints(endpoints),
		Timeout:        2 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	return s
}

func TestSendPostsEnvelopeJSON(t *testing.T) {
	client := mustIdentity(t, clientMnemonic)
	matcher := mustIdentity(t, matcherMnemonic)
	env := mustEnvelope(t, client, matcher, time.Now())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		var got models.Envelope
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if got.Signature == nil || *got.Signature != *env.Signature || got.Nonce != env.Nonce {
			t.Errorf("envelope altered in transit: %+v", got)
		}
		_, _ = w.Write([]byte(`{"status":"received"}`))
	}))
	defer srv.Close()

	reply, err := newTestSender(t, srv.URL).Send(context.Background(), env)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Envelope != nil {
		t.Fatal("plain status body must not parse as an envelope")
	}
	if string(reply.Body) != `{"status":"received"}` || reply.StatusCode != http.StatusOK {
		t.Fatalf("unexpected reply %+v", reply)
	}
}

func TestSendParsesEnvelopeReply(t *testing.T) {
	client := mustIdentity(t, clientMnemonic)
	matcher := mustIdentity(t, matcherMnemonic)
	request := mustEnvelope(t, client, matcher, time.Now())
	response := mustEnvelope(t, matcher, client, time.Now())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(response)
	}))
	defer srv.Close()

	reply, err := newTestSender(t, srv.URL).Send(context.Background(), request)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Envelope == nil || reply.Envelope.Session != response.Session {
		t.Fatalf("expected envelope reply, got %+v", reply)
	}
}

func TestSendRetriesTransientFailures(t *testing.T) {
	env := mustEnvelope(t, mustIdentity(t, clientMnemonic), mustIdentity(t, matcherMnemonic), time.Now())
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = w.Write([]byte(`{"status":"accepted"}`))
		}
	}))
	defer srv.Close()

	if _, err := newTestSender(t, srv.URL).Send(context.Background(), env); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestSendDoesNotRetryRejection(t *testing.T) {
	env := mustEnvelope(t, mustIdentity(t, clientMnemonic), mustIdentity(t, matcherMnemonic), time.Now())
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeReject(w, http.StatusUnauthorized, "ENVELOPE_SIGNATURE_INVALID")
	}))
	defer srv.Close()
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("a rejected envelope must not be offered to other endpoints")
	}))
	defer other.Close()

	_, err := newTestSender(t, srv.URL, other.URL).Send(context.Background(), env)
	if !errors.Is(err, ErrRejected) || !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != "ENVELOPE_SIGNATURE_INVALID" || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected parsed reject code, got %+v", statusErr)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestSendFailsOverAndSticksToWorkingEndpoint(t *testing.T) {
	env := mustEnvelope(t, mustIdentity(t, clientMnemonic), mustIdentity(t, matcherMnemonic), time.Now())
	var downCalls, upCalls atomic.Int32
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downCalls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upCalls.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer up.Close()

	s := newTestSender(t, down.URL, up.URL)
	reply, err := s.Send(context.Background(), env)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Endpoint != up.URL {
		t.Fatalf("expected reply from %s, got %s", up.URL, reply.Endpoint)
	}
	if downCalls.Load() != 3 {
		t.Fatalf("expected 3 attempts on the failing endpoint, got %d", downCalls.Load())
	}

	if _, err := s.Send(context.Background(), env); err != nil {
		t.Fatalf("second send: %v", err)
	}
	if downCalls.Load() != 3 || upCalls.Load() != 2 {
		t.Fatalf("expected sticky endpoint, down=%d up=%d", downCalls.Load(), upCalls.Load())
	}
}

func TestSendAllEndpointsDown(t *testing.T) {
	env := mustEnvelope(t, mustIdentity(t, clientMnemonic), mustIdentity(t, matcherMnemonic), time.Now())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	srv.Close()

	_, err := newTestSender(t, srv.URL).Send(context.Background(), env)
	if !errors.Is(err, ErrTransport) || errors.Is(err, ErrRejected) {
		t.Fatalf("expected retryable transport error, got %v", err)
	}
}

func TestSendHonorsContextCancel(t *testing.T) {
	env := mustEnvelope(t, mustIdentity(t, clientMnemonic), mustIdentity(t, matcherMnemonic), time.Now())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	s, err := NewSender(SenderConfig{
		Endpoints:      NewStickyEndpoints([]string{srv.URL}),
		MaxAttempts:    10,
		InitialBackoff: time.Hour,
		MaxBackoff:     time.Hour,
	})
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := s.Send(ctx, env); !errors.Is(err, ErrTransport) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestNewSenderRequiresEndpoints(t *testing.T) {
	if _, err := NewSender(SenderConfig{Endpoints: NewStickyEndpoints([]string{" "})}); !errors.Is(err, ErrNoEndpoints) {
		t.Fatalf("expected ErrNoEndpoints, got %v", err)
	}
}

func TestStickyEndpointsRotation(t *testing.T) {
	s := NewStickyEndpoints([]string{"a", "b", "c"})
	s.Report("b", errors.New("down"))
	if got := s.Endpoints(); got[0] != "a" {
		t.Fatalf("failures must not change preference, got %v", got)
	}
	s.Report("c", nil)
	got := s.Endpoints()
	if got[0] != "c" || got[1] != "a" || got[2] != "b" {
		t.Fatalf("unexpected order %v", got)
	}
}
