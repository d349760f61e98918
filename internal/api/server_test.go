package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wabridge/internal/domain"
)

// stubSession lets each test script the session behavior per call.
type stubSession struct {
	state    domain.SessionState
	token    domain.PairingToken
	hasToken bool

	unregistered map[string]bool

	textFn    func(phone, body string) (domain.SendResult, error)
	mediaFn   func(phone string, m domain.Media) (domain.SendResult, error)
	pollFn    func(phone, question string, options []string, multi bool) (domain.SendResult, error)
	buttonsFn func(phone, body, title, footer string, buttons []domain.Button) (domain.SendResult, error)

	sentTexts  []string
	sentPhones []string
	loggedOut  bool
}

func (s *stubSession) CurrentState() domain.SessionState { return s.state }

func (s *stubSession) PairingToken() (domain.PairingToken, bool) { return s.token, s.hasToken }

func (s *stubSession) IsRegistered(ctx context.Context, phone string) (bool, error) {
	return !s.unregistered[phone], nil
}

func (s *stubSession) SendText(ctx context.Context, phone, body string) (domain.SendResult, error) {
	s.sentPhones = append(s.sentPhones, phone)
	s.sentTexts = append(s.sentTexts, body)
	if s.textFn != nil {
		return s.textFn(phone, body)
	}
	return domain.SendResult{MessageID: "TEXT1", Timestamp: time.Unix(1700000000, 0)}, nil
}

func (s *stubSession) SendMedia(ctx context.Context, phone string, m domain.Media) (domain.SendResult, error) {
	if s.mediaFn != nil {
		return s.mediaFn(phone, m)
	}
	return domain.SendResult{MessageID: "MEDIA1", Timestamp: time.Unix(1700000000, 0)}, nil
}

func (s *stubSession) SendPoll(ctx context.Context, phone, question string, options []string, multi bool) (domain.SendResult, error) {
	if s.pollFn != nil {
		return s.pollFn(phone, question, options, multi)
	}
	return domain.SendResult{MessageID: "POLL1", Timestamp: time.Unix(1700000000, 0)}, nil
}

func (s *stubSession) SendButtons(ctx context.Context, phone, body, title, footer string, buttons []domain.Button) (domain.SendResult, error) {
	if s.buttonsFn != nil {
		return s.buttonsFn(phone, body, title, footer, buttons)
	}
	return domain.SendResult{MessageID: "BTN1", Timestamp: time.Unix(1700000000, 0)}, nil
}

func (s *stubSession) Reply(ctx context.Context, chatJID, body string) error { return nil }

func (s *stubSession) Logout(ctx context.Context) error {
	s.loggedOut = true
	s.state = domain.StateNotReady
	return nil
}

func newTestServer(t *testing.T, session domain.Session) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := NewMediaStore(t.TempDir(), 10<<20, time.Millisecond, logger)
	return NewServer(Options{BulkDelay: 0, BulkJitter: 0}, session, store, logger)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, decoded
}
