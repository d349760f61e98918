package session

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"wabridge/internal/domain"
)

type nopPublisher struct{}

func (nopPublisher) Publish(domain.InboundEvent) {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return New(Options{
		StorePath:      filepath.Join(t.TempDir(), "credentials.db"),
		ReconnectDelay: time.Hour,
	}, nopPublisher{}, testLogger())
}

func TestNew_StartsNotReady(t *testing.T) {
	m := newTestManager(t)
	defer m.Close()

	if got := m.CurrentState(); got != domain.StateNotReady {
		t.Errorf("expected not_ready before start, got %s", got)
	}
	if _, ok := m.PairingToken(); ok {
		t.Error("fresh manager must not carry a pairing token")
	}
}

func TestLogout_SucceedsFromAnyState(t *testing.T) {
	m := newTestManager(t)
	defer m.Close()

	// Never paired, never connected: logout still tears down and succeeds.
	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("logout before pairing should succeed, got: %v", err)
	}
	if got := m.CurrentState(); got != domain.StateNotReady {
		t.Errorf("expected not_ready after logout, got %s", got)
	}
	if _, ok := m.PairingToken(); ok {
		t.Error("stale pairing token must be cleared on logout")
	}
}

func TestSendText_NotReady(t *testing.T) {
	m := newTestManager(t)
	defer m.Close()

	_, err := m.SendText(context.Background(), "12345678901", "hi")
	if err != domain.ErrNotReady {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestToJID_RejectsBadNumbers(t *testing.T) {
	m := newTestManager(t)
	defer m.Close()

	for _, phone := range []string{"", "123", "1234567890123456", "abc"} {
		if _, err := m.toJID(phone); err == nil {
			t.Errorf("toJID(%q) should fail", phone)
		}
	}
	if _, err := m.toJID("+1 (234) 567-8901"); err != nil {
		t.Errorf("formatted number should be accepted, got: %v", err)
	}
}
