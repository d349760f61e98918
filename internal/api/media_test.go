package api

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"wabridge/internal/domain"
)

// pngHeader is enough bytes for the image signature sniff.
var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}

func TestSendMedia_Base64Success(t *testing.T) {
	var gotKinds []domain.MediaKind
	session := &stubSession{
		state: domain.StateReady,
		mediaFn: func(phone string, m domain.Media) (domain.SendResult, error) {
			gotKinds = append(gotKinds, m.Kind)
			return domain.SendResult{MessageID: "MEDIA1"}, nil
		},
	}
	srv := newTestServer(t, session)

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/api/send-media", map[string]any{
		"phoneNumber":   "12345678901",
		"message":       "see attached",
		"mediaBase64":   base64.StdEncoding.EncodeToString(pngHeader),
		"mediaMimetype": "image/png",
		"mediaFilename": "invite.png",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["messageId"] != "MEDIA1" {
		t.Fatalf("unexpected messageId: %v", body["messageId"])
	}
	if _, hasWarning := body["warning"]; hasWarning {
		t.Fatal("clean success must not carry a warning")
	}
	if len(gotKinds) != 1 || gotKinds[0] != domain.MediaImage {
		t.Fatalf("expected one image send, got %v", gotKinds)
	}
}

func TestSendMedia_LargeBase64Accepted(t *testing.T) {
	session := &stubSession{
		state: domain.StateReady,
		mediaFn: func(phone string, m domain.Media) (domain.SendResult, error) {
			return domain.SendResult{MessageID: "BIG1"}, nil
		},
	}
	srv := newTestServer(t, session)

	// Well past the 1 MB JSON cap of the other routes, well under the media cap.
	data := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0xAB}, 2<<20)...)
	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/api/send-media", map[string]any{
		"phoneNumber":   "12345678901",
		"mediaBase64":   base64.StdEncoding.EncodeToString(data),
		"mediaMimetype": "image/png",
		"mediaFilename": "invite.png",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["messageId"] != "BIG1" {
		t.Fatalf("unexpected messageId: %v", body["messageId"])
	}
}

func TestSendMedia_BodyOverMediaCap(t *testing.T) {
	session := &stubSession{state: domain.StateReady}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := NewMediaStore(t.TempDir(), 1024, time.Millisecond, logger)
	srv := NewServer(Options{}, session, store, logger)

	payload := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0xAB}, 2<<20))
	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/api/send-media", map[string]any{
		"phoneNumber": "12345678901",
		"mediaBase64": payload,
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["error"] != "media exceeds the 1024 byte limit" {
		t.Fatalf("expected the size-cap error, got %v", body["error"])
	}
}

func TestSendMedia_RejectsBothSources(t *testing.T) {
	srv := newTestServer(t, &stubSession{state: domain.StateReady})

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/api/send-media", map[string]any{
		"phoneNumber": "12345678901",
		"mediaUrl":    "http://example.com/a.png",
		"mediaBase64": base64.StdEncoding.EncodeToString(pngHeader),
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["error"] != "Provide either mediaUrl or mediaBase64, not both" {
		t.Fatalf("unexpected error: %v", body["error"])
	}
}

func TestSendMedia_FallsBackToDocument(t *testing.T) {
	var attempts []domain.MediaKind
	session := &stubSession{
		state: domain.StateReady,
		mediaFn: func(phone string, m domain.Media) (domain.SendResult, error) {
			attempts = append(attempts, m.Kind)
			if m.Kind != domain.MediaDocument {
				return domain.SendResult{}, errors.New("image rejected")
			}
			return domain.SendResult{MessageID: "DOC1"}, nil
		},
	}
	srv := newTestServer(t, session)

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/api/send-media", map[string]any{
		"phoneNumber":   "12345678901",
		"message":       "see attached",
		"mediaBase64":   base64.StdEncoding.EncodeToString(pngHeader),
		"mediaMimetype": "image/png",
		"mediaFilename": "invite.png",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["messageId"] != "DOC1" {
		t.Fatalf("unexpected messageId: %v", body["messageId"])
	}
	if _, hasWarning := body["warning"]; hasWarning {
		t.Fatal("document fallback is still a media success, no warning expected")
	}
	// with caption, then captionless image, then document
	if len(attempts) != 3 || attempts[2] != domain.MediaDocument {
		t.Fatalf("unexpected attempt sequence: %v", attempts)
	}
}

func TestSendMedia_TextFallbackCarriesWarning(t *testing.T) {
	session := &stubSession{
		state: domain.StateReady,
		mediaFn: func(phone string, m domain.Media) (domain.SendResult, error) {
			return domain.SendResult{}, errors.New("media rejected")
		},
	}
	srv := newTestServer(t, session)

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/api/send-media", map[string]any{
		"phoneNumber":   "12345678901",
		"message":       "fallback caption",
		"mediaBase64":   base64.StdEncoding.EncodeToString(pngHeader),
		"mediaMimetype": "image/png",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["warning"] == nil || body["warning"] == "" {
		t.Fatalf("text fallback must carry a warning, got %v", body)
	}
	if body["messageId"] != "TEXT1" {
		t.Fatalf("expected the text message id, got %v", body["messageId"])
	}
	if len(session.sentTexts) != 1 || session.sentTexts[0] != "fallback caption" {
		t.Fatalf("caption should be sent as text, got %v", session.sentTexts)
	}
}

func TestSendMedia_ExhaustedWithoutCaption(t *testing.T) {
	session := &stubSession{
		state: domain.StateReady,
		mediaFn: func(phone string, m domain.Media) (domain.SendResult, error) {
			return domain.SendResult{}, errors.New("media rejected")
		},
	}
	srv := newTestServer(t, session)

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/api/send-media", map[string]any{
		"phoneNumber":   "12345678901",
		"mediaBase64":   base64.StdEncoding.EncodeToString(pngHeader),
		"mediaMimetype": "image/png",
	})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["error"] != "media rejected" {
		t.Fatalf("last error should surface, got %v", body["error"])
	}
	if len(session.sentTexts) != 0 {
		t.Fatal("no caption means no text fallback")
	}
}

func TestSendMedia_RequiresSource(t *testing.T) {
	srv := newTestServer(t, &stubSession{state: domain.StateReady})

	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/api/send-media", map[string]any{
		"phoneNumber": "12345678901",
		"message":     "no payload",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestMediaStore_StageAndDiscard(t *testing.T) {
	store := newTestServer(t, &stubSession{}).media

	staged, err := store.FromBase64(base64.StdEncoding.EncodeToString(pngHeader), "image/png", "a.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(staged.Path); err != nil {
		t.Fatalf("temp file should exist: %v", err)
	}
	if filepath.Ext(staged.Path) != ".png" {
		t.Fatalf("temp name should keep the extension, got %s", staged.Path)
	}

	staged.Discard()
	if _, err := os.Stat(staged.Path); !os.IsNotExist(err) {
		t.Fatal("temp file should be gone after discard")
	}
}

func TestMediaStore_RejectsOversizedBase64(t *testing.T) {
	store := newTestServer(t, &stubSession{}).media
	store.maxBytes = 4

	_, err := store.FromBase64(base64.StdEncoding.EncodeToString(pngHeader), "image/png", "a.png")
	if err == nil {
		t.Fatal("oversized payload must be rejected")
	}
}

func TestSniffImage(t *testing.T) {
	if got := sniffImage(pngHeader); got != "png" {
		t.Fatalf("expected png, got %q", got)
	}
	if got := sniffImage([]byte{0xFF, 0xD8, 0xFF, 0xE0}); got != "jpeg" {
		t.Fatalf("expected jpeg, got %q", got)
	}
	if got := sniffImage([]byte("plain text")); got != "" {
		t.Fatalf("expected no match, got %q", got)
	}
}
