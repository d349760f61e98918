package api

import (
	"net/http"
	"testing"

	"wabridge/internal/domain"
)

func TestSendMessage_Success(t *testing.T) {
	session := &stubSession{state: domain.StateReady}
	srv := newTestServer(t, session)

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/api/send-message", map[string]any{
		"phoneNumber": "+1 (234) 567-8901",
		"message":     "hello",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["success"] != true {
		t.Fatalf("expected success, got %v", body)
	}
	if body["messageId"] != "TEXT1" {
		t.Fatalf("unexpected messageId: %v", body["messageId"])
	}
	if body["phoneNumber"] != "12345678901@c.us" {
		t.Fatalf("unexpected phoneNumber: %v", body["phoneNumber"])
	}
	if len(session.sentPhones) != 1 || session.sentPhones[0] != "12345678901" {
		t.Fatalf("unexpected send targets: %v", session.sentPhones)
	}
}

func TestSendMessage_NotReady(t *testing.T) {
	srv := newTestServer(t, &stubSession{state: domain.StateAwaitingScan})

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/api/send-message", map[string]any{
		"phoneNumber": "12345678901",
		"message":     "hello",
	})

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if body["success"] != false {
		t.Fatalf("expected failure envelope, got %v", body)
	}
}

func TestSendMessage_MissingFields(t *testing.T) {
	srv := newTestServer(t, &stubSession{state: domain.StateReady})

	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/api/send-message", map[string]any{
		"phoneNumber": "12345678901",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSendMessage_InvalidNumber(t *testing.T) {
	session := &stubSession{state: domain.StateReady}
	srv := newTestServer(t, session)

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/api/send-message", map[string]any{
		"phoneNumber": "12345",
		"message":     "hello",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body["error"] != "Invalid phone number format" {
		t.Fatalf("unexpected error: %v", body["error"])
	}
	if len(session.sentTexts) != 0 {
		t.Fatal("nothing should have been sent")
	}
}

func TestSendMessage_Unregistered(t *testing.T) {
	session := &stubSession{
		state:        domain.StateReady,
		unregistered: map[string]bool{"12345678901": true},
	}
	srv := newTestServer(t, session)

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/api/send-message", map[string]any{
		"phoneNumber": "12345678901",
		"message":     "hello",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body["error"] != "Phone number is not registered on WhatsApp" {
		t.Fatalf("unexpected error: %v", body["error"])
	}
}

func TestSendPoll_Success(t *testing.T) {
	var gotQuestion string
	var gotOptions []string
	var gotMulti bool
	session := &stubSession{
		state: domain.StateReady,
		pollFn: func(phone, question string, options []string, multi bool) (domain.SendResult, error) {
			gotQuestion, gotOptions, gotMulti = question, options, multi
			return domain.SendResult{MessageID: "POLL1"}, nil
		},
	}
	srv := newTestServer(t, session)

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/api/send-poll", map[string]any{
		"phoneNumber":          "12345678901",
		"question":             "Will you attend?",
		"options":              []string{"Yes", "No"},
		"allowMultipleAnswers": false,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["messageId"] != "POLL1" {
		t.Fatalf("unexpected messageId: %v", body["messageId"])
	}
	if gotQuestion != "Will you attend?" || len(gotOptions) != 2 || gotMulti {
		t.Fatalf("unexpected poll args: %q %v %v", gotQuestion, gotOptions, gotMulti)
	}
}

func TestSendPoll_NeedsTwoOptions(t *testing.T) {
	srv := newTestServer(t, &stubSession{state: domain.StateReady})

	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/api/send-poll", map[string]any{
		"phoneNumber": "12345678901",
		"question":    "Will you attend?",
		"options":     []string{"Yes"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSendButtons_Success(t *testing.T) {
	var gotButtons []domain.Button
	session := &stubSession{
		state: domain.StateReady,
		buttonsFn: func(phone, body, title, footer string, buttons []domain.Button) (domain.SendResult, error) {
			gotButtons = buttons
			return domain.SendResult{MessageID: "BTN1"}, nil
		},
	}
	srv := newTestServer(t, session)

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/api/send-buttons", map[string]any{
		"phoneNumber": "12345678901",
		"body":        "Pick one",
		"title":       "RSVP",
		"buttons": []map[string]string{
			{"id": "yes", "title": "Attending"},
			{"id": "no", "title": "Declining"},
		},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["messageId"] != "BTN1" {
		t.Fatalf("unexpected messageId: %v", body["messageId"])
	}
	if len(gotButtons) != 2 || gotButtons[0].ID != "yes" || gotButtons[1].Title != "Declining" {
		t.Fatalf("unexpected buttons: %v", gotButtons)
	}
}

func TestSendButtons_RequiresButtons(t *testing.T) {
	srv := newTestServer(t, &stubSession{state: domain.StateReady})

	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/api/send-buttons", map[string]any{
		"phoneNumber": "12345678901",
		"body":        "Pick one",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
