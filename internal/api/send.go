package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"wabridge/internal/domain"
	"wabridge/internal/resolve"
)

type sendMessageRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

type sendPollRequest struct {
	PhoneNumber          string   `json:"phoneNumber"`
	Question             string   `json:"question"`
	Options              []string `json:"options"`
	AllowMultipleAnswers bool     `json:"allowMultipleAnswers"`
}

type sendButtonsRequest struct {
	PhoneNumber string          `json:"phoneNumber"`
	Body        string          `json:"body"`
	Title       string          `json:"title"`
	Footer      string          `json:"footer"`
	Buttons     []domain.Button `json:"buttons"`
}

var errBodyTooLarge = errors.New("request body too large")

func decodeJSON(r *http.Request, v any) error {
	return decodeJSONLimit(r, v, maxBodySize)
}

func decodeJSONLimit(r *http.Request, v any, limit int64) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return err
	}
	if int64(len(body)) > limit {
		return errBodyTooLarge
	}
	return json.Unmarshal(body, v)
}

// checkNumber validates and canonicalizes the destination. It writes the
// error response itself and returns ok=false when the request must stop.
func (s *Server) checkNumber(rw http.ResponseWriter, r *http.Request, phoneNumber string) (formatted string, ok bool) {
	formatted = resolve.FormatPhoneNumber(phoneNumber)
	if formatted == "" {
		s.fail(rw, http.StatusBadRequest, "Invalid phone number format")
		return "", false
	}
	registered, err := s.session.IsRegistered(r.Context(), resolve.UserPart(formatted))
	if err != nil {
		s.fail(rw, http.StatusInternalServerError, err.Error())
		return "", false
	}
	if !registered {
		s.fail(rw, http.StatusBadRequest, "Phone number is not registered on WhatsApp")
		return "", false
	}
	return formatted, true
}

func (s *Server) sentResponse(rw http.ResponseWriter, res domain.SendResult, formatted string) {
	s.writeJSON(rw, http.StatusOK, map[string]any{
		"success":     true,
		"messageId":   res.MessageID,
		"timestamp":   res.Timestamp.Unix(),
		"phoneNumber": formatted,
	})
}

func (s *Server) handleSendMessage(rw http.ResponseWriter, r *http.Request) {
	if !s.requireReady(rw) {
		return
	}
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(rw, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.PhoneNumber == "" || req.Message == "" {
		s.fail(rw, http.StatusBadRequest, "phoneNumber and message are required")
		return
	}
	formatted, ok := s.checkNumber(rw, r, req.PhoneNumber)
	if !ok {
		return
	}

	res, err := s.session.SendText(r.Context(), resolve.UserPart(formatted), req.Message)
	if err != nil {
		s.logger.Error("send failed", "phone", formatted, "error", err)
		s.fail(rw, http.StatusInternalServerError, err.Error())
		return
	}
	s.sentResponse(rw, res, formatted)
}

func (s *Server) handleSendPoll(rw http.ResponseWriter, r *http.Request) {
	if !s.requireReady(rw) {
		return
	}
	var req sendPollRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(rw, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.PhoneNumber == "" || req.Question == "" {
		s.fail(rw, http.StatusBadRequest, "phoneNumber and question are required")
		return
	}
	if len(req.Options) < 2 {
		s.fail(rw, http.StatusBadRequest, "options must contain at least 2 entries")
		return
	}
	formatted, ok := s.checkNumber(rw, r, req.PhoneNumber)
	if !ok {
		return
	}

	res, err := s.session.SendPoll(r.Context(), resolve.UserPart(formatted), req.Question, req.Options, req.AllowMultipleAnswers)
	if err != nil {
		s.logger.Error("poll send failed", "phone", formatted, "error", err)
		s.fail(rw, http.StatusInternalServerError, err.Error())
		return
	}
	s.sentResponse(rw, res, formatted)
}

func (s *Server) handleSendButtons(rw http.ResponseWriter, r *http.Request) {
	if !s.requireReady(rw) {
		return
	}
	var req sendButtonsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(rw, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.PhoneNumber == "" || req.Body == "" {
		s.fail(rw, http.StatusBadRequest, "phoneNumber and body are required")
		return
	}
	if len(req.Buttons) == 0 {
		s.fail(rw, http.StatusBadRequest, "buttons array is required")
		return
	}
	formatted, ok := s.checkNumber(rw, r, req.PhoneNumber)
	if !ok {
		return
	}

	res, err := s.session.SendButtons(r.Context(), resolve.UserPart(formatted), req.Body, req.Title, req.Footer, req.Buttons)
	if err != nil {
		s.logger.Error("buttons send failed", "phone", formatted, "error", err)
		s.fail(rw, http.StatusInternalServerError, err.Error())
		return
	}
	s.sentResponse(rw, res, formatted)
}
