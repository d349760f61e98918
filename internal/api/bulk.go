package api

import (
	"math/rand"
	"net/http"
	"time"

	"wabridge/internal/domain"
	"wabridge/internal/resolve"
)

type sendBulkRequest struct {
	Guests          []domain.Guest `json:"guests"`
	MessageTemplate string         `json:"messageTemplate"`
	Delay           *int           `json:"delay"` // milliseconds, overrides the configured default
}

type bulkSuccess struct {
	Guest       string `json:"guest"`
	PhoneNumber string `json:"phoneNumber"`
	MessageID   string `json:"messageId"`
	Success     bool   `json:"success"`
}

type bulkFailure struct {
	Guest string `json:"guest"`
	Error string `json:"error"`
}

// handleSendBulk walks the guest list strictly in order, one send at a
// time, pausing between sends so the upstream rate limiter stays calm.
// A guest's failure is recorded and the batch moves on.
func (s *Server) handleSendBulk(rw http.ResponseWriter, r *http.Request) {
	if !s.requireReady(rw) {
		return
	}
	var req sendBulkRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(rw, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Guests) == 0 {
		s.fail(rw, http.StatusBadRequest, "guests array is required")
		return
	}
	if req.MessageTemplate == "" {
		s.fail(rw, http.StatusBadRequest, "messageTemplate is required")
		return
	}

	delay := s.opts.BulkDelay
	if req.Delay != nil && *req.Delay >= 0 {
		delay = time.Duration(*req.Delay) * time.Millisecond
	}

	results := []bulkSuccess{}
	failures := []bulkFailure{}

	for i, guest := range req.Guests {
		rawPhone := guest.RawPhone()
		if rawPhone == "" {
			failures = append(failures, bulkFailure{Guest: guest.Label(i), Error: "Phone number is missing"})
			continue
		}

		formatted := resolve.FormatPhoneNumber(rawPhone)
		if formatted == "" {
			failures = append(failures, bulkFailure{Guest: guest.Label(i), Error: "Invalid phone number format"})
			continue
		}

		registered, err := s.session.IsRegistered(r.Context(), resolve.UserPart(formatted))
		if err != nil {
			failures = append(failures, bulkFailure{Guest: guest.Label(i), Error: err.Error()})
			continue
		}
		if !registered {
			failures = append(failures, bulkFailure{Guest: guest.Label(i), Error: "Phone number not registered on WhatsApp"})
			continue
		}

		res, err := s.session.SendText(r.Context(), resolve.UserPart(formatted), guest.Personalize(req.MessageTemplate))
		if err != nil {
			s.logger.Error("bulk send failed", "guest", guest.Label(i), "error", err)
			failures = append(failures, bulkFailure{Guest: guest.Label(i), Error: err.Error()})
			continue
		}

		results = append(results, bulkSuccess{
			Guest:       guest.Label(i),
			PhoneNumber: formatted,
			MessageID:   res.MessageID,
			Success:     true,
		})

		if i < len(req.Guests)-1 {
			time.Sleep(s.bulkPause(delay))
		}
	}

	s.writeJSON(rw, http.StatusOK, map[string]any{
		"success": true,
		"total":   len(req.Guests),
		"sent":    len(results),
		"failed":  len(failures),
		"results": results,
		"errors":  failures,
	})
}

// bulkPause adds a random jitter on top of the base delay so the cadence
// does not look mechanical.
func (s *Server) bulkPause(base time.Duration) time.Duration {
	if s.opts.BulkJitter <= 0 {
		return base
	}
	return base + time.Duration(rand.Int63n(int64(s.opts.BulkJitter)))
}
