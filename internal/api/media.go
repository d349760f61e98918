package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"wabridge/internal/domain"
	"wabridge/internal/metrics"
	"wabridge/internal/resolve"
)

type sendMediaRequest struct {
	PhoneNumber   string `json:"phoneNumber"`
	Message       string `json:"message"`
	MediaURL      string `json:"mediaUrl"`
	MediaBase64   string `json:"mediaBase64"`
	MediaMimetype string `json:"mediaMimetype"`
	MediaFilename string `json:"mediaFilename"`
}

func (s *Server) handleSendMedia(rw http.ResponseWriter, r *http.Request) {
	if !s.requireReady(rw) {
		return
	}

	var phoneNumber, message string
	var staged *TempMedia
	var err error

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(s.media.maxBytes); err != nil {
			s.fail(rw, http.StatusBadRequest, "invalid multipart form")
			return
		}
		phoneNumber = r.FormValue("phoneNumber")
		message = r.FormValue("message")
		if file, header, ferr := r.FormFile("media"); ferr == nil {
			defer file.Close()
			staged, err = s.media.FromUpload(file, header)
		} else if mediaURL := r.FormValue("mediaUrl"); mediaURL != "" {
			staged, err = s.media.FromURL(r.Context(), mediaURL)
		}
	} else {
		var req sendMediaRequest
		// Base64 inflates the payload by a third on top of the media cap,
		// plus the rest of the envelope.
		limit := s.media.maxBytes*4/3 + maxBodySize
		if derr := decodeJSONLimit(r, &req, limit); derr != nil {
			if errors.Is(derr, errBodyTooLarge) {
				s.fail(rw, http.StatusBadRequest, fmt.Sprintf("media exceeds the %d byte limit", s.media.maxBytes))
				return
			}
			s.fail(rw, http.StatusBadRequest, "invalid JSON")
			return
		}
		phoneNumber = req.PhoneNumber
		message = req.Message
		if req.MediaURL != "" && req.MediaBase64 != "" {
			s.fail(rw, http.StatusBadRequest, "Provide either mediaUrl or mediaBase64, not both")
			return
		}
		switch {
		case req.MediaURL != "":
			staged, err = s.media.FromURL(r.Context(), req.MediaURL)
		case req.MediaBase64 != "":
			staged, err = s.media.FromBase64(req.MediaBase64, req.MediaMimetype, req.MediaFilename)
		}
	}

	if phoneNumber == "" {
		if staged != nil {
			staged.Discard()
		}
		s.fail(rw, http.StatusBadRequest, "phoneNumber is required")
		return
	}
	if err != nil {
		s.fail(rw, http.StatusBadRequest, err.Error())
		return
	}
	if staged == nil {
		s.fail(rw, http.StatusBadRequest, "Either file upload, mediaUrl or mediaBase64 is required")
		return
	}

	formatted, ok := s.checkNumber(rw, r, phoneNumber)
	if !ok {
		staged.Discard()
		return
	}

	kind := domain.MediaDocument
	if strings.HasPrefix(staged.Mimetype, "image/") {
		kind = domain.MediaImage
	}
	media := domain.Media{
		Data:     staged.Data,
		Mimetype: staged.Mimetype,
		Filename: staged.Filename,
		Caption:  message,
		Kind:     kind,
	}

	res, warning, err := s.deliverMedia(r.Context(), resolve.UserPart(formatted), media)
	if err != nil {
		staged.Discard()
		s.logger.Error("media send failed", "phone", formatted, "error", err)
		s.fail(rw, http.StatusInternalServerError, err.Error())
		return
	}
	staged.ScheduleCleanup()

	resp := map[string]any{
		"success":     true,
		"messageId":   res.MessageID,
		"timestamp":   res.Timestamp.Unix(),
		"phoneNumber": formatted,
	}
	if warning != "" {
		resp["warning"] = warning
	}
	s.writeJSON(rw, http.StatusOK, resp)
}

type sendStrategy struct {
	name string
	run  func(ctx context.Context) (domain.SendResult, error)
}

// deliverMedia walks an ordered list of send strategies until one succeeds.
// The returned warning is set only when the message was demoted to plain
// text; succeeding via any media strategy is a clean success.
func (s *Server) deliverMedia(ctx context.Context, phone string, m domain.Media) (domain.SendResult, string, error) {
	strategies := []sendStrategy{
		{"media_with_caption", func(ctx context.Context) (domain.SendResult, error) {
			return s.session.SendMedia(ctx, phone, m)
		}},
	}
	if m.Kind == domain.MediaImage && m.Caption != "" {
		captionless := m
		captionless.Caption = ""
		strategies = append(strategies, sendStrategy{"image_without_caption", func(ctx context.Context) (domain.SendResult, error) {
			return s.session.SendMedia(ctx, phone, captionless)
		}})
	}
	if m.Kind != domain.MediaDocument {
		asDocument := m
		asDocument.Kind = domain.MediaDocument
		asDocument.Caption = ""
		strategies = append(strategies, sendStrategy{"as_document", func(ctx context.Context) (domain.SendResult, error) {
			return s.session.SendMedia(ctx, phone, asDocument)
		}})
	}

	var lastErr error
	for i, strat := range strategies {
		res, err := strat.run(ctx)
		if err == nil {
			if i > 0 {
				metrics.MediaFallbacks.Inc()
				s.logger.Warn("media delivered via fallback strategy", "strategy", strat.name, "phone", phone)
			}
			return res, "", nil
		}
		lastErr = err
		s.logger.Warn("media send attempt failed", "strategy", strat.name, "phone", phone, "error", err)
	}

	if m.Caption != "" {
		res, err := s.session.SendText(ctx, phone, m.Caption)
		if err == nil {
			metrics.MediaFallbacks.Inc()
			s.logger.Warn("media undeliverable, caption sent as plain text", "phone", phone)
			return res, "Media could not be sent, caption delivered as text instead", nil
		}
		lastErr = err
	}
	return domain.SendResult{}, "", lastErr
}
