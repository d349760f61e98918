package api

import (
	"net/http"

	"wabridge/internal/domain"
)

func (s *Server) handleQRCode(rw http.ResponseWriter, r *http.Request) {
	if s.session.CurrentState() == domain.StateReady {
		s.writeJSON(rw, http.StatusOK, map[string]any{
			"success": true,
			"ready":   true,
			"message": "Already connected",
		})
		return
	}
	if token, ok := s.session.PairingToken(); ok {
		s.writeJSON(rw, http.StatusOK, map[string]any{
			"success":     true,
			"ready":       false,
			"qrCode":      token.Code,
			"qrCodeImage": token.Image,
		})
		return
	}
	s.fail(rw, http.StatusServiceUnavailable, "Pairing code not available yet, please wait")
}

func (s *Server) handleStatus(rw http.ResponseWriter, r *http.Request) {
	token, hasToken := s.session.PairingToken()
	s.writeJSON(rw, http.StatusOK, map[string]any{
		"success":    true,
		"ready":      s.session.CurrentState() == domain.StateReady,
		"hasQrCode":  hasToken && token.Code != "",
		"hasQrImage": hasToken && token.Image != "",
	})
}

func (s *Server) handleLogout(rw http.ResponseWriter, r *http.Request) {
	if err := s.session.Logout(r.Context()); err != nil {
		s.logger.Error("logout failed", "error", err)
		s.fail(rw, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(rw, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out successfully",
	})
}
