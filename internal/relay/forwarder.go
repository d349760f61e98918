package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wabridge/internal/domain"
	"wabridge/internal/metrics"
)

const maxResponseBytes = 1 << 20

// envelope is the JSON-RPC-shaped body posted to the webhook.
type envelope struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  params `json:"params"`
}

type params struct {
	PhoneNumber  string `json:"phoneNumber"`
	Message      string `json:"message"`
	MessageID    string `json:"messageId"`
	Timestamp    int64  `json:"timestamp"`
	SenderName   string `json:"senderName,omitempty"`
	IsPollVote   bool   `json:"isPollVote,omitempty"`
	ResponseType string `json:"responseType,omitempty"`
}

// Forwarder posts resolved inbound events to the configured webhook and
// relays any auto_reply back to the originating chat. Every failure in here
// is logged and swallowed: the session must never see an error from this path.
type Forwarder struct {
	url     string
	client  *http.Client
	session domain.Session
	logger  *slog.Logger
}

func NewForwarder(rawURL string, timeout time.Duration, session domain.Session, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		url:     NormalizeWebhookURL(rawURL),
		client:  &http.Client{Timeout: timeout},
		session: session,
		logger:  logger,
	}
}

// NormalizeWebhookURL appends the plain-HTTP sub-route to the configured
// endpoint. The receiving side exposes its RPC route and a /http variant that
// accepts this bridge's envelopes; posting to the base route would be
// rejected, so the suffix is added automatically when missing.
func NormalizeWebhookURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if strings.HasSuffix(strings.TrimRight(u.Path, "/"), "/http") {
		return raw
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/http"
	return u.String()
}

// Forward delivers one resolved event. Unclassified poll votes carry no
// response type and trigger no auto-reply lookup.
func (f *Forwarder) Forward(ctx context.Context, evt domain.InboundEvent) {
	p := params{
		PhoneNumber: evt.Phone,
		MessageID:   evt.MessageID,
		Timestamp:   evt.Timestamp.Unix(),
		SenderName:  evt.SenderName,
	}

	lookupReply := true
	switch evt.Kind {
	case domain.EventPollVote:
		p.IsPollVote = true
		p.Message = strings.Join(evt.Selected, ", ")
		class := ClassifyVote(evt.Selected)
		if class == domain.VoteUnclassified {
			lookupReply = false
		} else {
			p.ResponseType = string(class)
		}
	default:
		p.Message = evt.Body
	}

	body, err := f.post(ctx, envelope{JSONRPC: "2.0", Method: "call", Params: p})
	if err != nil {
		metrics.WebhookFailures.Inc()
		f.logger.Error("webhook relay failed", "err", err, "phone", evt.Phone, "unresolved", evt.Unresolved)
		return
	}
	metrics.EventsForwarded.Inc()

	if !lookupReply {
		return
	}
	reply, ok := ExtractAutoReply(body)
	if !ok || reply == "" {
		return
	}
	if err := f.session.Reply(ctx, evt.ChatJID, reply); err != nil {
		// Reply delivery is best-effort, never retried.
		f.logger.Error("auto-reply send failed", "err", err, "chat", evt.ChatJID)
	}
}

func (f *Forwarder) post(ctx context.Context, env envelope) ([]byte, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read webhook response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("webhook status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// ExtractAutoReply searches a webhook response for an auto_reply string at
// the nesting depths the receiving side is known to produce: top-level,
// under result, and under result.result.
func ExtractAutoReply(body []byte) (string, bool) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return "", false
	}
	for depth := 0; depth < 3; depth++ {
		if s, ok := m["auto_reply"].(string); ok {
			return s, true
		}
		next, ok := m["result"].(map[string]any)
		if !ok {
			return "", false
		}
		m = next
	}
	return "", false
}
