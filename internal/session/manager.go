// Package session owns the live WhatsApp connection: pairing, the
// reconnect loop, inbound event extraction and every outbound send.
package session

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"

	"wabridge/internal/domain"
	"wabridge/internal/metrics"
	"wabridge/internal/resolve"
)

// Publisher receives inbound events extracted from the connection.
type Publisher interface {
	Publish(evt domain.InboundEvent)
}

// Options configures the session manager.
type Options struct {
	StorePath      string        // sqlite credential store path
	ReconnectDelay time.Duration // fixed delay before reinit after a drop
	SendRate       int           // outbound messages per minute
	PrintQR        bool          // also render pairing codes to the terminal
}

// Manager is the single live WhatsApp session. It implements
// domain.Session and resolve.Directory.
type Manager struct {
	opts   Options
	events Publisher
	logger *slog.Logger

	limiter *rate.Limiter
	polls   *pollBook

	mu        sync.RWMutex
	state     domain.SessionState
	token     domain.PairingToken
	hasToken  bool
	client    *whatsmeow.Client
	container *sqlstore.Container
	closed    bool
	reconnect *time.Timer

	runCtx context.Context
}

func New(opts Options, events Publisher, logger *slog.Logger) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	perMinute := opts.SendRate
	if perMinute <= 0 {
		perMinute = 30
	}
	return &Manager{
		opts:    opts,
		events:  events,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
		polls:   newPollBook(256),
		state:   domain.StateNotReady,
	}
}

// Start brings the connection up. It returns once the client is connecting;
// readiness is reported through CurrentState as pairing completes.
func (m *Manager) Start(ctx context.Context) error {
	m.runCtx = ctx
	return m.connect(ctx)
}

func (m *Manager) connect(ctx context.Context) error {
	m.mu.RLock()
	container := m.container
	m.mu.RUnlock()
	if container == nil {
		dbLog := waLog.Stdout("Database", "WARN", false)
		var err error
		container, err = sqlstore.New(ctx, "sqlite3", "file:"+m.opts.StorePath+"?_foreign_keys=on", dbLog)
		if err != nil {
			return fmt.Errorf("open credential store: %w", err)
		}
	}
	device, err := container.GetFirstDevice(ctx)
	if err == sql.ErrNoRows {
		device = container.NewDevice()
	} else if err != nil {
		return fmt.Errorf("load device: %w", err)
	}

	client := whatsmeow.NewClient(device, waLog.Stdout("Client", "WARN", false))
	// Reconnection runs on our own fixed cadence, not the library's.
	client.EnableAutoReconnect = false
	client.AddEventHandler(m.handleEvent)

	m.mu.Lock()
	m.container = container
	m.client = client
	m.mu.Unlock()

	if client.Store.ID == nil {
		qrChan, _ := client.GetQRChannel(ctx)
		if err := client.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		m.setState(domain.StateAwaitingScan)
		go m.consumeQR(qrChan)
		return nil
	}
	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (m *Manager) consumeQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			img := ""
			if png, err := qrcode.Encode(evt.Code, qrcode.Medium, 256); err == nil {
				img = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
			} else {
				m.logger.Warn("failed to render pairing image", "error", err)
			}
			m.mu.Lock()
			m.token = domain.PairingToken{Code: evt.Code, Image: img}
			m.hasToken = true
			m.mu.Unlock()
			if m.opts.PrintQR {
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			}
			m.logger.Info("pairing code generated, scan it with the phone")
		case "success":
			m.logger.Info("pairing successful")
		case "timeout":
			m.logger.Warn("pairing code expired")
			m.setState(domain.StateDisconnected)
			m.scheduleReconnect()
		}
	}
}

func (m *Manager) handleEvent(rawEvt interface{}) {
	ctx := m.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	switch evt := rawEvt.(type) {
	case *events.Connected:
		m.mu.Lock()
		m.state = domain.StateReady
		m.token = domain.PairingToken{}
		m.hasToken = false
		client := m.client
		m.mu.Unlock()
		_ = client.SendPresence(ctx, types.PresenceAvailable)
		m.logger.Info("session ready")

	case *events.Disconnected:
		m.logger.Warn("session disconnected, scheduling reconnect", "delay", m.opts.ReconnectDelay)
		m.setState(domain.StateDisconnected)
		m.scheduleReconnect()

	case *events.LoggedOut:
		m.logger.Warn("logged out by the platform", "reason", evt.Reason)
		m.setState(domain.StateDisconnected)
		m.scheduleReconnect()

	case *events.Message:
		m.handleMessage(ctx, evt)
	}
}

func (m *Manager) handleMessage(ctx context.Context, evt *events.Message) {
	if evt.Info.IsFromMe {
		return
	}
	if pollUpdate := evt.Message.GetPollUpdateMessage(); pollUpdate != nil {
		m.handlePollUpdate(ctx, evt, pollUpdate)
		return
	}

	body := evt.Message.GetConversation()
	if body == "" {
		if ext := evt.Message.GetExtendedTextMessage(); ext != nil {
			body = ext.GetText()
		}
	}
	if body == "" {
		return
	}

	m.events.Publish(domain.InboundEvent{
		Kind:       domain.EventText,
		MessageID:  evt.Info.ID,
		RawSender:  evt.Info.Sender.ToNonAD().String(),
		ChatJID:    evt.Info.Chat.ToNonAD().String(),
		Peer:       m.peerJID(ctx, evt.Info.Sender),
		Author:     m.authorJID(evt.Info),
		SenderName: evt.Info.PushName,
		Body:       body,
		Timestamp:  evt.Info.Timestamp,
	})
}

func (m *Manager) handlePollUpdate(ctx context.Context, evt *events.Message, pollUpdate *waE2E.PollUpdateMessage) {
	pollKey := pollUpdate.GetPollCreationMessageKey()
	if pollKey == nil {
		return
	}
	options, known := m.polls.Lookup(pollKey.GetID())
	if !known {
		m.logger.Warn("vote for unknown poll, dropping", "pollId", pollKey.GetID())
		return
	}

	decrypted, err := m.client.DecryptPollVote(ctx, evt)
	if err != nil {
		m.logger.Error("failed to decrypt poll vote", "error", err)
		return
	}

	// Votes carry SHA256 hashes of the chosen option names.
	var selected []string
	for _, hashBytes := range decrypted.GetSelectedOptions() {
		for _, opt := range options {
			optHash := sha256.Sum256([]byte(opt))
			if string(hashBytes) == string(optHash[:]) {
				selected = append(selected, opt)
				break
			}
		}
	}
	if len(selected) == 0 {
		return
	}

	m.events.Publish(domain.InboundEvent{
		Kind:       domain.EventPollVote,
		MessageID:  evt.Info.ID,
		RawSender:  evt.Info.Sender.ToNonAD().String(),
		ChatJID:    evt.Info.Chat.ToNonAD().String(),
		Peer:       m.peerJID(ctx, evt.Info.Sender),
		SenderName: evt.Info.PushName,
		Selected:   selected,
		Timestamp:  evt.Info.Timestamp,
	})
}

// peerJID maps a hidden-user (lid) sender back to its phone-number JID
// through the credential store, empty when no mapping exists.
func (m *Manager) peerJID(ctx context.Context, sender types.JID) string {
	if sender.Server != types.HiddenUserServer {
		return ""
	}
	m.mu.RLock()
	container := m.container
	m.mu.RUnlock()
	if container == nil || container.LIDMap == nil {
		return ""
	}
	pn, err := container.LIDMap.GetPNForLID(ctx, sender.ToNonAD())
	if err != nil || pn.IsEmpty() {
		return ""
	}
	return pn.User + "@" + types.DefaultUserServer
}

func (m *Manager) authorJID(info types.MessageInfo) string {
	if info.Chat.Server != types.GroupServer {
		return ""
	}
	return info.Sender.ToNonAD().String()
}

func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.reconnect != nil {
		return
	}
	m.reconnect = time.AfterFunc(m.opts.ReconnectDelay, m.reinit)
}

func (m *Manager) reinit() {
	m.mu.Lock()
	m.reconnect = nil
	closed := m.closed
	client := m.client
	m.mu.Unlock()
	if closed {
		return
	}
	metrics.Reconnects.Inc()
	if client != nil {
		client.Disconnect()
	}

	ctx := m.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := m.connect(ctx); err != nil {
		m.logger.Error("reconnect failed, will retry", "error", err)
		m.scheduleReconnect()
	}
}

// Close tears the connection down for good. The manager cannot be restarted.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	client := m.client
	m.state = domain.StateNotReady
	m.mu.Unlock()
	if client != nil {
		client.Disconnect()
	}
}

func (m *Manager) setState(s domain.SessionState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) CurrentState() domain.SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) PairingToken() (domain.PairingToken, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.hasToken
}

// --- resolve.Directory ---

// ContactPhone resolves a raw JID to digits via the lid-to-number mapping in
// the credential store. Plain user JIDs already carry the number.
func (m *Manager) ContactPhone(ctx context.Context, rawJID string) string {
	jid, err := types.ParseJID(rawJID)
	if err != nil {
		return ""
	}
	if jid.Server == types.HiddenUserServer {
		m.mu.RLock()
		container := m.container
		m.mu.RUnlock()
		if container == nil || container.LIDMap == nil {
			return ""
		}
		pn, err := container.LIDMap.GetPNForLID(ctx, jid.ToNonAD())
		if err != nil || pn.IsEmpty() {
			return ""
		}
		return pn.User
	}
	if jid.Server == types.DefaultUserServer {
		return jid.User
	}
	return ""
}

// LookupPhone asks the platform whether the digits in rawJID belong to a
// registered account and returns that account's number.
func (m *Manager) LookupPhone(ctx context.Context, rawJID string) string {
	digits := resolve.Digits(rawJID)
	if len(digits) < 5 {
		return ""
	}
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()
	if client == nil {
		return ""
	}
	infos, err := client.IsOnWhatsApp(ctx, []string{"+" + digits})
	if err != nil || len(infos) == 0 || !infos[0].IsIn {
		return ""
	}
	return infos[0].JID.User
}

// --- domain.Session sends ---

func (m *Manager) IsRegistered(ctx context.Context, phone string) (bool, error) {
	client, err := m.ready()
	if err != nil {
		return false, err
	}
	digits := resolve.Digits(phone)
	infos, err := client.IsOnWhatsApp(ctx, []string{"+" + digits})
	if err != nil {
		return false, fmt.Errorf("registration check: %w", err)
	}
	return len(infos) > 0 && infos[0].IsIn, nil
}

func (m *Manager) SendText(ctx context.Context, phone string, body string) (domain.SendResult, error) {
	to, err := m.toJID(phone)
	if err != nil {
		return domain.SendResult{}, err
	}
	return m.send(ctx, to, &waE2E.Message{Conversation: proto.String(body)})
}

func (m *Manager) SendMedia(ctx context.Context, phone string, media domain.Media) (domain.SendResult, error) {
	to, err := m.toJID(phone)
	if err != nil {
		return domain.SendResult{}, err
	}
	client, err := m.ready()
	if err != nil {
		return domain.SendResult{}, err
	}

	mediaType := whatsmeow.MediaImage
	if media.Kind == domain.MediaDocument {
		mediaType = whatsmeow.MediaDocument
	}
	up, err := client.Upload(ctx, media.Data, mediaType)
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("upload media: %w", err)
	}

	msg := &waE2E.Message{}
	switch media.Kind {
	case domain.MediaDocument:
		msg.DocumentMessage = &waE2E.DocumentMessage{
			Title:         proto.String(media.Filename),
			Caption:       proto.String(media.Caption),
			Mimetype:      proto.String(media.Mimetype),
			URL:           &up.URL,
			DirectPath:    &up.DirectPath,
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    &up.FileLength,
		}
	default:
		msg.ImageMessage = &waE2E.ImageMessage{
			Caption:       proto.String(media.Caption),
			Mimetype:      proto.String(media.Mimetype),
			URL:           &up.URL,
			DirectPath:    &up.DirectPath,
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    &up.FileLength,
		}
	}
	return m.send(ctx, to, msg)
}

func (m *Manager) SendPoll(ctx context.Context, phone string, question string, options []string, multi bool) (domain.SendResult, error) {
	to, err := m.toJID(phone)
	if err != nil {
		return domain.SendResult{}, err
	}
	selectable := 1
	if multi {
		selectable = len(options)
	}
	pollOptions := make([]*waE2E.PollCreationMessage_Option, 0, len(options))
	for _, opt := range options {
		pollOptions = append(pollOptions, &waE2E.PollCreationMessage_Option{
			OptionName: proto.String(opt),
		})
	}
	msg := &waE2E.Message{
		PollCreationMessage: &waE2E.PollCreationMessage{
			Name:                   proto.String(question),
			Options:                pollOptions,
			SelectableOptionsCount: proto.Uint32(uint32(selectable)),
		},
	}
	res, err := m.send(ctx, to, msg)
	if err != nil {
		return domain.SendResult{}, err
	}
	m.polls.Remember(res.MessageID, options)
	return res, nil
}

func (m *Manager) SendButtons(ctx context.Context, phone string, body, title, footer string, buttons []domain.Button) (domain.SendResult, error) {
	to, err := m.toJID(phone)
	if err != nil {
		return domain.SendResult{}, err
	}
	wire := make([]*waE2E.ButtonsMessage_Button, 0, len(buttons))
	for _, b := range buttons {
		wire = append(wire, &waE2E.ButtonsMessage_Button{
			ButtonID:   proto.String(b.ID),
			ButtonText: &waE2E.ButtonsMessage_Button_ButtonText{DisplayText: proto.String(b.Title)},
			Type:       waE2E.ButtonsMessage_Button_RESPONSE.Enum(),
		})
	}
	msg := &waE2E.Message{
		ButtonsMessage: &waE2E.ButtonsMessage{
			ContentText: proto.String(body),
			Header:      &waE2E.ButtonsMessage_Text{Text: title},
			FooterText:  proto.String(footer),
			HeaderType:  waE2E.ButtonsMessage_TEXT.Enum(),
			Buttons:     wire,
		},
	}
	return m.send(ctx, to, msg)
}

func (m *Manager) Reply(ctx context.Context, chatJID string, body string) error {
	jid, err := types.ParseJID(chatJID)
	if err != nil {
		return fmt.Errorf("parse chat jid: %w", err)
	}
	_, err = m.send(ctx, jid, &waE2E.Message{Conversation: proto.String(body)})
	return err
}

// Logout ends the session and starts over with a fresh device, so the next
// state is awaiting_scan with a new pairing code. It works from any state:
// whatever client exists is torn down and reinitialization runs on the
// reconnect cadence.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	client := m.client
	m.state = domain.StateNotReady
	m.token = domain.PairingToken{}
	m.hasToken = false
	m.mu.Unlock()
	if client != nil {
		if err := client.Logout(ctx); err != nil {
			m.logger.Warn("logout returned an error, reinitializing anyway", "error", err)
		}
		client.Disconnect()
	}
	m.scheduleReconnect()
	return nil
}

// --- plumbing ---

func (m *Manager) ready() (*whatsmeow.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != domain.StateReady || m.client == nil {
		return nil, domain.ErrNotReady
	}
	return m.client, nil
}

func (m *Manager) toJID(phone string) (types.JID, error) {
	digits := resolve.Digits(phone)
	if !resolve.IsCanonical(digits) {
		return types.EmptyJID, &domain.ValidationError{Field: "phoneNumber", Reason: "must be 10-15 digits"}
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}

func (m *Manager) send(ctx context.Context, to types.JID, msg *waE2E.Message) (domain.SendResult, error) {
	if _, err := m.ready(); err != nil {
		return domain.SendResult{}, err
	}
	fn := WithRetry(3, 400*time.Millisecond, WithRateLimit(m.limiter, m.rawSend))
	start := time.Now()
	res, err := fn(ctx, to, msg)
	if err != nil {
		metrics.SendFailures.Inc()
		return domain.SendResult{}, err
	}
	metrics.MessagesSent.Inc()
	metrics.SendLatency.Observe(time.Since(start).Seconds())
	return res, nil
}

func (m *Manager) rawSend(ctx context.Context, to types.JID, msg *waE2E.Message) (domain.SendResult, error) {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()
	if client == nil {
		return domain.SendResult{}, domain.ErrNotReady
	}
	resp, err := client.SendMessage(ctx, to, msg)
	if err != nil {
		return domain.SendResult{}, err
	}
	return domain.SendResult{MessageID: resp.ID, Timestamp: resp.Timestamp}, nil
}
