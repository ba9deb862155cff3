// Package telegram implements the Telegram channel for InfraPilot using the
// Telegram Bot API directly via HTTP — no external dependencies.
//
// Features:
//   - Long polling for updates (getUpdates)
//   - Send/receive text with HTML formatting
//   - Typing indicators (sendChatAction)
//   - Mention detection (@botname entities plus a configurable trigger regex)
//   - Group and DM support
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jholhewres/infrapilot/pkg/infrapilot/channels"
)

// Config holds Telegram channel configuration.
type Config struct {
	// Token is the Telegram Bot API token (from @BotFather).
	Token string `yaml:"token"`

	// TriggerPattern is an optional regular expression that, when matched
	// against a message, counts as a mention (e.g. "aivis\\s?bot").
	TriggerPattern string `yaml:"trigger_pattern"`

	// SendTyping sends "typing..." indicators while processing.
	SendTyping bool `yaml:"send_typing"`

	// PollTimeoutSeconds is the long-poll timeout for getUpdates.
	PollTimeoutSeconds int `yaml:"poll_timeout_seconds"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SendTyping:         true,
		PollTimeoutSeconds: 30,
	}
}

// Telegram implements channels.Channel and channels.PresenceChannel.
type Telegram struct {
	cfg    Config
	logger *slog.Logger
	client *http.Client

	// baseURL is the Telegram Bot API base URL (https://api.telegram.org/bot<token>).
	baseURL string

	// botUsername is filled from getMe and used for mention detection.
	botUsername string

	// triggerRe is the compiled TriggerPattern, or nil.
	triggerRe *regexp.Regexp

	// messages is the channel for incoming messages forwarded to the assistant.
	messages chan *channels.IncomingMessage

	// connected tracks connection state.
	connected atomic.Bool

	// lastMsg tracks the last message timestamp for health.
	lastMsg atomic.Value // time.Time

	// errorCount tracks consecutive errors.
	errorCount atomic.Int64

	// offset is the last processed update ID + 1.
	offset int64

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Telegram channel instance.
func New(cfg Config, logger *slog.Logger) *Telegram {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollTimeoutSeconds <= 0 {
		cfg.PollTimeoutSeconds = 30
	}
	t := &Telegram{
		cfg:      cfg,
		logger:   logger.With("component", "telegram"),
		client:   &http.Client{Timeout: 60 * time.Second},
		baseURL:  "https://api.telegram.org/bot" + cfg.Token,
		messages: make(chan *channels.IncomingMessage, 256),
	}
	if cfg.TriggerPattern != "" {
		re, err := regexp.Compile("(?i)" + cfg.TriggerPattern)
		if err != nil {
			t.logger.Warn("invalid trigger pattern, mention-by-regex disabled",
				"pattern", cfg.TriggerPattern, "error", err)
		} else {
			t.triggerRe = re
		}
	}
	return t
}

// ---------- Channel Interface ----------

// Name returns "telegram".
func (t *Telegram) Name() string { return "telegram" }

// Connect starts the long-polling loop for receiving updates.
func (t *Telegram) Connect(ctx context.Context) error {
	if t.cfg.Token == "" {
		return fmt.Errorf("telegram: bot token is required")
	}

	// Prevent double-connect goroutine leak.
	if t.connected.Load() {
		return nil
	}

	t.ctx, t.cancel = context.WithCancel(ctx)

	// Verify token by calling getMe.
	me, err := t.getMe()
	if err != nil {
		return fmt.Errorf("%w: telegram token check: %v", channels.ErrConnectionFailed, err)
	}
	t.botUsername = me.Username
	t.logger.Info("telegram: connected", "bot", me.Username, "id", me.ID)
	t.connected.Store(true)

	go t.pollLoop()

	return nil
}

// Disconnect stops the polling loop.
func (t *Telegram) Disconnect() error {
	if t.cancel != nil {
		t.cancel()
	}
	t.connected.Store(false)
	t.logger.Info("telegram: disconnected")
	return nil
}

// Send sends a text message to the specified chat using HTML parse mode.
func (t *Telegram) Send(ctx context.Context, to string, message *channels.OutgoingMessage) error {
	if !t.connected.Load() {
		return channels.ErrChannelDisconnected
	}
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat ID %q: %w", to, err)
	}

	payload := map[string]any{
		"chat_id":    chatID,
		"text":       message.Content,
		"parse_mode": "HTML",
	}
	if message.ReplyTo != "" {
		if msgID, e := strconv.ParseInt(message.ReplyTo, 10, 64); e == nil {
			payload["reply_parameters"] = map[string]any{"message_id": msgID}
		}
	}

	_, err = t.apiCall("sendMessage", payload)
	return err
}

// Receive returns the incoming messages channel.
func (t *Telegram) Receive() <-chan *channels.IncomingMessage {
	return t.messages
}

// IsConnected returns true if the bot is connected.
func (t *Telegram) IsConnected() bool { return t.connected.Load() }

// Health returns the channel health status.
func (t *Telegram) Health() channels.HealthStatus {
	var lastAt time.Time
	if v := t.lastMsg.Load(); v != nil {
		lastAt = v.(time.Time)
	}
	return channels.HealthStatus{
		Connected:     t.connected.Load(),
		LastMessageAt: lastAt,
		ErrorCount:    int(t.errorCount.Load()),
	}
}

// ---------- PresenceChannel Interface ----------

// SendTyping sends a "typing..." chat action.
func (t *Telegram) SendTyping(ctx context.Context, to string) error {
	if !t.connected.Load() || !t.cfg.SendTyping {
		return nil
	}
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return nil // ignore invalid chat IDs
	}
	_, err = t.apiCall("sendChatAction", map[string]any{
		"chat_id": chatID,
		"action":  "typing",
	})
	return err
}

// ---------- Internal Methods ----------

// pollLoop runs the getUpdates long-polling loop.
func (t *Telegram) pollLoop() {
	t.logger.Info("telegram: polling started")
	backoff := time.Second

	for {
		select {
		case <-t.ctx.Done():
			t.logger.Info("telegram: polling stopped")
			return
		default:
		}

		updates, err := t.getUpdates(t.offset, 100, t.cfg.PollTimeoutSeconds)
		if err != nil {
			t.errorCount.Add(1)
			t.logger.Warn("telegram: getUpdates error", "error", err, "backoff", backoff)
			select {
			case <-t.ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}

		backoff = time.Second
		t.errorCount.Store(0)

		for _, u := range updates {
			if u.UpdateID >= t.offset {
				t.offset = u.UpdateID + 1
			}
			t.processUpdate(u)
		}
	}
}

// processUpdate converts a Telegram update into an IncomingMessage.
func (t *Telegram) processUpdate(u tgUpdate) {
	msg := u.Message
	if msg == nil {
		if u.EditedMessage != nil {
			msg = u.EditedMessage // treat edits as new messages
		} else {
			return
		}
	}
	if msg.Text == "" {
		return
	}

	chatIDStr := strconv.FormatInt(msg.Chat.ID, 10)
	isGroup := msg.Chat.Type == "group" || msg.Chat.Type == "supergroup"

	from := ""
	fromName := ""
	username := ""
	if msg.From != nil {
		if msg.From.IsBot {
			return
		}
		from = strconv.FormatInt(msg.From.ID, 10)
		fromName = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
		username = msg.From.Username
		if fromName == "" {
			fromName = username
		}
	}

	incoming := &channels.IncomingMessage{
		ID:        strconv.FormatInt(int64(msg.MessageID), 10),
		Channel:   "telegram",
		From:      from,
		FromName:  fromName,
		Username:  username,
		ChatID:    chatIDStr,
		IsGroup:   isGroup,
		Content:   msg.Text,
		Mentioned: t.isMention(msg),
		Timestamp: time.Unix(int64(msg.Date), 0),
	}

	t.lastMsg.Store(time.Now())

	select {
	case t.messages <- incoming:
	default:
		t.logger.Warn("telegram: message buffer full, dropping message", "msg_id", incoming.ID)
	}
}

// isMention reports whether a message mentions the bot, either through a
// @botname mention entity or the configured trigger pattern.
func (t *Telegram) isMention(msg *tgMessage) bool {
	if t.botUsername != "" {
		handle := "@" + t.botUsername
		for _, e := range msg.Entities {
			if e.Type != "mention" {
				continue
			}
			if e.Offset < 0 || e.Offset+e.Length > len([]rune(msg.Text)) {
				continue
			}
			mention := string([]rune(msg.Text)[e.Offset : e.Offset+e.Length])
			if strings.EqualFold(mention, handle) {
				return true
			}
		}
	}
	if t.triggerRe != nil && t.triggerRe.MatchString(msg.Text) {
		return true
	}
	return false
}

// ---------- Telegram Bot API Types ----------

type tgUpdate struct {
	UpdateID      int64      `json:"update_id"`
	Message       *tgMessage `json:"message"`
	EditedMessage *tgMessage `json:"edited_message"`
}

type tgMessage struct {
	MessageID int        `json:"message_id"`
	From      *tgUser    `json:"from"`
	Chat      tgChat     `json:"chat"`
	Date      int        `json:"date"`
	Text      string     `json:"text"`
	Entities  []tgEntity `json:"entities"`
}

type tgUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	IsBot     bool   `json:"is_bot"`
}

type tgChat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"` // "private", "group", "supergroup", "channel"
	Title string `json:"title"`
}

// tgEntity is a MessageEntity; offsets are in UTF-16 code units per the Bot
// API, but mentions are plain ASCII so rune offsets are equivalent here.
type tgEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

type tgBotUser struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// ---------- API Helpers ----------

// apiCall makes a POST request to the Telegram Bot API.
func (t *Telegram) apiCall(method string, payload map[string]any) (json.RawMessage, error) {
	url := t.baseURL + "/" + method
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("telegram: marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(t.ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("telegram: creating request for %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("telegram: decoding %s response: %w", method, err)
	}
	if !result.OK {
		return nil, fmt.Errorf("telegram: %s: %s", method, result.Description)
	}
	return result.Result, nil
}

// getMe verifies the bot token and returns bot info.
func (t *Telegram) getMe() (*tgBotUser, error) {
	data, err := t.apiCall("getMe", nil)
	if err != nil {
		return nil, err
	}
	var user tgBotUser
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("telegram: parsing getMe: %w", err)
	}
	return &user, nil
}

// getUpdates fetches new updates using long polling.
func (t *Telegram) getUpdates(offset int64, limit, timeoutSecs int) ([]tgUpdate, error) {
	payload := map[string]any{
		"offset":          offset,
		"limit":           limit,
		"timeout":         timeoutSecs,
		"allowed_updates": []string{"message", "edited_message"},
	}
	data, err := t.apiCall("getUpdates", payload)
	if err != nil {
		return nil, err
	}
	var updates []tgUpdate
	if err := json.Unmarshal(data, &updates); err != nil {
		return nil, fmt.Errorf("telegram: parsing updates: %w", err)
	}
	return updates, nil
}

// Compile-time interface verification.
var (
	_ channels.Channel         = (*Telegram)(nil)
	_ channels.PresenceChannel = (*Telegram)(nil)
)
