// Package telegram implements the wire contract on top of the Telegram Bot
// API with long polling. Bot-token auth never rotates key material, so this
// transport emits neither PairingRequired nor CredentialsUpdated; the rest
// of the contract maps directly.
package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"wagate/pkg/config"
	"wagate/pkg/wire"
)

const transportName = "telegram"
const fileURLTemplate = "https://api.telegram.org/file/bot%s/%s"

// Dialer builds Telegram connections from static bot-token config.
type Dialer struct {
	cfg config.TelegramConfig
	log *slog.Logger
}

// NewDialer validates Telegram configuration and constructs a dialer.
func NewDialer(cfg config.TelegramConfig, log *slog.Logger) (*Dialer, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("transport.telegram.token is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Dialer{cfg: cfg, log: log.With("component", "wire.telegram")}, nil
}

// Name identifies the transport in logs and config.
func (d *Dialer) Name() string {
	return transportName
}

// Dial authenticates the bot and starts long polling. The DialConfig
// credentials are ignored: the token is the whole credential.
func (d *Dialer) Dial(ctx context.Context, _ wire.DialConfig) (wire.Conn, error) {
	bot, err := telego.NewBot(strings.TrimSpace(d.cfg.Token))
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	self, err := bot.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("telegram handshake: %w", err)
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	updates, err := bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		AllowedUpdates: []string{"message", "message_reaction"},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start long polling: %w", err)
	}

	conn := &Conn{
		bot:       bot,
		token:     strings.TrimSpace(d.cfg.Token),
		selfID:    self.ID,
		allowFrom: allowFromSet(d.cfg.AllowFrom),
		events:    make(chan wire.Event, 32),
		cancel:    cancel,
		http:      &http.Client{Timeout: 60 * time.Second},
		log:       d.log,
	}

	go conn.pump(pollCtx, updates)

	d.log.Info("Telegram transport connected", "self_id", self.ID, "username", self.Username)

	return conn, nil
}

// Conn is one live long-polling session.
type Conn struct {
	bot       *telego.Bot
	token     string
	selfID    int64
	allowFrom map[string]struct{}
	events    chan wire.Event
	cancel    context.CancelFunc
	http      *http.Client
	log       *slog.Logger
}

// Events returns the connection's event stream.
func (c *Conn) Events() <-chan wire.Event {
	return c.events
}

// pump translates Telegram updates into wire events until polling stops.
func (c *Conn) pump(ctx context.Context, updates <-chan telego.Update) {
	defer close(c.events)

	if !c.emit(ctx, wire.Opened{SelfID: strconv.FormatInt(c.selfID, 10)}) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				if ctx.Err() == nil {
					c.emit(ctx, wire.Closed{
						Code: wire.CloseConnectionClosed,
						Err:  errors.New("telegram updates channel closed"),
					})
				}
				return
			}

			message := c.translateUpdate(update)
			if message == nil {
				continue
			}

			if !c.emit(ctx, wire.MessageBatch{
				Kind:       wire.BatchNotify,
				Messages:   []*wire.Message{message},
				ReceivedAt: time.Now().UTC(),
			}) {
				return
			}
		}
	}
}

// emit delivers one event unless the connection is shutting down. A false
// return means the consumer is gone and the pump must stop.
func (c *Conn) emit(ctx context.Context, event wire.Event) bool {
	select {
	case c.events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

// translateUpdate maps one update to a wire message, applying the sender
// allow list. Unauthorized and empty updates drop here.
func (c *Conn) translateUpdate(update telego.Update) *wire.Message {
	switch {
	case update.Message != nil:
		if !c.senderAllowed(update.Message.From) {
			c.log.Debug("Ignoring message from unauthorized sender", "update_id", update.UpdateID)
			return nil
		}
		return translateMessage(update.Message, c.selfID)

	case update.MessageReaction != nil:
		if !c.senderAllowed(update.MessageReaction.User) {
			return nil
		}
		return translateReaction(update.MessageReaction)

	default:
		return nil
	}
}

func (c *Conn) senderAllowed(from *telego.User) bool {
	if len(c.allowFrom) == 0 {
		return true
	}
	if from == nil {
		return false
	}

	_, ok := c.allowFrom[strconv.FormatInt(from.ID, 10)]
	return ok
}

// Download resolves the file path behind a reference and streams it from
// Telegram's file endpoint.
func (c *Conn) Download(ctx context.Context, ref *wire.MediaRef) (io.ReadCloser, error) {
	if ref == nil || strings.TrimSpace(ref.ID) == "" {
		return nil, errors.New("media reference with file id is required")
	}

	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: ref.ID})
	if err != nil {
		return nil, fmt.Errorf("resolve telegram file: %w", err)
	}
	if file.FilePath == "" {
		return nil, errors.New("telegram returned no file path")
	}

	url := fmt.Sprintf(fileURLTemplate, c.token, file.FilePath)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build file request: %w", err)
	}

	response, err := c.http.Do(request)
	if err != nil {
		return nil, fmt.Errorf("download telegram file: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		_ = response.Body.Close()
		return nil, fmt.Errorf("download telegram file: %s", response.Status)
	}

	return response.Body, nil
}

func (c *Conn) SendText(ctx context.Context, to string, text string) error {
	chat, err := chatID(to)
	if err != nil {
		return err
	}

	_, err = c.bot.SendMessage(ctx, tu.Message(chat, text))
	return err
}

func (c *Conn) SendMedia(ctx context.Context, to string, media wire.OutboundMedia) error {
	chat, err := chatID(to)
	if err != nil {
		return err
	}

	file, err := inputFile(media)
	if err != nil {
		return err
	}

	switch {
	case media.Kind == wire.MediaAudio && media.Voice:
		_, err = c.bot.SendVoice(ctx, tu.Voice(chat, file).WithCaption(media.Caption))
	case media.Kind == wire.MediaAudio:
		_, err = c.bot.SendAudio(ctx, tu.Audio(chat, file).WithCaption(media.Caption))
	case media.Kind == wire.MediaImage:
		_, err = c.bot.SendPhoto(ctx, tu.Photo(chat, file).WithCaption(media.Caption))
	case media.Kind == wire.MediaVideo:
		_, err = c.bot.SendVideo(ctx, tu.Video(chat, file).WithCaption(media.Caption))
	case media.Kind == wire.MediaDocument:
		_, err = c.bot.SendDocument(ctx, tu.Document(chat, file).WithCaption(media.Caption))
	default:
		return fmt.Errorf("unsupported media kind %q", media.Kind)
	}

	return err
}

func (c *Conn) SendReaction(ctx context.Context, to string, target wire.MessageKey, emoji string) error {
	chat, err := chatID(to)
	if err != nil {
		return err
	}

	messageID, err := strconv.Atoi(target.ID)
	if err != nil {
		return fmt.Errorf("telegram message ids are numeric, got %q", target.ID)
	}

	return c.bot.SetMessageReaction(ctx, &telego.SetMessageReactionParams{
		ChatID:    chat,
		MessageID: messageID,
		Reaction: []telego.ReactionType{&telego.ReactionTypeEmoji{
			Type:  telego.ReactionEmoji,
			Emoji: emoji,
		}},
	})
}

func (c *Conn) SendReply(ctx context.Context, to string, text string, quotedID string) error {
	chat, err := chatID(to)
	if err != nil {
		return err
	}

	messageID, err := strconv.Atoi(quotedID)
	if err != nil {
		return fmt.Errorf("telegram message ids are numeric, got %q", quotedID)
	}

	params := tu.Message(chat, text).WithReplyParameters(&telego.ReplyParameters{MessageID: messageID})
	_, err = c.bot.SendMessage(ctx, params)

	return err
}

func (c *Conn) SendPresence(ctx context.Context, to string, presence wire.Presence) error {
	chat, err := chatID(to)
	if err != nil {
		return err
	}

	var action string
	switch presence {
	case wire.PresenceComposing:
		action = telego.ChatActionTyping
	case wire.PresenceRecording:
		action = telego.ChatActionRecordVoice
	case wire.PresencePaused:
		// Telegram actions expire on their own; there is nothing to send.
		return nil
	default:
		return fmt.Errorf("unsupported presence %q", presence)
	}

	return c.bot.SendChatAction(ctx, tu.ChatAction(chat, action))
}

// Close stops long polling. The event channel closes once the pump drains.
func (c *Conn) Close(_ context.Context) error {
	c.cancel()
	return nil
}

// chatID accepts numeric chat identifiers and @usernames.
func chatID(to string) (telego.ChatID, error) {
	trimmed := strings.TrimSpace(to)
	if trimmed == "" {
		return telego.ChatID{}, errors.New("destination chat is required")
	}

	if strings.HasPrefix(trimmed, "@") {
		return tu.Username(trimmed), nil
	}

	id, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return telego.ChatID{}, fmt.Errorf("invalid chat id %q", to)
	}

	return tu.ID(id), nil
}

func inputFile(media wire.OutboundMedia) (telego.InputFile, error) {
	switch {
	case len(media.Data) > 0:
		name := media.FileName
		if name == "" {
			name = "file"
		}
		return tu.File(tu.NameReader(bytes.NewReader(media.Data), name)), nil
	case strings.TrimSpace(media.URL) != "":
		return tu.FileFromURL(strings.TrimSpace(media.URL)), nil
	default:
		return telego.InputFile{}, errors.New("media payload requires data or url")
	}
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}
