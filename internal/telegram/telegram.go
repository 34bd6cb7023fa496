// Package telegram hosts the Telegram client, command routing, and replies.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"pix_telegram_bot/internal/config"
	"pix_telegram_bot/internal/feature/admin"
	"pix_telegram_bot/internal/feature/pix"
	"pix_telegram_bot/internal/logging"
)

type botAPI interface {
	Start(ctx context.Context)
	DeleteWebhook(ctx context.Context, params *bot.DeleteWebhookParams) (bool, error)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
}

type pixHandler interface {
	Handle(ctx context.Context, args []string) pix.Reply
}

type stopGuard interface {
	RequestStop(userID int64) admin.Decision
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"edited_message",
	}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		return bot.New(token, options...)
	}
)

// ErrNotPolling is reported by Ping while the client is not receiving updates.
var ErrNotPolling = errors.New("telegram client is not polling")

// Client wraps the Telegram bot instance, the command handlers and logging dependencies.
type Client struct {
	bot          botAPI
	logger       *logrus.Entry
	pix          pixHandler
	guard        stopGuard
	processStart time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc

	handlers   sync.WaitGroup
	inFlight   atomic.Int64
	lastUpdate atomic.Int64
}

// Option customizes the Client.
type Option func(*Client)

// WithPixHandler sets the handler behind /pix.
func WithPixHandler(h pixHandler) Option {
	return func(c *Client) {
		c.pix = h
	}
}

// WithStopGuard sets the authorization check behind /stop.
func WithStopGuard(g stopGuard) Option {
	return func(c *Client) {
		c.guard = g
	}
}

// WithProcessStart records process start time for /start uptime output.
func WithProcessStart(start time.Time) Option {
	return func(c *Client) {
		c.processStart = start
	}
}

// NewClient initializes the Telegram bot with long polling and the command router.
func NewClient(cfg config.Config, logger *logrus.Entry, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	client := &Client{
		logger:       logger,
		processStart: time.Now(),
	}
	for _, opt := range opts {
		opt(client)
	}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(client.handleUpdate),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	client.bot = tgBot

	return client, nil
}

// Start begins receiving updates via long polling until the context is
// canceled or Stop is called. Updates queued while the bot was offline are
// dropped. Start returns once every command handler already running has finished.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	if _, err := c.bot.DeleteWebhook(runCtx, &bot.DeleteWebhookParams{DropPendingUpdates: true}); err != nil {
		c.logger.WithField("event", "telegram_drop_pending_error").WithError(err).Warn("failed to drop pending updates")
	}

	c.bot.Start(runCtx)

	c.mu.Lock()
	c.running = false
	c.cancel = nil
	c.mu.Unlock()
	cancel()

	if pending := c.inFlight.Load(); pending > 0 {
		c.logger.WithFields(logging.Fields{
			"event":    "telegram_draining",
			"handlers": pending,
		}).Debug("waiting for command handlers to finish")
	}
	c.handlers.Wait()

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

// Stop asks the polling loop to exit. Handlers already running finish normally.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Ping reports whether the client is currently polling; used by the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return ErrNotPolling
	}
	return nil
}

// InFlight returns the number of command handlers currently running.
func (c *Client) InFlight() int {
	return int(c.inFlight.Load())
}

// LastUpdateAt returns when the most recent update arrived; zero before the first one.
func (c *Client) LastUpdateAt() time.Time {
	nanos := c.lastUpdate.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

type updateMeta struct {
	userID     int64
	chatID     int64
	messageID  int
	text       string
	updateType string
}

func (c *Client) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil {
		return
	}

	c.handlers.Add(1)
	c.inFlight.Add(1)
	defer func() {
		c.inFlight.Add(-1)
		c.handlers.Done()
	}()

	c.lastUpdate.Store(time.Now().UnixNano())
	meta := extractUpdateMeta(update)

	fields := logging.Fields{
		"event":       "telegram_update",
		"update_type": meta.updateType,
	}

	if meta.text != "" {
		fields["text"] = meta.text
	}
	if meta.userID != 0 {
		fields["user_id"] = meta.userID
	}
	if meta.chatID != 0 {
		fields["chat_id"] = meta.chatID
	}

	c.logger.WithFields(fields).Info("telegram update received")

	// Edits are logged only; re-running /pix on an edit would create a second order.
	if meta.updateType != "message" {
		return
	}

	cmd, ok := parseCommand(meta.text)
	if !ok {
		return
	}

	c.dispatch(context.WithoutCancel(ctx), meta, cmd)
}

func extractUpdateMeta(update *models.Update) updateMeta {
	switch {
	case update.Message != nil:
		return updateMeta{
			userID:     userID(update.Message.From),
			chatID:     update.Message.Chat.ID,
			messageID:  update.Message.ID,
			text:       strings.TrimSpace(update.Message.Text),
			updateType: "message",
		}
	case update.EditedMessage != nil:
		return updateMeta{
			userID:     userID(update.EditedMessage.From),
			chatID:     update.EditedMessage.Chat.ID,
			messageID:  update.EditedMessage.ID,
			text:       strings.TrimSpace(update.EditedMessage.Text),
			updateType: "edited_message",
		}
	default:
		return updateMeta{updateType: "unknown"}
	}
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}

func userID(user *models.User) int64 {
	if user == nil {
		return 0
	}

	return user.ID
}
