package telegram

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"

	"pix_telegram_bot/internal/feature/admin"
	"pix_telegram_bot/internal/feature/pix"
	"pix_telegram_bot/internal/logging"
)

// Command names, without the leading slash.
const (
	CommandStart = "start"
	CommandHelp  = "help"
	CommandID    = "id"
	CommandStop  = "stop"
	CommandPix   = "pix"
)

const (
	msgStatus      = "✅ Bot online e pronto para gerar cobranças PIX.\nEnvie /help para ver os comandos."
	msgUnknownUser = "desconhecido"
	qrFilename     = "pix-qr.png"
	qrCaption      = "QR Code PIX"
)

// helpText uses HTML parse mode; MarkdownV2 would require escaping every "." and "-".
const helpText = "🤖 <b>Bot do Telegram online!</b>\n" +
	"Comandos:\n" +
	"• <code>/start</code> – status\n" +
	"• <code>/help</code> – ajuda\n" +
	"• <code>/id</code> – mostra seu user_id\n" +
	"• <code>/pix &lt;valor&gt; &lt;descrição...&gt;</code> – cria cobrança PIX (ex.: <code>/pix 19.90 Plano</code>)\n" +
	"• <code>/stop</code> – parar o bot (somente ADMIN)\n"

type command struct {
	name string
	args []string
}

// parseCommand splits "/pix@MyBot 19.90 Plano" into name "pix" and its
// whitespace separated arguments. Text that does not start with "/" is not a command.
func parseCommand(text string) (command, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return command{}, false
	}

	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	if name == "" {
		return command{}, false
	}

	return command{name: strings.ToLower(name), args: fields[1:]}, true
}

func (c *Client) dispatch(ctx context.Context, meta updateMeta, cmd command) {
	logger := logging.Context{
		UserID:    meta.userID,
		ChatID:    meta.chatID,
		Event:     "telegram_command",
		Command:   cmd.name,
		RequestID: uuid.NewString(),
	}.Apply(c.logger)

	switch cmd.name {
	case CommandStart:
		c.reply(ctx, meta, c.statusText(), "")
	case CommandHelp:
		c.reply(ctx, meta, helpText, models.ParseModeHTML)
	case CommandID:
		c.reply(ctx, meta, "Seu user_id: "+formatUserID(meta.userID), "")
	case CommandStop:
		c.handleStop(ctx, meta)
	case CommandPix:
		c.handlePix(ctx, meta, cmd.args)
	default:
		logger.Debug("ignoring unknown command")
		return
	}

	logger.Info("command handled")
}

func (c *Client) handleStop(ctx context.Context, meta updateMeta) {
	if c.guard == nil {
		c.reply(ctx, meta, admin.MsgForbidden, "")
		return
	}

	decision := c.guard.RequestStop(meta.userID)
	c.reply(ctx, meta, decision.Reply, "")

	if decision.Stop {
		c.Stop()
	}
}

func (c *Client) handlePix(ctx context.Context, meta updateMeta, args []string) {
	if c.pix == nil {
		c.reply(ctx, meta, pix.MsgNotConfigured, "")
		return
	}

	result := c.pix.Handle(ctx, args)
	c.reply(ctx, meta, result.Text, "")

	if len(result.QRImage) == 0 {
		return
	}

	_, err := c.bot.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID: meta.chatID,
		Photo: &models.InputFileUpload{
			Filename: qrFilename,
			Data:     bytes.NewReader(result.QRImage),
		},
		Caption: qrCaption,
	})
	if err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "telegram_send_photo_error",
			"chat_id": meta.chatID,
		}).WithError(err).Error("failed to send qr photo")
	}
}

func (c *Client) reply(ctx context.Context, meta updateMeta, text string, parseMode models.ParseMode) {
	params := &bot.SendMessageParams{
		ChatID:    meta.chatID,
		Text:      text,
		ParseMode: parseMode,
	}
	if meta.messageID != 0 {
		params.ReplyParameters = &models.ReplyParameters{
			MessageID:                meta.messageID,
			AllowSendingWithoutReply: true,
		}
	}

	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "telegram_send_error",
			"chat_id": meta.chatID,
		}).WithError(err).Error("failed to send reply")
	}
}

func (c *Client) statusText() string {
	if c.processStart.IsZero() {
		return msgStatus
	}

	uptime := time.Since(c.processStart).Truncate(time.Second)
	return msgStatus + "\nUptime: " + uptime.String()
}

func formatUserID(id int64) string {
	if id == 0 {
		return msgUnknownUser
	}
	return strconv.FormatInt(id, 10)
}
