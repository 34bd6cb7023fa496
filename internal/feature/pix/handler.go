// Package pix implements the /pix command: parse the arguments, create the
// order at the payment provider and build the reply.
package pix

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"pix_telegram_bot/internal/amount"
	"pix_telegram_bot/internal/jsonvalue"
	"pix_telegram_bot/internal/logging"
	"pix_telegram_bot/internal/pagarme"
	"pix_telegram_bot/internal/qrcode"
	"pix_telegram_bot/internal/summary"
)

const maxErrorBody = 600

// User facing replies.
const (
	MsgNotConfigured = "❗ Configure a variável PAGARME_SECRET_KEY antes de usar /pix."
	MsgUsage         = "Uso: /pix <valor> <descrição...>\nEx.: /pix 19.90 Plano mensal"
	MsgInvalidAmount = "Valor inválido. Ex.: 19.90 ou 12,34"
)

type orderCreator interface {
	CreatePixOrder(ctx context.Context, req pagarme.OrderRequest) (jsonvalue.Value, error)
}

// Reply is what the bot sends back for one /pix invocation. QRImage is only
// set when the order carried a PIX BR Code that could be rendered.
type Reply struct {
	Text    string
	QRImage []byte
}

// Handler runs the /pix workflow. It keeps no state between calls.
type Handler struct {
	orders     orderCreator
	configured bool
	logger     *logrus.Entry
	renderQR   func(string) ([]byte, error)
}

// NewHandler wires the workflow. secretKey is only checked for presence; the
// order client carries the credential itself.
func NewHandler(secretKey string, orders orderCreator, logger *logrus.Entry) *Handler {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Handler{
		orders:     orders,
		configured: strings.TrimSpace(secretKey) != "" && orders != nil,
		logger:     logger,
		renderQR:   qrcode.Render,
	}
}

// Handle processes the whitespace separated arguments that followed /pix.
// Every outcome, including provider and transport failures, becomes a reply.
func (h *Handler) Handle(ctx context.Context, args []string) Reply {
	if h == nil || !h.configured {
		return Reply{Text: MsgNotConfigured}
	}
	if len(args) < 2 {
		return Reply{Text: MsgUsage}
	}

	description := strings.Join(args[1:], " ")
	cents, err := amount.ParseCents(args[0])
	if !amount.Valid(cents, err) {
		h.logger.WithFields(logging.Fields{
			"event": "pix_invalid_amount",
			"input": args[0],
		}).Info("rejected pix amount")
		return Reply{Text: MsgInvalidAmount}
	}

	order, err := h.orders.CreatePixOrder(ctx, pagarme.OrderRequest{
		AmountCents: cents,
		Description: description,
	})
	if err != nil {
		return Reply{Text: h.failureText(err)}
	}

	h.logOrder(order)

	text, info := summary.Render(order, description, cents)
	reply := Reply{Text: text}

	if info.HasQR && qrcode.IsBRCode(info.QR) {
		image, renderErr := h.renderQR(info.QR)
		if renderErr != nil {
			h.logger.WithField("event", "pix_qr_render_error").WithError(renderErr).Warn("failed to render pix qr code")
		} else {
			reply.QRImage = image
		}
	}

	h.logger.WithFields(logging.Fields{
		"event":        "pix_created",
		"amount_cents": cents,
		"has_link":     info.Link != "",
		"has_qr":       info.HasQR,
	}).Info("pix order created")

	return reply
}

func (h *Handler) logOrder(order jsonvalue.Value) {
	if !h.logger.Logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}

	raw, err := order.MarshalJSON()
	if err != nil {
		h.logger.WithField("event", "pix_order_encode_error").WithError(err).Debug("failed to encode order response")
		return
	}

	h.logger.WithFields(logging.Fields{
		"event": "pix_order_response",
		"order": logging.Truncate(string(raw), maxErrorBody),
	}).Debug("pix order response")
}

func (h *Handler) failureText(err error) string {
	var httpErr *pagarme.HTTPError
	if errors.As(err, &httpErr) {
		h.logger.WithFields(logging.Fields{
			"event":  "pix_http_error",
			"status": httpErr.StatusCode,
		}).Warn("payment provider rejected pix order")
		return fmt.Sprintf("❌ Erro HTTP na Pagar.me: %d %s", httpErr.StatusCode, logging.Truncate(httpErr.Body, maxErrorBody))
	}

	h.logger.WithField("event", "pix_error").WithError(err).Error("pix order failed")
	return fmt.Sprintf("❌ Falha ao criar cobrança PIX: %v", err)
}
