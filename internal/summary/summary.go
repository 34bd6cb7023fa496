// Package summary turns a Pagar.me order response into the chat reply shown
// after a PIX charge is created.
package summary

import (
	"strings"
	"unicode/utf8"

	"pix_telegram_bot/internal/amount"
	"pix_telegram_bot/internal/jsonvalue"
	"pix_telegram_bot/internal/logging"
)

const (
	// MaxDescriptionLength limits the description echoed in the reply.
	MaxDescriptionLength = 80
	// MaxQRLength is the exclusive upper bound for inlining the QR payload.
	MaxQRLength = 1500

	header   = "✅ PIX criado com sucesso!"
	qrHeader = "\n🔑 Chave PIX (QR):\n"
)

var (
	linkAliases = map[string]struct{}{
		"qr_code_url":  {},
		"qr_code_link": {},
		"payment_link": {},
		"link":         {},
	}
	qrAliases = map[string]struct{}{
		"qr_code":        {},
		"qrcode":         {},
		"qr":             {},
		"qr_code_base64": {},
	}
)

// PaymentInfo holds the first link and QR payload found in an order.
type PaymentInfo struct {
	Link    string
	HasLink bool
	QR      string
	HasQR   bool
}

// Charges returns the order's "charges" field, falling back to "payments"
// when charges is missing or empty.
func Charges(order jsonvalue.Value) jsonvalue.Value {
	if charges, ok := order.Get("charges"); ok && charges.Truthy() {
		return charges
	}
	if payments, ok := order.Get("payments"); ok && payments.Truthy() {
		return payments
	}
	return jsonvalue.NewArray()
}

// Extract walks root depth first and records the first string value whose key
// (case-insensitive) is a link alias or a QR alias. Later matches never
// overwrite an earlier one, even when the earlier value is empty.
func Extract(root jsonvalue.Value) PaymentInfo {
	var info PaymentInfo

	root.Walk(func(key string, value jsonvalue.Value) {
		if key == "" {
			return
		}
		s, ok := value.Str()
		if !ok {
			return
		}

		lower := strings.ToLower(key)
		if _, isLink := linkAliases[lower]; isLink && !info.HasLink {
			info.Link, info.HasLink = s, true
		}
		if _, isQR := qrAliases[lower]; isQR && !info.HasQR {
			info.QR, info.HasQR = s, true
		}
	})

	return info
}

// InlineQR reports whether the QR payload is short enough to include in the reply.
func (p PaymentInfo) InlineQR() bool {
	return p.QR != "" && utf8.RuneCountInString(p.QR) < MaxQRLength
}

// Build renders the multi-line reply for a created order.
func Build(description string, amountCents int64, info PaymentInfo) string {
	lines := []string{
		header,
		"Descrição: " + logging.Truncate(description, MaxDescriptionLength),
		"Valor: R$ " + amount.FormatCents(amountCents),
	}

	if info.Link != "" {
		lines = append(lines, "🔗 Link: "+info.Link)
	}
	if info.InlineQR() {
		lines = append(lines, qrHeader+info.QR)
	}

	return strings.Join(lines, "\n")
}

// Render is the common path: extract from the order's charges and build the reply.
func Render(order jsonvalue.Value, description string, amountCents int64) (string, PaymentInfo) {
	info := Extract(Charges(order))
	return Build(description, amountCents, info), info
}
