package pix

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"pix_telegram_bot/internal/jsonvalue"
	"pix_telegram_bot/internal/pagarme"
)

type fakeOrders struct {
	calls []pagarme.OrderRequest
	order jsonvalue.Value
	err   error
}

func (f *fakeOrders) CreatePixOrder(_ context.Context, req pagarme.OrderRequest) (jsonvalue.Value, error) {
	f.calls = append(f.calls, req)
	return f.order, f.err
}

func newHandler(t *testing.T, orders orderCreator) (*Handler, *logtest.Hook) {
	t.Helper()

	logger, hook := logtest.NewNullLogger()
	return NewHandler("sk_test", orders, logrus.NewEntry(logger)), hook
}

func decode(t *testing.T, doc string) jsonvalue.Value {
	t.Helper()

	v, err := jsonvalue.Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestHandleRequiresTwoArguments(t *testing.T) {
	for _, args := range [][]string{nil, {}, {"19.90"}} {
		orders := &fakeOrders{}
		h, _ := newHandler(t, orders)

		reply := h.Handle(context.Background(), args)

		if reply.Text != MsgUsage {
			t.Fatalf("args %v: expected usage message, got %q", args, reply.Text)
		}
		if len(orders.calls) != 0 {
			t.Fatalf("args %v: expected no provider call, got %d", args, len(orders.calls))
		}
	}
}

func TestHandleRejectsInvalidAmounts(t *testing.T) {
	for _, raw := range []string{"abc", "0", "0,00", "-5", "0.004"} {
		orders := &fakeOrders{}
		h, _ := newHandler(t, orders)

		reply := h.Handle(context.Background(), []string{raw, "Plano"})

		if reply.Text != MsgInvalidAmount {
			t.Fatalf("amount %q: expected invalid amount message, got %q", raw, reply.Text)
		}
		if len(orders.calls) != 0 {
			t.Fatalf("amount %q: expected no provider call", raw)
		}
	}
}

func TestHandleWithoutSecretKey(t *testing.T) {
	orders := &fakeOrders{}
	logger, _ := logtest.NewNullLogger()
	h := NewHandler("", orders, logrus.NewEntry(logger))

	reply := h.Handle(context.Background(), []string{"10", "Plano"})

	if reply.Text != MsgNotConfigured {
		t.Fatalf("expected configuration message, got %q", reply.Text)
	}
	if len(orders.calls) != 0 {
		t.Fatalf("expected no provider call")
	}
}

func TestHandleCreatesOrderAndFormatsSummary(t *testing.T) {
	orders := &fakeOrders{order: decode(t, `{"charges":[{"last_transaction":{"qr_code":"https-not-a-brcode","qr_code_url":"https://pay.example/qr"}}]}`)}
	h, hook := newHandler(t, orders)

	reply := h.Handle(context.Background(), []string{"R$19,90", "Plano", "mensal"})

	if len(orders.calls) != 1 {
		t.Fatalf("expected one provider call, got %d", len(orders.calls))
	}
	if orders.calls[0].AmountCents != 1990 || orders.calls[0].Description != "Plano mensal" {
		t.Fatalf("unexpected order request %+v", orders.calls[0])
	}

	for _, want := range []string{"PIX criado com sucesso", "Descrição: Plano mensal", "Valor: R$ 19.90", "🔗 Link: https://pay.example/qr", "https-not-a-brcode"} {
		if !strings.Contains(reply.Text, want) {
			t.Fatalf("expected reply to contain %q, got %q", want, reply.Text)
		}
	}
	if reply.QRImage != nil {
		t.Fatalf("expected no QR image for non BR Code payload")
	}

	last := hook.LastEntry()
	if last == nil || last.Data["event"] != "pix_created" {
		t.Fatalf("expected pix_created log, got %v", last)
	}
}

func TestHandleLogsOrderResponseAtDebug(t *testing.T) {
	orders := &fakeOrders{order: decode(t, `{"id":"or_9","status":"pending"}`)}
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	h := NewHandler("sk_test", orders, logrus.NewEntry(logger))

	h.Handle(context.Background(), []string{"5", "Teste"})

	var logged interface{}
	for _, entry := range hook.AllEntries() {
		if entry.Data["event"] == "pix_order_response" {
			logged = entry.Data["order"]
		}
	}
	if logged != `{"id":"or_9","status":"pending"}` {
		t.Fatalf("expected order response in debug log, got %v", logged)
	}
}

func TestHandleRendersBRCodeImage(t *testing.T) {
	orders := &fakeOrders{order: decode(t, `{"charges":[{"last_transaction":{"qr_code":"000201pix"}}]}`)}
	h, _ := newHandler(t, orders)

	var rendered string
	h.renderQR = func(payload string) ([]byte, error) {
		rendered = payload
		return []byte("png"), nil
	}

	reply := h.Handle(context.Background(), []string{"5", "Café"})

	if rendered != "000201pix" {
		t.Fatalf("expected BR Code to be rendered, got %q", rendered)
	}
	if string(reply.QRImage) != "png" {
		t.Fatalf("expected QR image in reply, got %q", reply.QRImage)
	}
}

func TestHandleKeepsTextWhenQRRenderFails(t *testing.T) {
	orders := &fakeOrders{order: decode(t, `{"charges":[{"qr_code":"000201pix"}]}`)}
	h, hook := newHandler(t, orders)
	h.renderQR = func(string) ([]byte, error) { return nil, errors.New("encoder down") }

	reply := h.Handle(context.Background(), []string{"5", "Café"})

	if reply.QRImage != nil || !strings.Contains(reply.Text, "000201pix") {
		t.Fatalf("expected text-only reply, got %+v", reply)
	}

	found := false
	for _, entry := range hook.AllEntries() {
		if entry.Data["event"] == "pix_qr_render_error" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected pix_qr_render_error log")
	}
}

func TestHandleReportsProviderHTTPError(t *testing.T) {
	body := `{"message":"The request is invalid.","detail":"` + strings.Repeat("x", 1000) + `"}`
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	logger, _ := logtest.NewNullLogger()
	client, err := pagarme.NewClient(srv.URL, "sk_test", pagarme.WithLogger(logrus.NewEntry(logger)))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	h := NewHandler("sk_test", client, logrus.NewEntry(logger))

	reply := h.Handle(context.Background(), []string{"10", "Plano"})

	if !strings.HasPrefix(reply.Text, "❌ Erro HTTP na Pagar.me: 422 ") {
		t.Fatalf("expected status code in reply, got %q", reply.Text)
	}
	if !strings.Contains(reply.Text, `{"message":"The request is invalid."`) {
		t.Fatalf("expected body excerpt in reply, got %q", reply.Text)
	}
	bodyPart := strings.TrimPrefix(reply.Text, "❌ Erro HTTP na Pagar.me: 422 ")
	if len([]rune(bodyPart)) != maxErrorBody {
		t.Fatalf("expected body truncated to %d runes, got %d", maxErrorBody, len([]rune(bodyPart)))
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected exactly one provider attempt, got %d", hits)
	}
}

func TestHandleReportsGenericFailure(t *testing.T) {
	orders := &fakeOrders{err: errors.New("dial tcp: connection refused")}
	h, hook := newHandler(t, orders)

	reply := h.Handle(context.Background(), []string{"10", "Plano"})

	if reply.Text != "❌ Falha ao criar cobrança PIX: dial tcp: connection refused" {
		t.Fatalf("unexpected reply %q", reply.Text)
	}

	last := hook.LastEntry()
	if last == nil || last.Level != logrus.ErrorLevel {
		t.Fatalf("expected error log, got %v", last)
	}
}
