package pkg

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arrasopromo/nextads/pkg/common"
)

// fakeWoovi simula o provedor: aceita criação de cobrança e responde
// consultas de status com o que o teste programar por correlation ID.
type fakeWoovi struct {
	mu       sync.Mutex
	server   *httptest.Server
	statuses map[string]common.Charge
	gets     int
	failAll  bool
}

func newFakeWoovi(t *testing.T) *fakeWoovi {
	f := &fakeWoovi{statuses: make(map[string]common.Charge)}

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if f.failAll {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		if r.Method == http.MethodPost {
			var payload common.WooviChargePayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			json.NewEncoder(w).Encode(map[string]any{
				"charge": common.Charge{
					Status:        "ACTIVE",
					CorrelationID: payload.CorrelationID,
					Value:         payload.Value,
					BRCode:        "00020126580014br.gov.bcb.pix",
				},
			})
			return
		}

		f.gets++
		correlationID := strings.TrimPrefix(r.URL.Path, "/api/v1/charge/")
		charge, ok := f.statuses[correlationID]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"message": "charge not found"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"charge": charge})
	}))

	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeWoovi) setStatus(correlationID string, charge common.Charge) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[correlationID] = charge
}

func (f *fakeWoovi) setFailAll(failAll bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAll = failAll
}

func (f *fakeWoovi) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

func newTestReconciler(t *testing.T) (*Reconciler, *Ledger, *fakeWoovi, *common.Config) {
	fake := newFakeWoovi(t)
	cfg := testConfig(fake.server.URL)
	cfg.WebhookURL = "http://localhost:4000/api/woovi-webhook"

	ledger := NewLedger()
	client := NewWooviClient(cfg, NewBreakerStore())
	return NewReconciler(cfg, ledger, client), ledger, fake, cfg
}

func webhookBody(t *testing.T, event, correlationID string, value int64) []byte {
	body, err := json.Marshal(common.WebhookEvent{
		Event: event,
		Charge: common.Charge{
			Status:        "COMPLETED",
			CorrelationID: correlationID,
			Value:         value,
			PaidAt:        "2026-08-28T12:00:00Z",
		},
	})
	require.NoError(t, err)
	return body
}

func TestReconciler_CreateChargeRegistersPending(t *testing.T) {
	reconciler, ledger, _, _ := newTestReconciler(t)

	created, err := reconciler.CreateCharge(context.Background(), common.CreateChargeRequest{
		Value:      2970,
		ExpiresIn:  900,
		UseSandbox: true,
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(created.CorrelationID, "pedido-"))
	require.Equal(t, int64(2970), created.Charge.Value)

	pending, ok := ledger.Pending(created.CorrelationID)
	require.True(t, ok)
	require.Equal(t, int64(2970), pending.Value)
	require.Equal(t, common.EnvironmentSandbox, pending.Environment)
	require.Equal(t, common.DefaultComment, pending.Comment)

	logs, _ := ledger.Logs(created.CorrelationID, 0)
	require.Equal(t, 1, countActions(logs, ActionTransactionCreated))
}

func TestReconciler_CreateChargeDaysFallback(t *testing.T) {
	reconciler, ledger, _, _ := newTestReconciler(t)

	created, err := reconciler.CreateCharge(context.Background(), common.CreateChargeRequest{
		Value:         1500,
		Days:          2,
		CorrelationID: "pedido-custom",
		CustomerName:  "Maria",
	})
	require.NoError(t, err)
	require.Equal(t, "pedido-custom", created.CorrelationID)

	pending, ok := ledger.Pending("pedido-custom")
	require.True(t, ok)
	require.Equal(t, common.EnvironmentProduction, pending.Environment)
	require.Equal(t, "Maria", pending.Customer.Name)
}

func TestReconciler_CreateChargeValidation(t *testing.T) {
	reconciler, ledger, _, _ := newTestReconciler(t)

	for _, req := range []common.CreateChargeRequest{
		{Value: 0, ExpiresIn: 900},
		{Value: 2970},
		{Value: -10, ExpiresIn: 900},
	} {
		_, err := reconciler.CreateCharge(context.Background(), req)
		require.Error(t, err)
		require.Equal(t, common.ErrInvalidRequest, common.KindOf(err))
	}

	require.Empty(t, ledger.PendingSnapshot())
}

func TestReconciler_CreateChargeUpstreamFailureRegistersNothing(t *testing.T) {
	reconciler, ledger, fake, _ := newTestReconciler(t)
	fake.setFailAll(true)

	_, err := reconciler.CreateCharge(context.Background(), common.CreateChargeRequest{
		Value:     2970,
		ExpiresIn: 900,
	})
	require.Error(t, err)
	require.Equal(t, common.ErrUpstreamUnavailable, common.KindOf(err))

	require.Empty(t, ledger.PendingSnapshot(), "upstream failure must leave no orphan pending record")
	logs, total := ledger.Logs("", 0)
	require.Zero(t, total, "no audit entry for a charge the provider never acknowledged: %v", logs)
}

func TestReconciler_WebhookConfirmScenario(t *testing.T) {
	reconciler, ledger, fake, cfg := newTestReconciler(t)

	created, err := reconciler.CreateCharge(context.Background(), common.CreateChargeRequest{
		Value:     2970,
		ExpiresIn: 900,
	})
	require.NoError(t, err)
	id := created.CorrelationID

	body := webhookBody(t, common.EventChargeCompleted, id, 2970)
	require.NoError(t, reconciler.HandleWebhook(body, signPayload(cfg.WebhookSecret, body)))

	// Poll depois do webhook responde localmente, sem nova chamada à API.
	result := reconciler.Poll(context.Background(), id)
	require.Equal(t, "COMPLETED", result.Status)
	require.Equal(t, int64(2970), result.Payment.Value)
	require.Equal(t, SourceWebhook, result.Payment.Source)
	require.Zero(t, fake.getCount())

	logs, _ := ledger.Logs(id, 0)
	require.Equal(t, 1, countActions(logs, ActionWebhookReceived))
	require.Equal(t, 1, countActions(logs, ActionPaymentValidated))
}

func TestReconciler_WebhookInvalidSignature(t *testing.T) {
	reconciler, ledger, _, _ := newTestReconciler(t)

	body := webhookBody(t, common.EventChargeCompleted, "pedido-1", 2970)
	err := reconciler.HandleWebhook(body, "assinatura-forjada")
	require.Error(t, err)
	require.Equal(t, common.ErrUnauthorized, common.KindOf(err))

	// Rejeição antes de qualquer lookup: nada entra na auditoria.
	_, total := ledger.Logs("pedido-1", 0)
	require.Zero(t, total)
}

func TestReconciler_WebhookValueMismatchKeepsPending(t *testing.T) {
	reconciler, _, _, cfg := newTestReconciler(t)

	created, err := reconciler.CreateCharge(context.Background(), common.CreateChargeRequest{
		Value:     2970,
		ExpiresIn: 900,
	})
	require.NoError(t, err)
	id := created.CorrelationID

	body := webhookBody(t, common.EventChargeCompleted, id, 1000)
	err = reconciler.HandleWebhook(body, signPayload(cfg.WebhookSecret, body))
	require.Error(t, err)
	require.Equal(t, common.ErrValidationMismatch, common.KindOf(err))

	// O ledger continua mostrando a transação como pendente.
	result := reconciler.Poll(context.Background(), id)
	require.Equal(t, PollStatusPending, result.Status)
}

func TestReconciler_WebhookUnknownCorrelationID(t *testing.T) {
	reconciler, ledger, _, cfg := newTestReconciler(t)

	body := webhookBody(t, common.EventTransactionReceived, "pedido-forjado", 500)
	err := reconciler.HandleWebhook(body, signPayload(cfg.WebhookSecret, body))
	require.Error(t, err)
	require.Equal(t, common.ErrNotFound, common.KindOf(err))

	_, processed := ledger.Processed("pedido-forjado")
	require.False(t, processed)

	logs, _ := ledger.Logs("pedido-forjado", 0)
	require.Equal(t, 1, countActions(logs, ActionValidationFailed))
}

func TestReconciler_WebhookReplayIsSingleCompletion(t *testing.T) {
	reconciler, ledger, _, cfg := newTestReconciler(t)

	created, err := reconciler.CreateCharge(context.Background(), common.CreateChargeRequest{
		Value:     2970,
		ExpiresIn: 900,
	})
	require.NoError(t, err)
	id := created.CorrelationID

	body := webhookBody(t, common.EventChargeCompleted, id, 2970)
	signature := signPayload(cfg.WebhookSecret, body)

	require.NoError(t, reconciler.HandleWebhook(body, signature))
	require.Error(t, reconciler.HandleWebhook(body, signature), "replay must be rejected")

	logs, _ := ledger.Logs(id, 0)
	require.Equal(t, 1, countActions(logs, ActionPaymentValidated))
	require.Equal(t, 2, countActions(logs, ActionWebhookReceived))
}

func TestReconciler_WebhookExpiredEvent(t *testing.T) {
	reconciler, _, fake, cfg := newTestReconciler(t)

	created, err := reconciler.CreateCharge(context.Background(), common.CreateChargeRequest{
		Value:     2970,
		ExpiresIn: 900,
	})
	require.NoError(t, err)
	id := created.CorrelationID

	body := webhookBody(t, common.EventChargeExpired, id, 2970)
	require.NoError(t, reconciler.HandleWebhook(body, signPayload(cfg.WebhookSecret, body)))

	// Poll subsequente responde EXPIRED sem consultar o provedor.
	result := reconciler.Poll(context.Background(), id)
	require.Equal(t, "EXPIRED", result.Status)
	require.Zero(t, fake.getCount())
}

func TestReconciler_WebhookExpiredUnknownIDIsNoop(t *testing.T) {
	reconciler, ledger, _, cfg := newTestReconciler(t)

	body := webhookBody(t, common.EventChargeExpired, "pedido-desconhecido", 100)
	require.NoError(t, reconciler.HandleWebhook(body, signPayload(cfg.WebhookSecret, body)))

	_, processed := ledger.Processed("pedido-desconhecido")
	require.False(t, processed)
}

func TestReconciler_WebhookUnknownEventIgnored(t *testing.T) {
	reconciler, ledger, _, cfg := newTestReconciler(t)

	created, err := reconciler.CreateCharge(context.Background(), common.CreateChargeRequest{
		Value:     2970,
		ExpiresIn: 900,
	})
	require.NoError(t, err)
	id := created.CorrelationID

	body := webhookBody(t, "OPENPIX:MOVEMENT_CONFIRMED", id, 2970)
	require.NoError(t, reconciler.HandleWebhook(body, signPayload(cfg.WebhookSecret, body)))

	_, pending := ledger.Pending(id)
	require.True(t, pending, "unhandled event must not touch the ledger")
}

func TestReconciler_PollUnknownID(t *testing.T) {
	reconciler, _, _, _ := newTestReconciler(t)

	result := reconciler.Poll(context.Background(), "pedido-inexistente")
	require.Equal(t, PollStatusNotFound, result.Status)
	require.Nil(t, result.Payment)
}

func TestReconciler_PollPendingUpstreamStillActive(t *testing.T) {
	reconciler, _, fake, _ := newTestReconciler(t)

	created, err := reconciler.CreateCharge(context.Background(), common.CreateChargeRequest{
		Value:     2970,
		ExpiresIn: 900,
	})
	require.NoError(t, err)
	id := created.CorrelationID

	fake.setStatus(id, common.Charge{Status: "ACTIVE", CorrelationID: id, Value: 2970})

	result := reconciler.Poll(context.Background(), id)
	require.Equal(t, PollStatusPending, result.Status)
	require.Equal(t, "ACTIVE", result.ChargeStatus)
}

func TestReconciler_PollConfirmsCompletedCharge(t *testing.T) {
	reconciler, ledger, fake, _ := newTestReconciler(t)

	created, err := reconciler.CreateCharge(context.Background(), common.CreateChargeRequest{
		Value:      2970,
		ExpiresIn:  900,
		UseSandbox: true,
	})
	require.NoError(t, err)
	id := created.CorrelationID

	fake.setStatus(id, common.Charge{
		Status:        "COMPLETED",
		CorrelationID: id,
		Value:         2970,
		PaidAt:        "2026-08-28T12:00:00Z",
	})

	result := reconciler.Poll(context.Background(), id)
	require.Equal(t, "COMPLETED", result.Status)
	require.Equal(t, SourcePolling, result.Payment.Source)

	// Segunda consulta responde localmente.
	gets := fake.getCount()
	again := reconciler.Poll(context.Background(), id)
	require.Equal(t, "COMPLETED", again.Status)
	require.Equal(t, gets, fake.getCount())

	logs, _ := ledger.Logs(id, 0)
	require.Equal(t, 1, countActions(logs, ActionPaymentValidated))
}

func TestReconciler_PollValueMismatch(t *testing.T) {
	reconciler, ledger, fake, _ := newTestReconciler(t)

	created, err := reconciler.CreateCharge(context.Background(), common.CreateChargeRequest{
		Value:     2970,
		ExpiresIn: 900,
	})
	require.NoError(t, err)
	id := created.CorrelationID

	fake.setStatus(id, common.Charge{Status: "COMPLETED", CorrelationID: id, Value: 1000})

	result := reconciler.Poll(context.Background(), id)
	require.Equal(t, PollStatusValidationError, result.Status)

	_, pending := ledger.Pending(id)
	require.True(t, pending, "mismatch via polling must not move the transaction")
}

func TestReconciler_PollExpiredCharge(t *testing.T) {
	reconciler, _, fake, _ := newTestReconciler(t)

	created, err := reconciler.CreateCharge(context.Background(), common.CreateChargeRequest{
		Value:     2970,
		ExpiresIn: 900,
	})
	require.NoError(t, err)
	id := created.CorrelationID

	fake.setStatus(id, common.Charge{
		Status:        "EXPIRED",
		CorrelationID: id,
		Value:         2970,
		ExpiredAt:     "2026-08-28T12:15:00Z",
	})

	result := reconciler.Poll(context.Background(), id)
	require.Equal(t, "EXPIRED", result.Status)
	require.Equal(t, StatusExpired, result.Payment.Status)
}

func TestReconciler_PollUpstreamFailureStaysPending(t *testing.T) {
	reconciler, ledger, fake, _ := newTestReconciler(t)

	created, err := reconciler.CreateCharge(context.Background(), common.CreateChargeRequest{
		Value:     2970,
		ExpiresIn: 900,
	})
	require.NoError(t, err)
	id := created.CorrelationID

	fake.setFailAll(true)

	result := reconciler.Poll(context.Background(), id)
	require.Equal(t, PollStatusPending, result.Status)
	require.NotEmpty(t, result.Message)

	_, pending := ledger.Pending(id)
	require.True(t, pending, "transient upstream failure must not mutate the ledger")
}

func TestReconciler_FullScenario(t *testing.T) {
	reconciler, _, _, cfg := newTestReconciler(t)

	created, err := reconciler.CreateCharge(context.Background(), common.CreateChargeRequest{
		Value:     2970,
		ExpiresIn: 900,
	})
	require.NoError(t, err)
	id := created.CorrelationID
	require.True(t, strings.HasPrefix(id, "pedido-"), "generated ID: %s", id)

	// Webhook com valor errado é rejeitado e o poll segue PENDING.
	wrong := webhookBody(t, common.EventChargeCompleted, id, 1000)
	require.Error(t, reconciler.HandleWebhook(wrong, signPayload(cfg.WebhookSecret, wrong)))

	body := webhookBody(t, common.EventChargeCompleted, id, 2970)
	require.NoError(t, reconciler.HandleWebhook(body, signPayload(cfg.WebhookSecret, body)))

	result := reconciler.Poll(context.Background(), id)
	require.Equal(t, "COMPLETED", result.Status)
	require.Equal(t, int64(2970), result.Payment.Value)
}
