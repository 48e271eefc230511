package pkg

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/arrasopromo/nextads/pkg/common"
)

const (
	PollStatusPending         = "PENDING"
	PollStatusNotFound        = "NOT_FOUND"
	PollStatusValidationError = "VALIDATION_ERROR"
)

// PollResult é o resultado de uma consulta de status: o status final
// apresentável ao cliente e, quando a transação já foi processada, o
// registro correspondente.
type PollResult struct {
	Status       string
	Payment      *ProcessedPayment
	Message      string
	ChargeStatus string
}

// Reconciler coordena o ciclo de vida de uma cobrança: criação junto ao
// provedor, confirmação via webhook e fallback de polling.
type Reconciler struct {
	cfg    *common.Config
	ledger *Ledger
	woovi  *WooviClient
}

func NewReconciler(cfg *common.Config, ledger *Ledger, woovi *WooviClient) *Reconciler {
	return &Reconciler{
		cfg:    cfg,
		ledger: ledger,
		woovi:  woovi,
	}
}

// CreateCharge valida a requisição, cria a cobrança na Woovi e só então
// registra a transação pendente no ledger. Se a chamada ao provedor
// falhar, nada é registrado localmente.
func (r *Reconciler) CreateCharge(
	ctx context.Context,
	req common.CreateChargeRequest,
) (*common.ChargeCreated, error) {
	expiresIn := req.ExpiresIn
	if expiresIn == 0 && req.Days > 0 {
		expiresIn = req.Days * 24 * 60 * 60
	}

	if req.Value <= 0 || expiresIn <= 0 {
		return nil, common.NewError(common.ErrInvalidRequest, "Valor e duração são obrigatórios")
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = NewCorrelationID()
	}

	comment := req.Comment
	if comment == "" {
		comment = common.DefaultComment
	}

	env := common.EnvironmentFor(req.UseSandbox)

	payload := common.WooviChargePayload{
		CorrelationID:  correlationID,
		Value:          req.Value,
		Comment:        comment,
		ExpiresIn:      expiresIn,
		AdditionalInfo: req.AdditionalInfo,
		Webhook:        &common.WebhookConfig{URL: r.cfg.WebhookURL},
	}

	customer := &common.Customer{
		Name:  req.CustomerName,
		TaxID: req.CustomerTaxID,
		Email: req.CustomerEmail,
		Phone: req.CustomerPhone,
	}
	if !customer.Empty() {
		payload.Customer = customer
	}

	created, err := r.woovi.CreateCharge(ctx, env, payload)
	if err != nil {
		return nil, err
	}

	r.ledger.Register(&PendingTransaction{
		CorrelationID:  correlationID,
		Value:          req.Value,
		Comment:        comment,
		CreatedAt:      time.Now(),
		Customer:       payload.Customer,
		AdditionalInfo: req.AdditionalInfo,
		Environment:    env,
	})

	log.Printf("Transação salva como pendente: %s", correlationID)

	return created, nil
}

// HandleWebhook processa uma entrega de webhook da Woovi. A assinatura é
// conferida antes de qualquer acesso ao ledger; eventos desconhecidos
// são ignorados sem erro.
func (r *Reconciler) HandleWebhook(rawBody []byte, signature string) error {
	if !ValidateWebhookSignature(r.cfg.WebhookSecret, rawBody, signature) {
		log.Println("Assinatura do webhook inválida")
		return common.NewError(common.ErrUnauthorized, "Assinatura inválida")
	}

	var event common.WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return common.WrapError(common.ErrInvalidRequest, "Payload do webhook inválido", err)
	}

	correlationID := event.Charge.CorrelationID
	log.Printf("Webhook recebido: %s %s", event.Event, correlationID)
	r.ledger.Audit(ActionWebhookReceived, correlationID, map[string]any{
		"event": event.Event,
		"value": event.Charge.Value,
	})

	switch event.Event {
	case common.EventChargeCompleted, common.EventTransactionReceived:
		return r.confirmFromWebhook(event)
	case common.EventChargeExpired:
		if _, moved := r.ledger.Expire(correlationID, SourceWebhook, time.Now()); moved {
			log.Printf("Cobrança expirada: %s", correlationID)
		}
		return nil
	default:
		log.Printf("Evento não tratado: %s", event.Event)
		return nil
	}
}

func (r *Reconciler) confirmFromWebhook(event common.WebhookEvent) error {
	correlationID := event.Charge.CorrelationID
	paidAt := parseTimestamp(event.Charge.PaidAt)

	_, err := r.ledger.ConfirmCompleted(correlationID, event.Charge.Value, SourceWebhook, event.Event, paidAt)
	switch {
	case err == nil:
		log.Printf("Pagamento validado e armazenado: %s", correlationID)
		return nil
	case errors.Is(err, ErrAlreadyProcessed):
		// Reentrega de um webhook já processado: nada a fazer, mas a
		// tentativa fica na auditoria como guarda contra replay.
		r.ledger.Audit(ActionValidationFailed, correlationID, map[string]any{
			"reason": "Transaction already processed",
			"event":  event.Event,
		})
		return ErrTransactionNotFound
	default:
		log.Printf("Validação do webhook falhou para %s: %v", correlationID, err)
		return err
	}
}

// Poll responde o status de uma cobrança. Registros já processados são
// respondidos localmente; pendentes disparam consulta ao provedor, e
// falha transitória do provedor vira PENDING, nunca expiração.
func (r *Reconciler) Poll(ctx context.Context, correlationID string) PollResult {
	if payment, ok := r.ledger.Processed(correlationID); ok {
		return PollResult{Status: string(payment.Status), Payment: payment}
	}

	pending, ok := r.ledger.Pending(correlationID)
	if !ok {
		return PollResult{Status: PollStatusNotFound, Message: "Transação não encontrada"}
	}

	charge, err := r.woovi.GetCharge(ctx, pending.Environment, correlationID)
	if err != nil {
		log.Printf("Erro ao consultar API Woovi para %s: %v", correlationID, err)
		return PollResult{
			Status:  PollStatusPending,
			Message: "Erro ao verificar status - tentando novamente...",
		}
	}

	switch charge.Status {
	case string(StatusCompleted):
		return r.confirmFromPolling(correlationID, charge)
	case string(StatusExpired):
		payment, _ := r.ledger.Expire(correlationID, SourcePolling, parseTimestamp(charge.ExpiredAt))
		return PollResult{Status: string(StatusExpired), Payment: payment}
	default:
		return PollResult{
			Status:       PollStatusPending,
			Message:      "Pagamento ainda pendente",
			ChargeStatus: charge.Status,
		}
	}
}

func (r *Reconciler) confirmFromPolling(correlationID string, charge *common.Charge) PollResult {
	paidAt := parseTimestamp(charge.PaidAt)

	payment, err := r.ledger.ConfirmCompleted(correlationID, charge.Value, SourcePolling, "POLLING_CONFIRMED", paidAt)
	switch {
	case err == nil:
		log.Printf("Pagamento confirmado via polling: %s", correlationID)
		return PollResult{Status: string(StatusCompleted), Payment: payment}
	case errors.Is(err, ErrAlreadyProcessed):
		// Um webhook chegou entre a consulta e a confirmação; o registro
		// existente responde a requisição.
		return PollResult{Status: string(payment.Status), Payment: payment}
	case errors.Is(err, ErrValueMismatch):
		return PollResult{Status: PollStatusValidationError, Message: "Valor da transação não confere"}
	default:
		return PollResult{Status: PollStatusNotFound, Message: "Transação não encontrada"}
	}
}

// parseTimestamp aceita o formato RFC3339 usado pela Woovi; qualquer
// outra coisa vira o instante atual.
func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Now()
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Now()
	}
	return parsed
}
