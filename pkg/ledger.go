package pkg

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/arrasopromo/nextads/pkg/common"
	"github.com/google/uuid"
)

const AuditLogCapacity = 1000

type AuditAction string

const (
	ActionTransactionCreated AuditAction = "TRANSACTION_CREATED"
	ActionWebhookReceived    AuditAction = "WEBHOOK_RECEIVED"
	ActionValidationFailed   AuditAction = "VALIDATION_FAILED"
	ActionPaymentValidated   AuditAction = "PAYMENT_VALIDATED"
	ActionPaymentExpired     AuditAction = "PAYMENT_EXPIRED"
)

type Source string

const (
	SourceWebhook Source = "webhook"
	SourcePolling Source = "polling"
)

type ProcessedStatus string

const (
	StatusCompleted ProcessedStatus = "COMPLETED"
	StatusExpired   ProcessedStatus = "EXPIRED"
)

var (
	ErrTransactionNotFound = common.NewError(common.ErrNotFound, "Transação não encontrada")
	ErrValueMismatch       = common.NewError(common.ErrValidationMismatch, "Valor da transação não confere")
	ErrAlreadyProcessed    = common.NewError(common.ErrNotFound, "Transação já processada")
)

type PendingTransaction struct {
	CorrelationID  string                  `json:"correlationID"`
	Value          int64                   `json:"value"`
	Comment        string                  `json:"comment"`
	CreatedAt      time.Time               `json:"createdAt"`
	Customer       *common.Customer        `json:"customer,omitempty"`
	AdditionalInfo []common.AdditionalInfo `json:"additionalInfo,omitempty"`
	Environment    common.Environment      `json:"environment"`
}

type ProcessedPayment struct {
	CorrelationID string          `json:"correlationID"`
	Status        ProcessedStatus `json:"status"`
	Value         int64           `json:"value"`
	Event         string          `json:"event,omitempty"`
	Source        Source          `json:"source"`
	PaidAt        time.Time       `json:"paidAt,omitzero"`
	ExpiredAt     time.Time       `json:"expiredAt,omitzero"`
	ValidatedAt   time.Time       `json:"validatedAt"`
}

type AuditEntry struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	Action        AuditAction    `json:"action"`
	CorrelationID string         `json:"correlationID"`
	Data          map[string]any `json:"data"`
}

type LedgerStats struct {
	PendingTransactions int          `json:"pendingTransactions"`
	ProcessedPayments   int          `json:"processedPayments"`
	TotalLogs           int          `json:"totalLogs"`
	RecentActivity      []AuditEntry `json:"recentActivity"`
	PendingCentavos     int64        `json:"-"`
	CompletedCentavos   int64        `json:"-"`
}

// Ledger guarda em memória as transações pendentes, os pagamentos
// processados e a trilha de auditoria. Um correlation ID vive em no
// máximo um dos dois mapas, e a transição pendente→processado é
// executada dentro de uma única seção crítica. Nada é persistido: um
// restart do processo descarta todo o estado.
type Ledger struct {
	mu        sync.Mutex
	pending   map[string]*PendingTransaction
	processed map[string]*ProcessedPayment
	logs      []AuditEntry
	capacity  int
}

func NewLedger() *Ledger {
	return &Ledger{
		pending:   make(map[string]*PendingTransaction),
		processed: make(map[string]*ProcessedPayment),
		logs:      make([]AuditEntry, 0, AuditLogCapacity),
		capacity:  AuditLogCapacity,
	}
}

// Register salva uma transação pendente. Deve ser chamado somente após
// o ack do provedor, para não deixar registro local órfão.
func (l *Ledger) Register(tx *PendingTransaction) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending[tx.CorrelationID] = tx
	l.audit(ActionTransactionCreated, tx.CorrelationID, map[string]any{
		"value":       tx.Value,
		"comment":     tx.Comment,
		"environment": tx.Environment,
	})
}

// ConfirmCompleted move uma transação de pendente para processada, após
// conferir que o valor confirmado bate com o valor registrado na criação.
// Retorna ErrAlreadyProcessed (com o registro existente) se o ID já foi
// processado, ErrTransactionNotFound se o ID nunca foi registrado e
// ErrValueMismatch se o valor divergir; nos dois últimos casos a falha
// fica na auditoria e nenhum estado muda.
func (l *Ledger) ConfirmCompleted(
	correlationID string,
	value int64,
	source Source,
	event string,
	paidAt time.Time,
) (*ProcessedPayment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.processed[correlationID]; ok {
		return existing, ErrAlreadyProcessed
	}

	tx, ok := l.pending[correlationID]
	if !ok {
		l.audit(ActionValidationFailed, correlationID, map[string]any{
			"reason":        "Transaction not found in pending",
			"receivedValue": value,
		})
		return nil, ErrTransactionNotFound
	}

	if tx.Value != value {
		l.audit(ActionValidationFailed, correlationID, map[string]any{
			"reason":        "Value mismatch",
			"expectedValue": tx.Value,
			"receivedValue": value,
		})
		return nil, ErrValueMismatch
	}

	payment := &ProcessedPayment{
		CorrelationID: correlationID,
		Status:        StatusCompleted,
		Value:         value,
		Event:         event,
		Source:        source,
		PaidAt:        paidAt,
		ValidatedAt:   time.Now(),
	}

	l.processed[correlationID] = payment
	delete(l.pending, correlationID)

	l.audit(ActionPaymentValidated, correlationID, map[string]any{
		"value":  value,
		"event":  event,
		"method": source,
	})

	return payment, nil
}

// Expire move uma transação pendente para processada com status EXPIRED.
// Para ID desconhecido ou já processado é um no-op idempotente; o
// segundo valor de retorno indica se houve transição.
func (l *Ledger) Expire(correlationID string, source Source, expiredAt time.Time) (*ProcessedPayment, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.processed[correlationID]; ok {
		return existing, false
	}
	tx, ok := l.pending[correlationID]
	if !ok {
		return nil, false
	}

	payment := &ProcessedPayment{
		CorrelationID: correlationID,
		Status:        StatusExpired,
		Value:         tx.Value,
		Source:        source,
		ExpiredAt:     expiredAt,
		ValidatedAt:   time.Now(),
	}

	l.processed[correlationID] = payment
	delete(l.pending, correlationID)

	l.audit(ActionPaymentExpired, correlationID, map[string]any{
		"expiredAt": expiredAt,
		"method":    source,
	})

	return payment, true
}

func (l *Ledger) Processed(correlationID string) (*ProcessedPayment, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	payment, ok := l.processed[correlationID]
	return payment, ok
}

func (l *Ledger) Pending(correlationID string) (*PendingTransaction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, ok := l.pending[correlationID]
	return tx, ok
}

// PendingSnapshot devolve uma cópia das pendentes, para varredura sem
// segurar o lock durante chamadas de rede.
func (l *Ledger) PendingSnapshot() []PendingTransaction {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := make([]PendingTransaction, 0, len(l.pending))
	for _, tx := range l.pending {
		snapshot = append(snapshot, *tx)
	}
	return snapshot
}

// Audit registra uma entrada avulsa na trilha (ex.: WEBHOOK_RECEIVED).
func (l *Ledger) Audit(action AuditAction, correlationID string, data map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.audit(action, correlationID, data)
}

// Logs devolve as últimas entradas da trilha, opcionalmente filtradas
// por correlation ID, junto com o total de entradas do filtro.
func (l *Ledger) Logs(correlationID string, limit int) ([]AuditEntry, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	filtered := l.logs
	if correlationID != "" {
		filtered = make([]AuditEntry, 0)
		for _, entry := range l.logs {
			if entry.CorrelationID == correlationID {
				filtered = append(filtered, entry)
			}
		}
	}

	total := len(filtered)
	if limit > 0 && limit < total {
		filtered = filtered[total-limit:]
	}

	result := make([]AuditEntry, len(filtered))
	copy(result, filtered)
	return result, total
}

func (l *Ledger) Stats() LedgerStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	recentFrom := len(l.logs) - 10
	if recentFrom < 0 {
		recentFrom = 0
	}
	recent := make([]AuditEntry, len(l.logs)-recentFrom)
	copy(recent, l.logs[recentFrom:])

	stats := LedgerStats{
		PendingTransactions: len(l.pending),
		ProcessedPayments:   len(l.processed),
		TotalLogs:           len(l.logs),
		RecentActivity:      recent,
	}

	for _, tx := range l.pending {
		stats.PendingCentavos += tx.Value
	}
	for _, payment := range l.processed {
		if payment.Status == StatusCompleted {
			stats.CompletedCentavos += payment.Value
		}
	}

	return stats
}

// audit exige o lock já adquirido pelo chamador.
func (l *Ledger) audit(action AuditAction, correlationID string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}

	l.logs = append(l.logs, AuditEntry{
		ID:            uuid.NewString(),
		Timestamp:     time.Now(),
		Action:        action,
		CorrelationID: correlationID,
		Data:          data,
	})

	// Mantém apenas as últimas entradas, descartando as mais antigas.
	if len(l.logs) > l.capacity {
		l.logs = l.logs[len(l.logs)-l.capacity:]
	}
}

const correlationIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewCorrelationID gera um ID no formato pedido-<timestamp>-<sufixo>.
func NewCorrelationID() string {
	randomBytes := make([]byte, 4)
	rand.Read(randomBytes)

	suffix := make([]byte, 4)
	for i, b := range randomBytes {
		suffix[i] = correlationIDAlphabet[int(b)%len(correlationIDAlphabet)]
	}

	return fmt.Sprintf("pedido-%d-%s", time.Now().UnixMilli(), suffix)
}
