package cmd

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/shopspring/decimal"

	"github.com/arrasopromo/nextads/pkg"
	"github.com/arrasopromo/nextads/pkg/common"
)

type CreateChargeResponse struct {
	Success bool                  `json:"success"`
	Data    *common.ChargeCreated `json:"data,omitempty"`
	Error   string                `json:"error,omitempty"`
}

type PaymentStatusResponse struct {
	Success      bool                  `json:"success"`
	Status       string                `json:"status"`
	Data         *pkg.ProcessedPayment `json:"data,omitempty"`
	Message      string                `json:"message,omitempty"`
	ChargeStatus string                `json:"chargeStatus,omitempty"`
}

type TransactionLogsResponse struct {
	Success bool             `json:"success"`
	Logs    []pkg.AuditEntry `json:"logs"`
	Total   int              `json:"total"`
}

type TransactionStats struct {
	PendingTransactions int              `json:"pendingTransactions"`
	ProcessedPayments   int              `json:"processedPayments"`
	TotalLogs           int              `json:"totalLogs"`
	RecentActivity      []pkg.AuditEntry `json:"recentActivity"`
	PendingAmountBRL    string           `json:"pendingAmountBRL"`
	CompletedAmountBRL  string           `json:"completedAmountBRL"`
}

type TransactionStatsResponse struct {
	Success bool             `json:"success"`
	Stats   TransactionStats `json:"stats"`
}

type HttpServer struct {
	port       string
	ledger     *pkg.Ledger
	reconciler *pkg.Reconciler
	breakers   *pkg.BreakerStore
	app        *fiber.App
}

func NewHttpServer(
	cfg *common.Config,
	ledger *pkg.Ledger,
	reconciler *pkg.Reconciler,
	breakers *pkg.BreakerStore,
) *HttpServer {
	app := fiber.New(fiber.Config{
		IdleTimeout: 5 * time.Second,
	})

	s := &HttpServer{
		port:       ":" + cfg.Port,
		ledger:     ledger,
		reconciler: reconciler,
		breakers:   breakers,
		app:        app,
	}

	s.registerRoutes()

	return s
}

func (s *HttpServer) Run() error {
	log.Println("Inicializando servidor HTTP na porta " + s.port)
	return s.app.Listen(s.port)
}

func (s *HttpServer) Shutdown(ctx context.Context) error {
	log.Println("Desligando servidor HTTP...")
	return s.app.ShutdownWithContext(ctx)
}

func (s *HttpServer) App() *fiber.App {
	return s.app
}

func (s *HttpServer) registerRoutes() {
	s.app.Post("/api/create-pix-charge", s.handleCreateCharge)
	s.app.Post("/api/woovi-webhook", s.handleWebhook)
	s.app.Get("/api/payment-status/:correlationID", s.handlePaymentStatus)
	s.app.Get("/api/transaction-logs", s.handleTransactionLogs)
	s.app.Get("/api/transaction-stats", s.handleTransactionStats)
	s.app.Get("/health", s.handleHealth)
}

func (s *HttpServer) handleCreateCharge(c fiber.Ctx) error {
	var req common.CreateChargeRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(CreateChargeResponse{
			Success: false,
			Error:   "Payload inválido",
		})
	}

	created, err := s.reconciler.CreateCharge(c.Context(), req)
	if err != nil {
		log.Printf("Erro ao criar cobrança PIX: %v", err)
		return c.Status(httpStatusFor(err)).JSON(CreateChargeResponse{
			Success: false,
			Error:   common.MessageOf(err),
		})
	}

	return c.JSON(CreateChargeResponse{Success: true, Data: created})
}

func (s *HttpServer) handleWebhook(c fiber.Ctx) error {
	signature := c.Get("x-webhook-signature")

	err := s.reconciler.HandleWebhook(c.Body(), signature)
	if err != nil {
		if common.KindOf(err) == common.ErrUnauthorized {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": common.MessageOf(err)})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": common.MessageOf(err)})
	}

	return c.JSON(fiber.Map{"received": true})
}

func (s *HttpServer) handlePaymentStatus(c fiber.Ctx) error {
	correlationID := c.Params("correlationID")

	result := s.reconciler.Poll(c.Context(), correlationID)

	success := result.Status == string(pkg.StatusCompleted) ||
		result.Status == string(pkg.StatusExpired)

	return c.JSON(PaymentStatusResponse{
		Success:      success,
		Status:       result.Status,
		Data:         result.Payment,
		Message:      result.Message,
		ChargeStatus: result.ChargeStatus,
	})
}

func (s *HttpServer) handleTransactionLogs(c fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	correlationID := c.Query("correlationID")

	logs, total := s.ledger.Logs(correlationID, limit)

	return c.JSON(TransactionLogsResponse{
		Success: true,
		Logs:    logs,
		Total:   total,
	})
}

func (s *HttpServer) handleTransactionStats(c fiber.Ctx) error {
	stats := s.ledger.Stats()

	return c.JSON(TransactionStatsResponse{
		Success: true,
		Stats: TransactionStats{
			PendingTransactions: stats.PendingTransactions,
			ProcessedPayments:   stats.ProcessedPayments,
			TotalLogs:           stats.TotalLogs,
			RecentActivity:      stats.RecentActivity,
			PendingAmountBRL:    centavosToBRL(stats.PendingCentavos),
			CompletedAmountBRL:  centavosToBRL(stats.CompletedCentavos),
		},
	})
}

func (s *HttpServer) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"circuits": s.breakers.Statuses(),
	})
}

func centavosToBRL(centavos int64) string {
	return decimal.NewFromInt(centavos).
		Div(decimal.NewFromInt(100)).
		StringFixed(2)
}

func httpStatusFor(err error) int {
	var domainErr *common.Error
	if !errors.As(err, &domainErr) {
		return fiber.StatusInternalServerError
	}

	switch domainErr.Kind {
	case common.ErrInvalidRequest, common.ErrValidationMismatch:
		return fiber.StatusBadRequest
	case common.ErrUnauthorized:
		return fiber.StatusUnauthorized
	case common.ErrNotFound:
		return fiber.StatusNotFound
	case common.ErrUpstreamUnavailable:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
