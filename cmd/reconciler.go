package cmd

import (
	"context"
	"log"
	"time"

	"github.com/arrasopromo/nextads/pkg"
	"github.com/arrasopromo/nextads/pkg/common"
)

// ReconcilerWorker varre periodicamente as transações pendentes e
// consulta o status de cada uma na Woovi. É o fallback para quando a
// entrega de webhooks não está disponível (ex.: sem endpoint público).
type ReconcilerWorker struct {
	interval   time.Duration
	grace      time.Duration
	ledger     *pkg.Ledger
	reconciler *pkg.Reconciler
}

func NewReconcilerWorker(
	cfg *common.Config,
	ledger *pkg.Ledger,
	reconciler *pkg.Reconciler,
) *ReconcilerWorker {
	return &ReconcilerWorker{
		interval:   cfg.SweepInterval,
		grace:      cfg.SweepGrace,
		ledger:     ledger,
		reconciler: reconciler,
	}
}

func (w *ReconcilerWorker) Run(ctx context.Context) {
	log.Printf("Worker de reconciliação iniciando (intervalo %s)...", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Worker de reconciliação desligando.")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep consulta as pendentes criadas há mais tempo que o período de
// carência, dando chance para o webhook chegar primeiro.
func (w *ReconcilerWorker) sweep(ctx context.Context) {
	for _, tx := range w.ledger.PendingSnapshot() {
		if time.Since(tx.CreatedAt) < w.grace {
			continue
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		result := w.reconciler.Poll(ctx, tx.CorrelationID)
		if result.Status != pkg.PollStatusPending {
			log.Printf(
				"Varredura resolveu transação %s: %s",
				tx.CorrelationID,
				result.Status,
			)
		}
	}
}
