package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/arrasopromo/nextads/cmd"
	"github.com/arrasopromo/nextads/pkg"
	"github.com/arrasopromo/nextads/pkg/common"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := common.LoadConfig()

	ledger := pkg.NewLedger()
	breakers := pkg.NewBreakerStore()
	woovi := pkg.NewWooviClient(cfg, breakers)
	reconciler := pkg.NewReconciler(cfg, ledger, woovi)

	var wg sync.WaitGroup
	httpServer := cmd.NewHttpServer(cfg, ledger, reconciler, breakers)
	worker := cmd.NewReconcilerWorker(cfg, ledger, reconciler)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpServer.Run(); err != nil && err != http.ErrServerClosed {
			log.Printf("Servidor Http foi finalizado com erro: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	<-ctx.Done()

	log.Println("Sinal de desligamento recebido. Iniciando graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Erro no desligamento do Servidor Http: %v", err)
	} else {
		log.Println("Servidor Http desligado com sucesso.")
	}

	wg.Wait()

	log.Println("Processo de desligamento foi completo com sucesso!")
}
