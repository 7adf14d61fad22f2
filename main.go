package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/dnldd/fxrfq/service"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

func main() {
	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Printf("loading config: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svcCfg := service.ServiceConfig{
		ListenAddr:            cfg.ListenAddr,
		CoinGeckoAPIKey:       cfg.CoinGeckoAPIKey,
		LedgerEndpoint:        cfg.LedgerEndpoint,
		SettlementContract:    cfg.SettlementContract,
		ChainID:               cfg.ChainID,
		DomainName:            cfg.DomainName,
		DomainVersion:         cfg.DomainVersion,
		MakerSecrets:          cfg.MakerSecrets,
		DefaultMakerSecret:    cfg.DefaultMakerSecret,
		VariancePercent:       cfg.VariancePercent,
		RejectDuplicateMakers: cfg.RejectDuplicateMakers,
		Cancel:                cancel,
	}
	svc, err := service.NewService(&svcCfg)
	if err != nil {
		log.Printf("creating rfq service: %v", err)
		return
	}

	go handleTermination(ctx, cancel)
	svc.Run(ctx)
}
