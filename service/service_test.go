package service

import (
	"context"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
)

const testSecret = "1111111111111111111111111111111111111111111111111111111111111111"

func TestServiceConfigValidate(t *testing.T) {
	cancel := func() {}

	// Ensure an incomplete config is rejected.
	cfg := &ServiceConfig{Cancel: cancel}
	assert.Error(t, cfg.Validate())

	cfg = &ServiceConfig{
		ListenAddr:         ":0",
		LedgerEndpoint:     "http://127.0.0.1:9650",
		SettlementContract: "0x1111111111111111111111111111111111111111",
		DomainName:         "FXSettlement",
		DomainVersion:      "1",
		DefaultMakerSecret: testSecret,
		Cancel:             cancel,
	}
	assert.NoError(t, cfg.Validate())
}

func TestServiceGracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := &ServiceConfig{
		ListenAddr:         ":0",
		LedgerEndpoint:     "http://127.0.0.1:9650",
		SettlementContract: "0x1111111111111111111111111111111111111111",
		ChainID:            31337,
		DomainName:         "FXSettlement",
		DomainVersion:      "1",
		MakerSecrets: []string{testSecret,
			"2222222222222222222222222222222222222222222222222222222222222222"},
		Cancel: cancel,
	}

	svc, err := NewService(cfg)
	assert.NoError(t, err)

	// Ensure the service can be run and gracefully terminated.
	time.AfterFunc(time.Second*2, func() {
		cancel()
	})
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	<-done
}
