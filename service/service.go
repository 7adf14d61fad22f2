package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dnldd/fxrfq/api"
	"github.com/dnldd/fxrfq/ledger"
	"github.com/dnldd/fxrfq/maker"
	"github.com/dnldd/fxrfq/rate"
	"github.com/dnldd/fxrfq/rfq"
	"github.com/dnldd/fxrfq/settlement"
	"github.com/dnldd/fxrfq/shared"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

// ServiceConfig represents the configuration struct for the rfq service.
type ServiceConfig struct {
	// ListenAddr is the address the http server listens on.
	ListenAddr string
	// CoinGeckoAPIKey is the optional CoinGecko pro api key.
	CoinGeckoAPIKey string
	// LedgerEndpoint is the settlement ledger gateway base url.
	LedgerEndpoint string
	// SettlementContract is the settlement contract address.
	SettlementContract string
	// ChainID is the settlement chain id signatures are bound to.
	ChainID uint64
	// DomainName is the signature domain name.
	DomainName string
	// DomainVersion is the signature domain version.
	DomainVersion string
	// MakerSecrets are the automated maker agents' signing secrets.
	MakerSecrets []string
	// DefaultMakerSecret is the fallback maker signing secret.
	DefaultMakerSecret string
	// VariancePercent bounds each agent's random rate perturbation.
	VariancePercent float64
	// RejectDuplicateMakers enforces one quote per maker per RFQ.
	RejectDuplicateMakers bool
	// Cancel is the context cancellation function.
	Cancel context.CancelFunc
}

// Validate asserts the config sane inputs.
func (cfg *ServiceConfig) Validate() error {
	var errs error

	if cfg.ListenAddr == "" {
		errs = errors.Join(errs, fmt.Errorf("listen address cannot be an empty string"))
	}
	if cfg.LedgerEndpoint == "" {
		errs = errors.Join(errs, fmt.Errorf("ledger endpoint cannot be an empty string"))
	}
	if cfg.SettlementContract == "" {
		errs = errors.Join(errs, fmt.Errorf("settlement contract cannot be an empty string"))
	}
	if cfg.DomainName == "" {
		errs = errors.Join(errs, fmt.Errorf("signature domain name cannot be an empty string"))
	}
	if cfg.DomainVersion == "" {
		errs = errors.Join(errs, fmt.Errorf("signature domain version cannot be an empty string"))
	}
	if len(cfg.MakerSecrets) == 0 && cfg.DefaultMakerSecret == "" {
		errs = errors.Join(errs, fmt.Errorf("no maker signing secrets provided for service"))
	}
	if cfg.Cancel == nil {
		errs = errors.Join(errs, fmt.Errorf("context cancellation function cannot be nil"))
	}

	return errs
}

// Service represents the rfq negotiation and settlement service.
type Service struct {
	cfg          *ServiceConfig
	oracle       *rate.Oracle
	recorder     *rate.Recorder
	registry     *rfq.Registry
	book         *rfq.Book
	orchestrator *settlement.Orchestrator
	pool         *maker.Pool
	handler      *api.Handler
	logger       *zerolog.Logger
	wg           sync.WaitGroup
}

// NewService initializes a new rfq service.
func NewService(cfg *ServiceConfig) (*Service, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating service config: %w", err)
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logger := log.With().Str("service", "fxrfq").Logger()

	identities := make([]*shared.Identity, 0, len(cfg.MakerSecrets))
	for idx, secret := range cfg.MakerSecrets {
		identity, err := shared.NewIdentity(secret)
		if err != nil {
			return nil, fmt.Errorf("creating maker identity %d: %w", idx, err)
		}

		identities = append(identities, identity)
	}

	var defaultMaker *shared.Identity
	if cfg.DefaultMakerSecret != "" {
		defaultMaker, err = shared.NewIdentity(cfg.DefaultMakerSecret)
		if err != nil {
			return nil, fmt.Errorf("creating default maker identity: %w", err)
		}
	}
	if len(identities) == 0 {
		identities = append(identities, defaultMaker)
	}

	ledgerLogger := logger.With().Str("component", "ledger").Logger()
	ledgerClient, err := ledger.NewClient(&ledger.ClientConfig{
		Endpoint: cfg.LedgerEndpoint,
		Contract: cfg.SettlementContract,
		Logger:   &ledgerLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating ledger client: %w", err)
	}

	coinGecko := rate.NewCoinGeckoClient(&rate.CoinGeckoConfig{
		APIKey:  cfg.CoinGeckoAPIKey,
		BaseURL: rate.BaseURL,
	})

	oracleLogger := logger.With().Str("component", "oracle").Logger()
	oracle, err := rate.NewOracle(&rate.OracleConfig{
		PriceSource: coinGecko,
		Now:         time.Now,
		Logger:      &oracleLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating rate oracle: %w", err)
	}

	recorderLogger := logger.With().Str("component", "recorder").Logger()
	recorder, err := rate.NewRecorder(&rate.RecorderConfig{
		FromCurrency: shared.CurrencyUSDC,
		ToCurrency:   shared.CurrencyEURC,
		Rate:         oracle.Rate,
		Now:          time.Now,
		Logger:       &recorderLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating candle recorder: %w", err)
	}

	bookLogger := logger.With().Str("component", "quotebook").Logger()
	book, err := rfq.NewBook(&rfq.BookConfig{
		RejectDuplicateMakers: cfg.RejectDuplicateMakers,
		Now:                   time.Now,
		Logger:                &bookLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating quote book: %w", err)
	}

	registryLogger := logger.With().Str("component", "registry").Logger()
	registry, err := rfq.NewRegistry(&rfq.RegistryConfig{
		QuoteCount: book.Count,
		InitQuotes: book.Init,
		Now:        time.Now,
		Logger:     &registryLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating rfq registry: %w", err)
	}

	domain := &shared.SignatureDomain{
		Name:              cfg.DomainName,
		Version:           cfg.DomainVersion,
		ChainID:           cfg.ChainID,
		VerifyingContract: cfg.SettlementContract,
	}

	orchestratorLogger := logger.With().Str("component", "orchestrator").Logger()
	orchestrator, err := settlement.NewOrchestrator(&settlement.OrchestratorConfig{
		Ledger:          ledgerClient,
		Domain:          domain,
		MakerIdentities: identities,
		DefaultMaker:    defaultMaker,
		Now:             time.Now,
		Logger:          &orchestratorLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating settlement orchestrator: %w", err)
	}

	poolLogger := logger.With().Str("component", "makerpool").Logger()
	pool, err := maker.NewPool(&maker.PoolConfig{
		Identities:      identities,
		VariancePercent: cfg.VariancePercent,
		Pending:         registry.Pending,
		HasMakerQuote:   book.HasMakerQuote,
		SubmitQuote:     book.Add,
		Rate:            oracle.Rate,
		Ledger:          ledgerClient,
		Now:             time.Now,
		Logger:          &poolLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating maker pool: %w", err)
	}

	handlerLogger := logger.With().Str("component", "api").Logger()
	handler, err := api.NewHandler(&api.HandlerConfig{
		ListenAddr:    cfg.ListenAddr,
		CreateRFQ:     registry.Create,
		PendingRFQs:   registry.Pending,
		AllRFQs:       registry.All,
		RFQ:           registry.RFQ,
		Quotes:        book.Quotes,
		BestQuote:     book.Best,
		QuoteCount:    book.Count,
		SubmitQuote:   book.Add,
		Quote:         book.Quote,
		ValidateQuote: book.Validate,
		SelectQuote:   book.Select,
		CreateTrade:   orchestrator.CreateTrade,
		Trade:         orchestrator.Trade,
		FundTaker:     orchestrator.FundTaker,
		FundMaker:     orchestrator.FundMaker,
		Settle:        orchestrator.Settle,
		ReadyTrades:   orchestrator.ReadyForSettlement,
		TradesByUser:  orchestrator.TradesByUser,
		Rate:          oracle.Rate,
		History:       oracle.History,
		Candles:       recorder.Candles,
		Now:           time.Now,
		Logger:        &handlerLogger,
		Cancel:        cfg.Cancel,
	})
	if err != nil {
		return nil, fmt.Errorf("creating http handler: %w", err)
	}

	service := &Service{
		cfg:          cfg,
		oracle:       oracle,
		recorder:     recorder,
		registry:     registry,
		book:         book,
		orchestrator: orchestrator,
		pool:         pool,
		handler:      handler,
		logger:       &logger,
	}

	return service, nil
}

// Run handles the lifecycle processes of the rfq service.
func (s *Service) Run(ctx context.Context) {
	s.wg.Add(3)

	go func() {
		s.recorder.Run(ctx)
		s.wg.Done()
	}()

	go func() {
		s.pool.Run(ctx)
		s.wg.Done()
	}()

	go func() {
		s.handler.Run(ctx)
		s.wg.Done()
	}()

	s.wg.Wait()
}
