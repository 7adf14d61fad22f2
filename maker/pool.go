package maker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/fxrfq/rfq"
	"github.com/dnldd/fxrfq/shared"
	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	// quoteInterval is the cadence at which agents poll for pending RFQs.
	quoteInterval = time.Second * 3
	// fundInterval is the cadence at which agents poll for trades to
	// auto-fund.
	fundInterval = time.Second * 10
	// DefaultVariancePercent is the default bound on each agent's random
	// rate perturbation.
	DefaultVariancePercent = 1.0
)

// PoolConfig represents the maker bot pool configuration.
type PoolConfig struct {
	// Identities are the agents' signing identities.
	Identities []*shared.Identity
	// VariancePercent bounds each agent's random rate perturbation.
	VariancePercent float64
	// Pending returns the RFQs still open for negotiation.
	Pending func() []*shared.RFQ
	// HasMakerQuote reports whether a maker already quoted an RFQ.
	HasMakerQuote func(rfqID string, makerAddress string) bool
	// SubmitQuote submits a new quote for an RFQ.
	SubmitQuote func(rfqID string, quote *rfq.NewQuote) (*shared.Quote, error)
	// Rate fetches the current spot rate for a currency pair.
	Rate func(ctx context.Context, from string, to string) (float64, error)
	// Ledger is the authoritative settlement ledger.
	Ledger shared.Ledger
	// Now returns the current time.
	Now func() time.Time
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *PoolConfig) Validate() error {
	var errs error

	if len(cfg.Identities) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no maker identities provided for pool"))
	}
	if cfg.Pending == nil {
		errs = errors.Join(errs, fmt.Errorf("pending function cannot be nil"))
	}
	if cfg.HasMakerQuote == nil {
		errs = errors.Join(errs, fmt.Errorf("has maker quote function cannot be nil"))
	}
	if cfg.SubmitQuote == nil {
		errs = errors.Join(errs, fmt.Errorf("submit quote function cannot be nil"))
	}
	if cfg.Rate == nil {
		errs = errors.Join(errs, fmt.Errorf("rate function cannot be nil"))
	}
	if cfg.Ledger == nil {
		errs = errors.Join(errs, fmt.Errorf("ledger cannot be nil"))
	}
	if cfg.Now == nil {
		errs = errors.Join(errs, fmt.Errorf("now function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Pool runs a set of concurrently scheduled automated maker agents that
// quote pending RFQs and auto-fund trades where they are the matched maker.
type Pool struct {
	cfg          *PoolConfig
	agents       []*Agent
	attempts     map[string]time.Time
	attemptsMtx  sync.Mutex
	jobScheduler gocron.Scheduler
}

// NewPool initializes a new maker bot pool.
func NewPool(cfg *PoolConfig) (*Pool, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating pool config: %w", err)
	}

	if cfg.VariancePercent <= 0 {
		cfg.VariancePercent = DefaultVariancePercent
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating job scheduler: %w", err)
	}

	agents := make([]*Agent, 0, len(cfg.Identities))
	for _, identity := range cfg.Identities {
		agents = append(agents, NewAgent(identity, cfg.VariancePercent))
	}

	return &Pool{
		cfg:          cfg,
		agents:       agents,
		attempts:     make(map[string]time.Time),
		jobScheduler: scheduler,
	}, nil
}

// Addresses returns the ledger addresses of all pool agents.
func (p *Pool) Addresses() []string {
	addresses := make([]string, 0, len(p.agents))
	for _, agent := range p.agents {
		addresses = append(addresses, agent.Address())
	}

	return addresses
}

// attemptKey forms the attempt marker key for an RFQ and agent pair.
func attemptKey(rfqID string, makerAddress string) string {
	return rfqID + "_" + makerAddress
}

// pruneAttempts evicts attempt markers whose RFQ negotiation window has
// closed. Eviction is incremental, keyed to each RFQ's own window, so a
// busy pool never re-quotes in a burst the way a wholesale clear would
// cause.
func (p *Pool) pruneAttempts(now time.Time) {
	p.attemptsMtx.Lock()
	for key, createdAt := range p.attempts {
		if now.Sub(createdAt) > shared.NegotiationWindow {
			delete(p.attempts, key)
		}
	}
	p.attemptsMtx.Unlock()
}

// markAttempt records a quoting attempt, reporting whether it is the first
// for the provided key in this negotiation window.
func (p *Pool) markAttempt(key string, createdAt time.Time) bool {
	p.attemptsMtx.Lock()
	defer p.attemptsMtx.Unlock()

	if _, ok := p.attempts[key]; ok {
		return false
	}

	p.attempts[key] = createdAt
	return true
}

// clearAttempt removes an attempt marker so the next tick can retry.
func (p *Pool) clearAttempt(key string) {
	p.attemptsMtx.Lock()
	delete(p.attempts, key)
	p.attemptsMtx.Unlock()
}

// quoteAgent prices the provided RFQ with the agent's strategy and submits
// the resulting quote.
func (p *Pool) quoteAgent(ctx context.Context, agent *Agent, req *shared.RFQ) error {
	marketRate, err := p.cfg.Rate(ctx, req.FromCurrency, req.ToCurrency)
	if err != nil {
		return fmt.Errorf("fetching %s/%s rate: %w", req.FromCurrency, req.ToCurrency, err)
	}

	adjustedRate := agent.AdjustRate(marketRate)
	toAmount := req.FromAmount.Mul(decimal.NewFromFloat(adjustedRate)).Round(shared.TokenDecimals)

	_, err = p.cfg.SubmitQuote(req.ID, &rfq.NewQuote{
		MakerAddress: agent.Address(),
		FromCurrency: req.FromCurrency,
		ToCurrency:   req.ToCurrency,
		FromAmount:   req.FromAmount,
		ToAmount:     toAmount,
		Rate:         adjustedRate,
		Expiry:       p.cfg.Now().Add(shared.QuoteLifetime).Unix(),
	})
	if err != nil {
		return fmt.Errorf("submitting quote: %w", err)
	}

	return nil
}

// quoteTick has every agent quote each pending RFQ it has not already
// quoted or attempted in this negotiation window. Submission failures clear
// the attempt marker so the next tick retries.
func (p *Pool) quoteTick() {
	ctx := context.Background()
	p.pruneAttempts(p.cfg.Now())

	pending := p.cfg.Pending()
	for idx := range pending {
		req := pending[idx]

		for _, agent := range p.agents {
			if p.cfg.HasMakerQuote(req.ID, agent.Address()) {
				continue
			}

			key := attemptKey(req.ID, agent.Address())
			if !p.markAttempt(key, req.CreatedAt) {
				continue
			}

			err := p.quoteAgent(ctx, agent, req)
			if err != nil {
				p.cfg.Logger.Error().Msgf("agent %s quoting rfq %s: %v", agent.Address(), req.ID, err)
				p.clearAttempt(key)
				continue
			}

			p.cfg.Logger.Info().Msgf("agent %s quoted rfq %s", agent.Address(), req.ID)
		}
	}
}

// agentFor returns the pool agent whose address matches the provided maker
// address, if any.
func (p *Pool) agentFor(makerAddress string) *Agent {
	for _, agent := range p.agents {
		if shared.SameAddress(agent.Address(), makerAddress) {
			return agent
		}
	}

	return nil
}

// fundAgent funds the maker side of the provided ledger trade on behalf of
// the agent, raising the token allowance first when insufficient.
func (p *Pool) fundAgent(ctx context.Context, agent *Agent, lt *shared.LedgerTrade) error {
	allowance, err := p.cfg.Ledger.Allowance(ctx, lt.ToToken, agent.Address())
	if err != nil {
		return fmt.Errorf("reading allowance: %w", err)
	}

	if allowance.LessThan(lt.ToAmount) {
		_, err = p.cfg.Ledger.Approve(ctx, lt.ToToken, agent.Address(), lt.ToAmount)
		if err != nil {
			return fmt.Errorf("raising allowance: %w", err)
		}
	}

	_, err = p.cfg.Ledger.FundTrade(ctx, lt.ID, agent.Address(), lt.ToAmount)
	if err != nil {
		return fmt.Errorf("funding trade: %w", err)
	}

	return nil
}

// fundTick enumerates all ledger trades and funds the maker side of those
// funded by the taker only, where an agent is the matched maker. Failures
// are logged and retried on the next tick, so funding is
// eventually-attempted rather than guaranteed.
func (p *Pool) fundTick() {
	ctx := context.Background()

	counter, err := p.cfg.Ledger.TradeCounter(ctx)
	if err != nil {
		p.cfg.Logger.Error().Msgf("reading trade counter: %v", err)
		return
	}

	for id := uint64(1); id < counter; id++ {
		lt, err := p.cfg.Ledger.Trade(ctx, id)
		if err != nil {
			p.cfg.Logger.Error().Msgf("reading ledger trade %d: %v", id, err)
			continue
		}

		if lt.State != shared.StateFundedByTaker {
			continue
		}

		agent := p.agentFor(lt.Maker)
		if agent == nil {
			continue
		}

		err = p.fundAgent(ctx, agent, lt)
		if err != nil {
			p.cfg.Logger.Warn().Msgf("agent %s auto-funding trade %d: %v, ledger record: %s",
				agent.Address(), id, err, spew.Sdump(lt))
			continue
		}

		p.cfg.Logger.Info().Msgf("agent %s auto-funded trade %d", agent.Address(), id)
	}
}

// Run manages the lifecycle processes of the maker bot pool.
func (p *Pool) Run(ctx context.Context) {
	_, err := p.jobScheduler.NewJob(gocron.DurationJob(quoteInterval),
		gocron.NewTask(p.quoteTick), gocron.WithStartAt(gocron.WithStartImmediately()))
	if err != nil {
		p.cfg.Logger.Error().Msgf("creating quote polling job: %v", err)
		return
	}

	_, err = p.jobScheduler.NewJob(gocron.DurationJob(fundInterval),
		gocron.NewTask(p.fundTick), gocron.WithStartAt(gocron.WithStartImmediately()))
	if err != nil {
		p.cfg.Logger.Error().Msgf("creating auto-fund polling job: %v", err)
		return
	}

	p.jobScheduler.Start()
	<-ctx.Done()

	err = p.jobScheduler.Shutdown()
	if err != nil {
		p.cfg.Logger.Error().Msgf("shutting down pool scheduler: %v", err)
	}
}
