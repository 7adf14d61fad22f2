package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dnldd/fxrfq/shared"
	"github.com/rs/zerolog"
)

// OrchestratorConfig represents the settlement orchestrator configuration.
type OrchestratorConfig struct {
	// Ledger is the authoritative settlement ledger.
	Ledger shared.Ledger
	// Domain binds trade signatures to the ledger deployment.
	Domain *shared.SignatureDomain
	// MakerIdentities are the configured maker agent signing identities.
	MakerIdentities []*shared.Identity
	// DefaultMaker is the fallback maker signing identity, may be nil.
	DefaultMaker *shared.Identity
	// Now returns the current time.
	Now func() time.Time
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *OrchestratorConfig) Validate() error {
	var errs error

	if cfg.Ledger == nil {
		errs = errors.Join(errs, fmt.Errorf("ledger cannot be nil"))
	}
	if cfg.Domain == nil {
		errs = errors.Join(errs, fmt.Errorf("signature domain cannot be nil"))
	}
	if cfg.Now == nil {
		errs = errors.Join(errs, fmt.Errorf("now function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Orchestrator turns accepted quotes into ledger-mediated trades and drives
// them through funding and settlement. Local trade records are advisory
// mirrors; the ledger is always re-read before any state-changing call.
type Orchestrator struct {
	cfg       *OrchestratorConfig
	trades    map[string]*shared.Trade
	tradesMtx sync.RWMutex
}

// NewOrchestrator initializes a new settlement orchestrator.
func NewOrchestrator(cfg *OrchestratorConfig) (*Orchestrator, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating orchestrator config: %w", err)
	}

	return &Orchestrator{
		cfg:    cfg,
		trades: make(map[string]*shared.Trade),
	}, nil
}

// ledgerErr ensures ledger call failures propagate as ledger errors.
func ledgerErr(op string, err error) error {
	var lerr *shared.LedgerError
	if errors.As(err, &lerr) {
		return err
	}

	return &shared.LedgerError{Op: op, Err: err}
}

// resolveMakerIdentity resolves the signing identity for the provided maker
// address, searching the configured agent identities before falling back to
// the default maker identity.
func (o *Orchestrator) resolveMakerIdentity(makerAddress string) (*shared.Identity, error) {
	for _, identity := range o.cfg.MakerIdentities {
		if shared.SameAddress(identity.Address(), makerAddress) {
			return identity, nil
		}
	}

	if o.cfg.DefaultMaker == nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrMakerKeyNotFound, makerAddress)
	}

	if !shared.SameAddress(o.cfg.DefaultMaker.Address(), makerAddress) {
		return nil, fmt.Errorf("%w: expected %s, derived %s", shared.ErrMakerKeyMismatch,
			makerAddress, o.cfg.DefaultMaker.Address())
	}

	return o.cfg.DefaultMaker, nil
}

// CreateTrade creates a ledger trade from an accepted quote. The taker
// signature is produced by the taker's own signing context and only
// format-checked here; the maker countersignature is produced locally. When
// no settlement time override is supplied it is derived from the tenor.
func (o *Orchestrator) CreateTrade(ctx context.Context, rfqID string, quote *shared.Quote,
	takerAddress string, takerSig string, tenor shared.Tenor, settlementTime int64) (*shared.Trade, error) {
	if !shared.WellFormedSignature(takerSig) {
		return nil, shared.NewValidationError("malformed taker signature, expected 0x-prefixed hex")
	}

	if settlementTime <= 0 {
		settlementTime = tenor.SettlementTime(o.cfg.Now())
	}

	identity, err := o.resolveMakerIdentity(quote.MakerAddress)
	if err != nil {
		return nil, err
	}

	fromToken, err := shared.TokenAddress(quote.FromCurrency)
	if err != nil {
		return nil, shared.NewValidationError("resolving source token: %v", err)
	}
	toToken, err := shared.TokenAddress(quote.ToCurrency)
	if err != nil {
		return nil, shared.NewValidationError("resolving destination token: %v", err)
	}

	msg := &shared.TradeMessage{
		Taker:          takerAddress,
		Maker:          quote.MakerAddress,
		FromToken:      fromToken,
		ToToken:        toToken,
		FromAmount:     quote.FromAmount,
		ToAmount:       quote.ToAmount,
		SettlementTime: settlementTime,
		QuoteID:        shared.QuoteDigest(quote.ID),
	}
	makerSig := identity.Sign(msg.Digest(o.cfg.Domain))

	ledgerID, txHash, err := o.cfg.Ledger.CreateTrade(ctx, msg, takerSig, makerSig)
	if err != nil {
		return nil, ledgerErr("createTrade", err)
	}

	trade := &shared.Trade{
		ID:             shared.TradeID(ledgerID),
		RFQID:          rfqID,
		QuoteID:        quote.ID,
		TakerAddress:   takerAddress,
		MakerAddress:   quote.MakerAddress,
		FromCurrency:   quote.FromCurrency,
		ToCurrency:     quote.ToCurrency,
		FromAmount:     quote.FromAmount,
		ToAmount:       quote.ToAmount,
		SettlementTime: settlementTime,
		Status:         shared.TradePending,
		TxHash:         txHash,
	}

	o.tradesMtx.Lock()
	o.trades[trade.ID] = trade
	o.tradesMtx.Unlock()

	o.cfg.Logger.Info().Msgf("trade created on ledger: %s (quote %s, settles at %d)",
		trade.ID, quote.ID, settlementTime)

	return trade, nil
}

// localTrade fetches the local advisory record for the provided trade id.
func (o *Orchestrator) localTrade(tradeID string) (*shared.Trade, bool) {
	o.tradesMtx.RLock()
	trade, ok := o.trades[tradeID]
	o.tradesMtx.RUnlock()

	return trade, ok
}

// displayTrade converts an authoritative ledger record into a display
// trade, merging negotiation fields from the local record when present.
func (o *Orchestrator) displayTrade(lt *shared.LedgerTrade) *shared.Trade {
	trade := &shared.Trade{
		ID:             shared.TradeID(lt.ID),
		TakerAddress:   lt.Taker,
		MakerAddress:   lt.Maker,
		FromCurrency:   shared.TokenCurrency(lt.FromToken),
		ToCurrency:     shared.TokenCurrency(lt.ToToken),
		FromAmount:     lt.FromAmount,
		ToAmount:       lt.ToAmount,
		SettlementTime: lt.SettlementTime,
		Status:         lt.DisplayStatus(),
		TakerFunded:    lt.TakerFunded(),
		MakerFunded:    lt.MakerFunded(),
		Settled:        lt.State == shared.StateSettled,
	}

	if local, ok := o.localTrade(trade.ID); ok {
		trade.RFQID = local.RFQID
		trade.QuoteID = local.QuoteID
		trade.TxHash = local.TxHash
	}

	return trade
}

// Trade fetches the trade with the provided id, reconciled from the ledger.
// The local record is served only when the ledger read fails outright.
func (o *Orchestrator) Trade(ctx context.Context, tradeID string) (*shared.Trade, error) {
	ledgerID, err := shared.ParseTradeID(tradeID)
	if err != nil {
		return nil, shared.NewValidationError("%v", err)
	}

	lt, err := o.cfg.Ledger.Trade(ctx, ledgerID)
	if err != nil {
		if local, ok := o.localTrade(tradeID); ok {
			o.cfg.Logger.Warn().Msgf("ledger read for %s failed, serving local record: %v", tradeID, err)
			return local, nil
		}

		return nil, ledgerErr("getTrade", err)
	}

	return o.displayTrade(lt), nil
}

// checkReady asserts the ledger-verified settlement preconditions: the
// trade is not settled, both escrows cover their committed amounts, and the
// settlement time has been reached. All three gates are independently
// necessary.
func (o *Orchestrator) checkReady(lt *shared.LedgerTrade) error {
	if lt.State == shared.StateSettled {
		return shared.ErrAlreadySettled
	}

	takerFunded := lt.TakerBalance.GreaterThanOrEqual(lt.FromAmount)
	makerFunded := lt.MakerBalance.GreaterThanOrEqual(lt.ToAmount)
	if !takerFunded || !makerFunded {
		return &shared.NotFullyFundedError{TakerFunded: takerFunded, MakerFunded: makerFunded}
	}

	now := o.cfg.Now().Unix()
	if now < lt.SettlementTime {
		return &shared.SettlementTimeNotReachedError{SettlementTime: lt.SettlementTime, Now: now}
	}

	return nil
}

// Settle triggers settlement for the provided trade after re-reading the
// ledger and verifying readiness. Local status is updated opportunistically
// on success.
func (o *Orchestrator) Settle(ctx context.Context, tradeID string) (string, error) {
	ledgerID, err := shared.ParseTradeID(tradeID)
	if err != nil {
		return "", shared.NewValidationError("%v", err)
	}

	lt, err := o.cfg.Ledger.Trade(ctx, ledgerID)
	if err != nil {
		return "", ledgerErr("getTrade", err)
	}

	err = o.checkReady(lt)
	if err != nil {
		return "", err
	}

	txHash, err := o.cfg.Ledger.Settle(ctx, ledgerID)
	if err != nil {
		return "", ledgerErr("settle", err)
	}

	err = o.UpdateStatus(tradeID, shared.TradeSettled, txHash)
	if err != nil {
		// The ledger already settled; a missing local record is not an error.
		o.cfg.Logger.Debug().Msgf("settled trade %s has no local record", tradeID)
	}

	return txHash, nil
}

// fund verifies the caller's role against the ledger record, raises the
// token allowance when insufficient and funds the caller's side of the
// trade with the committed amount.
func (o *Orchestrator) fund(ctx context.Context, tradeID string, userAddress string, asMaker bool) (string, error) {
	ledgerID, err := shared.ParseTradeID(tradeID)
	if err != nil {
		return "", shared.NewValidationError("%v", err)
	}

	lt, err := o.cfg.Ledger.Trade(ctx, ledgerID)
	if err != nil {
		return "", ledgerErr("getTrade", err)
	}

	token, amount, owner := lt.FromToken, lt.FromAmount, lt.Taker
	if asMaker {
		token, amount, owner = lt.ToToken, lt.ToAmount, lt.Maker
	}

	if !shared.SameAddress(owner, userAddress) {
		role := "taker"
		if asMaker {
			role = "maker"
		}
		return "", shared.NewValidationError("only the %s can fund this side of trade %s", role, tradeID)
	}

	allowance, err := o.cfg.Ledger.Allowance(ctx, token, userAddress)
	if err != nil {
		return "", ledgerErr("allowance", err)
	}

	if allowance.LessThan(amount) {
		_, err = o.cfg.Ledger.Approve(ctx, token, userAddress, amount)
		if err != nil {
			return "", ledgerErr("approve", err)
		}
	}

	txHash, err := o.cfg.Ledger.FundTrade(ctx, ledgerID, userAddress, amount)
	if err != nil {
		return "", ledgerErr("fundTrade", err)
	}

	err = o.UpdateStatus(tradeID, shared.TradeFunded, txHash)
	if err != nil {
		o.cfg.Logger.Debug().Msgf("funded trade %s has no local record", tradeID)
	}

	return txHash, nil
}

// FundTaker funds the taker side of the provided trade.
func (o *Orchestrator) FundTaker(ctx context.Context, tradeID string, userAddress string) (string, error) {
	return o.fund(ctx, tradeID, userAddress, false)
}

// FundMaker funds the maker side of the provided trade.
func (o *Orchestrator) FundMaker(ctx context.Context, tradeID string, userAddress string) (string, error) {
	return o.fund(ctx, tradeID, userAddress, true)
}

// TradesByUser returns every ledger trade involving the provided address as
// taker or maker, newest first. The listing reconciles entirely from the
// ledger; local records are served only when the ledger read fails
// outright.
func (o *Orchestrator) TradesByUser(ctx context.Context, userAddress string) ([]*shared.Trade, error) {
	counter, err := o.cfg.Ledger.TradeCounter(ctx)
	if err != nil {
		o.cfg.Logger.Warn().Msgf("reconciling trades from ledger failed, serving local records: %v", err)
		return o.localTradesByUser(userAddress), nil
	}

	trades := make([]*shared.Trade, 0)
	if counter <= 1 {
		return trades, nil
	}

	// Assigned trade ids run from 1 to counter-1.
	for id := counter - 1; id >= 1; id-- {
		lt, err := o.cfg.Ledger.Trade(ctx, id)
		if err != nil {
			o.cfg.Logger.Warn().Msgf("reading ledger trade %d: %v", id, err)
			continue
		}

		if !shared.SameAddress(lt.Taker, userAddress) && !shared.SameAddress(lt.Maker, userAddress) {
			continue
		}

		trades = append(trades, o.displayTrade(lt))
	}

	return trades, nil
}

// localTradesByUser filters the local advisory store by user address,
// newest first.
func (o *Orchestrator) localTradesByUser(userAddress string) []*shared.Trade {
	o.tradesMtx.RLock()
	trades := make([]*shared.Trade, 0, len(o.trades))
	for _, trade := range o.trades {
		if shared.SameAddress(trade.TakerAddress, userAddress) ||
			shared.SameAddress(trade.MakerAddress, userAddress) {
			trades = append(trades, trade)
		}
	}
	o.tradesMtx.RUnlock()

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].ID > trades[j].ID
	})

	return trades
}

// ReadyForSettlement returns the locally tracked trades whose advisory
// status is funded and whose settlement time has passed. Settlement itself
// still re-verifies against the ledger.
func (o *Orchestrator) ReadyForSettlement() []*shared.Trade {
	now := o.cfg.Now().Unix()

	o.tradesMtx.RLock()
	defer o.tradesMtx.RUnlock()

	ready := make([]*shared.Trade, 0)
	for _, trade := range o.trades {
		if trade.Status == shared.TradeFunded && now >= trade.SettlementTime {
			ready = append(ready, trade)
		}
	}

	return ready
}

// UpdateStatus updates the advisory local status of the provided trade.
func (o *Orchestrator) UpdateStatus(tradeID string, status shared.TradeStatus, txHash string) error {
	o.tradesMtx.Lock()
	defer o.tradesMtx.Unlock()

	trade, ok := o.trades[tradeID]
	if !ok {
		return &shared.NotFoundError{Kind: "trade", ID: tradeID}
	}

	trade.Status = status
	if txHash != "" {
		trade.TxHash = txHash
	}

	return nil
}
