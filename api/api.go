package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dnldd/fxrfq/rfq"
	"github.com/dnldd/fxrfq/shared"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	// requestTimeout bounds the handling time of a single request.
	requestTimeout = time.Second * 30
	// shutdownTimeout bounds the drain time of in-flight requests on
	// shutdown.
	shutdownTimeout = time.Second * 5
)

// HandlerConfig represents the http handler configuration.
type HandlerConfig struct {
	// ListenAddr is the address the http server listens on.
	ListenAddr string
	// CreateRFQ registers a new request for quote.
	CreateRFQ func(req *rfq.NewRFQ) (*shared.RFQ, error)
	// PendingRFQs returns the RFQs still open for negotiation.
	PendingRFQs func() []*shared.RFQ
	// AllRFQs returns every registered RFQ, expired ones included.
	AllRFQs func() []*shared.RFQ
	// RFQ fetches an RFQ by id.
	RFQ func(id string) (*shared.RFQ, error)
	// Quotes returns all quotes held for an RFQ.
	Quotes func(rfqID string) []shared.Quote
	// BestQuote returns the highest-payout quote for an RFQ.
	BestQuote func(rfqID string) (*shared.Quote, error)
	// QuoteCount returns the number of quotes held for an RFQ.
	QuoteCount func(rfqID string) int
	// SubmitQuote submits a new quote for an RFQ.
	SubmitQuote func(rfqID string, quote *rfq.NewQuote) (*shared.Quote, error)
	// Quote fetches a quote by id.
	Quote func(rfqID string, quoteID string) (*shared.Quote, error)
	// ValidateQuote asserts a quote is still acceptable for its RFQ.
	ValidateQuote func(quote *shared.Quote, req *shared.RFQ) error
	// SelectQuote marks a quote as the accepted one for its RFQ.
	SelectQuote func(rfqID string, quoteID string) error
	// CreateTrade creates a ledger trade from an accepted quote.
	CreateTrade func(ctx context.Context, rfqID string, quote *shared.Quote,
		takerAddress string, takerSig string, tenor shared.Tenor, settlementTime int64) (*shared.Trade, error)
	// Trade fetches a trade by id.
	Trade func(ctx context.Context, tradeID string) (*shared.Trade, error)
	// FundTaker escrows the taker side of a trade.
	FundTaker func(ctx context.Context, tradeID string, userAddress string) (string, error)
	// FundMaker escrows the maker side of a trade.
	FundMaker func(ctx context.Context, tradeID string, userAddress string) (string, error)
	// Settle settles a fully funded, matured trade.
	Settle func(ctx context.Context, tradeID string) (string, error)
	// ReadyTrades returns locally tracked trades eligible for settlement.
	ReadyTrades func() []*shared.Trade
	// TradesByUser returns all trades a user participates in.
	TradesByUser func(ctx context.Context, userAddress string) ([]*shared.Trade, error)
	// Rate fetches the current spot rate for a currency pair.
	Rate func(ctx context.Context, from string, to string) (float64, error)
	// History fetches the historical rate series for a currency pair.
	History func(ctx context.Context, from string, to string, days string, interval string) []shared.RatePoint
	// Candles returns recorded rate candles for a timeframe.
	Candles func(timeframe shared.Timeframe, limit int) []shared.Candle
	// Now returns the current time.
	Now func() time.Time
	// Logger represents the application logger.
	Logger *zerolog.Logger
	// Cancel is the context cancellation function.
	Cancel context.CancelFunc
}

// Validate asserts the config sane inputs.
func (cfg *HandlerConfig) Validate() error {
	var errs error

	if cfg.ListenAddr == "" {
		errs = errors.Join(errs, fmt.Errorf("listen address cannot be empty"))
	}
	if cfg.CreateRFQ == nil {
		errs = errors.Join(errs, fmt.Errorf("create rfq function cannot be nil"))
	}
	if cfg.PendingRFQs == nil {
		errs = errors.Join(errs, fmt.Errorf("pending rfqs function cannot be nil"))
	}
	if cfg.AllRFQs == nil {
		errs = errors.Join(errs, fmt.Errorf("all rfqs function cannot be nil"))
	}
	if cfg.RFQ == nil {
		errs = errors.Join(errs, fmt.Errorf("rfq function cannot be nil"))
	}
	if cfg.Quotes == nil {
		errs = errors.Join(errs, fmt.Errorf("quotes function cannot be nil"))
	}
	if cfg.BestQuote == nil {
		errs = errors.Join(errs, fmt.Errorf("best quote function cannot be nil"))
	}
	if cfg.QuoteCount == nil {
		errs = errors.Join(errs, fmt.Errorf("quote count function cannot be nil"))
	}
	if cfg.SubmitQuote == nil {
		errs = errors.Join(errs, fmt.Errorf("submit quote function cannot be nil"))
	}
	if cfg.Quote == nil {
		errs = errors.Join(errs, fmt.Errorf("quote function cannot be nil"))
	}
	if cfg.ValidateQuote == nil {
		errs = errors.Join(errs, fmt.Errorf("validate quote function cannot be nil"))
	}
	if cfg.SelectQuote == nil {
		errs = errors.Join(errs, fmt.Errorf("select quote function cannot be nil"))
	}
	if cfg.CreateTrade == nil {
		errs = errors.Join(errs, fmt.Errorf("create trade function cannot be nil"))
	}
	if cfg.Trade == nil {
		errs = errors.Join(errs, fmt.Errorf("trade function cannot be nil"))
	}
	if cfg.FundTaker == nil {
		errs = errors.Join(errs, fmt.Errorf("fund taker function cannot be nil"))
	}
	if cfg.FundMaker == nil {
		errs = errors.Join(errs, fmt.Errorf("fund maker function cannot be nil"))
	}
	if cfg.Settle == nil {
		errs = errors.Join(errs, fmt.Errorf("settle function cannot be nil"))
	}
	if cfg.ReadyTrades == nil {
		errs = errors.Join(errs, fmt.Errorf("ready trades function cannot be nil"))
	}
	if cfg.TradesByUser == nil {
		errs = errors.Join(errs, fmt.Errorf("trades by user function cannot be nil"))
	}
	if cfg.Rate == nil {
		errs = errors.Join(errs, fmt.Errorf("rate function cannot be nil"))
	}
	if cfg.History == nil {
		errs = errors.Join(errs, fmt.Errorf("history function cannot be nil"))
	}
	if cfg.Candles == nil {
		errs = errors.Join(errs, fmt.Errorf("candles function cannot be nil"))
	}
	if cfg.Now == nil {
		errs = errors.Join(errs, fmt.Errorf("now function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}
	if cfg.Cancel == nil {
		errs = errors.Join(errs, fmt.Errorf("context cancellation function cannot be nil"))
	}

	return errs
}

// Handler exposes the negotiation and settlement surfaces over http.
type Handler struct {
	cfg    *HandlerConfig
	server *http.Server
}

// NewHandler initializes a new http handler.
func NewHandler(cfg *HandlerConfig) (*Handler, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating handler config: %w", err)
	}

	h := &Handler{cfg: cfg}
	h.server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: h.Router(),
	}

	return h, nil
}

// Router configures all api routes.
func (h *Handler) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/api/rfq", h.handleCreateRFQ)
	router.GET("/api/rfq/pending", h.handlePendingRFQs)
	router.GET("/api/rfq/all", h.handleAllRFQs)
	router.GET("/api/rfq/:id", h.handleRFQ)

	router.GET("/api/quotes/:rfqID", h.handleQuotes)
	router.POST("/api/quotes", h.handleSubmitQuote)
	router.POST("/api/quotes/:rfqID/accept", h.handleAcceptQuote)

	router.GET("/api/settlement/trade/:id", h.handleTrade)
	router.POST("/api/settlement/trade/:id/fund", h.handleFundTrade)
	router.POST("/api/settlement/trade/:id/settle", h.handleSettleTrade)
	router.GET("/api/settlement/ready", h.handleReadyTrades)
	router.GET("/api/settlement/trades", h.handleTradesByUser)

	router.GET("/api/price/:from/:to", h.handleRate)
	router.GET("/api/price/:from/:to/history", h.handleRateHistory)
	router.GET("/api/candles/:pair", h.handleCandles)

	router.GET("/health", h.handleHealth)

	return router
}

// writeError maps domain errors to http status codes. Malformed inputs and
// premature settlement attempts are client errors, ledger and rate source
// failures are upstream errors.
func (h *Handler) writeError(c *gin.Context, err error) {
	var validationErr *shared.ValidationError
	var notFoundErr *shared.NotFoundError
	var ledgerErr *shared.LedgerError
	var notFundedErr *shared.NotFullyFundedError
	var notReachedErr *shared.SettlementTimeNotReachedError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &validationErr), errors.As(err, &notFundedErr),
		errors.As(err, &notReachedErr), errors.Is(err, shared.ErrAlreadySettled):
		status = http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		status = http.StatusNotFound
	case errors.As(err, &ledgerErr), errors.Is(err, shared.ErrRateUnavailable):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		h.cfg.Logger.Error().Msgf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

// Run manages the lifecycle processes of the http handler.
func (h *Handler) Run(ctx context.Context) {
	go func() {
		err := h.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.cfg.Logger.Error().Msgf("http server terminated: %v", err)
			h.cfg.Cancel()
		}
	}()

	h.cfg.Logger.Info().Msgf("http server listening on %s", h.cfg.ListenAddr)
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := h.server.Shutdown(shutdownCtx)
	if err != nil {
		h.cfg.Logger.Error().Msgf("shutting down http server: %v", err)
	}
}
