package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dnldd/fxrfq/rfq"
	"github.com/dnldd/fxrfq/shared"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// maxDemoUSDCAmount caps USDC to EURC requests while the service runs
// against the demonstration ledger.
var maxDemoUSDCAmount = decimal.NewFromInt(10)

type createRFQRequest struct {
	FromCurrency string          `json:"fromCurrency"`
	FromAmount   decimal.Decimal `json:"fromAmount"`
	ToCurrency   string          `json:"toCurrency"`
	Tenor        shared.Tenor    `json:"tenor"`
	TakerAddress string          `json:"takerAddress"`
}

// handleCreateRFQ handles POST /api/rfq requests.
func (h *Handler) handleCreateRFQ(c *gin.Context) {
	var req createRFQRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.writeError(c, shared.NewValidationError("decoding rfq request: %v", err))
		return
	}

	if req.FromCurrency == shared.CurrencyUSDC && req.ToCurrency == shared.CurrencyEURC &&
		req.FromAmount.GreaterThanOrEqual(maxDemoUSDCAmount) {
		h.writeError(c, shared.NewValidationError("%s to %s requests are restricted to amounts under %s %s",
			shared.CurrencyUSDC, shared.CurrencyEURC, maxDemoUSDCAmount, shared.CurrencyUSDC))
		return
	}

	created, err := h.cfg.CreateRFQ(&rfq.NewRFQ{
		FromCurrency: req.FromCurrency,
		FromAmount:   req.FromAmount,
		ToCurrency:   req.ToCurrency,
		Tenor:        req.Tenor,
		TakerAddress: req.TakerAddress,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

// handlePendingRFQs handles GET /api/rfq/pending requests.
func (h *Handler) handlePendingRFQs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rfqs": h.cfg.PendingRFQs()})
}

// handleAllRFQs handles GET /api/rfq/all requests.
func (h *Handler) handleAllRFQs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rfqs": h.cfg.AllRFQs()})
}

// handleRFQ handles GET /api/rfq/:id requests.
func (h *Handler) handleRFQ(c *gin.Context) {
	req, err := h.cfg.RFQ(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, req)
}

// handleQuotes handles GET /api/quotes/:rfqID requests.
func (h *Handler) handleQuotes(c *gin.Context) {
	rfqID := c.Param("rfqID")
	if _, err := h.cfg.RFQ(rfqID); err != nil {
		h.writeError(c, err)
		return
	}

	// An RFQ with no quotes yet has no best quote, which is not an error.
	best, _ := h.cfg.BestQuote(rfqID)

	c.JSON(http.StatusOK, gin.H{
		"quotes":    h.cfg.Quotes(rfqID),
		"bestQuote": best,
		"count":     h.cfg.QuoteCount(rfqID),
	})
}

type submitQuoteRequest struct {
	RFQID        string  `json:"rfqId"`
	MakerAddress string  `json:"makerAddress"`
	Rate         float64 `json:"rate"`
}

// handleSubmitQuote handles POST /api/quotes requests. External makers may
// quote at their own rate; when none is supplied the current oracle rate is
// used.
func (h *Handler) handleSubmitQuote(c *gin.Context) {
	var req submitQuoteRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.writeError(c, shared.NewValidationError("decoding quote request: %v", err))
		return
	}

	request, err := h.cfg.RFQ(req.RFQID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	rate := req.Rate
	if rate <= 0 {
		rate, err = h.cfg.Rate(ctx, request.FromCurrency, request.ToCurrency)
		if err != nil {
			h.writeError(c, err)
			return
		}
	}

	toAmount := request.FromAmount.Mul(decimal.NewFromFloat(rate)).Round(shared.TokenDecimals)
	quote, err := h.cfg.SubmitQuote(req.RFQID, &rfq.NewQuote{
		MakerAddress: req.MakerAddress,
		FromCurrency: request.FromCurrency,
		ToCurrency:   request.ToCurrency,
		FromAmount:   request.FromAmount,
		ToAmount:     toAmount,
		Rate:         rate,
		Expiry:       h.cfg.Now().Add(shared.QuoteLifetime).Unix(),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, quote)
}

type acceptQuoteRequest struct {
	QuoteID        string `json:"quoteId"`
	TakerAddress   string `json:"takerAddress"`
	TakerSig       string `json:"takerSig"`
	SettlementTime int64  `json:"settlementTime"`
}

// handleAcceptQuote handles POST /api/quotes/:rfqID/accept requests. The
// quote is re-validated against its RFQ before the ledger trade is created,
// acceptance of an expired or mismatched quote must fail before any side
// effect.
func (h *Handler) handleAcceptQuote(c *gin.Context) {
	rfqID := c.Param("rfqID")

	var req acceptQuoteRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.writeError(c, shared.NewValidationError("decoding accept request: %v", err))
		return
	}

	request, err := h.cfg.RFQ(rfqID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	quote, err := h.cfg.Quote(rfqID, req.QuoteID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	err = h.cfg.ValidateQuote(quote, request)
	if err != nil {
		h.writeError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	trade, err := h.cfg.CreateTrade(ctx, rfqID, quote, req.TakerAddress,
		req.TakerSig, request.Tenor, req.SettlementTime)
	if err != nil {
		h.writeError(c, err)
		return
	}

	err = h.cfg.SelectQuote(rfqID, req.QuoteID)
	if err != nil {
		h.cfg.Logger.Warn().Msgf("marking quote %s selected: %v", req.QuoteID, err)
	}

	c.JSON(http.StatusCreated, trade)
}

// handleTrade handles GET /api/settlement/trade/:id requests.
func (h *Handler) handleTrade(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	trade, err := h.cfg.Trade(ctx, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, trade)
}

type fundTradeRequest struct {
	UserAddress string `json:"userAddress"`
	Role        string `json:"role"`
}

// handleFundTrade handles POST /api/settlement/trade/:id/fund requests.
func (h *Handler) handleFundTrade(c *gin.Context) {
	var req fundTradeRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.writeError(c, shared.NewValidationError("decoding fund request: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	var txHash string
	switch strings.ToLower(req.Role) {
	case "taker":
		txHash, err = h.cfg.FundTaker(ctx, c.Param("id"), req.UserAddress)
	case "maker":
		txHash, err = h.cfg.FundMaker(ctx, c.Param("id"), req.UserAddress)
	default:
		err = shared.NewValidationError("unknown funding role %q, expected taker or maker", req.Role)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"txHash": txHash})
}

// handleSettleTrade handles POST /api/settlement/trade/:id/settle requests.
func (h *Handler) handleSettleTrade(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	txHash, err := h.cfg.Settle(ctx, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"txHash": txHash})
}

// handleReadyTrades handles GET /api/settlement/ready requests.
func (h *Handler) handleReadyTrades(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"trades": h.cfg.ReadyTrades()})
}

// handleTradesByUser handles GET /api/settlement/trades requests.
func (h *Handler) handleTradesByUser(c *gin.Context) {
	userAddress := c.Query("userAddress")
	if userAddress == "" {
		h.writeError(c, shared.NewValidationError("userAddress query parameter required"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	trades, err := h.cfg.TradesByUser(ctx, userAddress)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

// handleRate handles GET /api/price/:from/:to requests.
func (h *Handler) handleRate(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	rate, err := h.cfg.Rate(ctx, c.Param("from"), c.Param("to"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"from": c.Param("from"),
		"to":   c.Param("to"),
		"rate": rate,
	})
}

// handleRateHistory handles GET /api/price/:from/:to/history requests.
func (h *Handler) handleRateHistory(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	days := c.DefaultQuery("days", "1")
	interval := c.Query("interval")
	history := h.cfg.History(ctx, c.Param("from"), c.Param("to"), days, interval)

	c.JSON(http.StatusOK, gin.H{"history": history})
}

// handleCandles handles GET /api/candles/:pair requests. The pair segment
// is of the form USDC-EURC.
func (h *Handler) handleCandles(c *gin.Context) {
	pair := c.Param("pair")
	parts := strings.Split(pair, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		h.writeError(c, shared.NewValidationError("malformed pair %q, expected FROM-TO", pair))
		return
	}

	timeframe, err := shared.ParseTimeframe(c.DefaultQuery("timeframe", shared.FiveMinute.String()))
	if err != nil {
		h.writeError(c, shared.NewValidationError("parsing timeframe: %v", err))
		return
	}

	limit := 0
	limitParam := c.Query("limit")
	if limitParam != "" {
		limit, err = strconv.Atoi(limitParam)
		if err != nil || limit < 0 {
			h.writeError(c, shared.NewValidationError("malformed limit %q", limitParam))
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"pair":      pair,
		"timeframe": timeframe.String(),
		"candles":   h.cfg.Candles(timeframe, limit),
	})
}

// handleHealth handles GET /health requests.
func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": h.cfg.Now().UTC().Format(time.RFC3339),
	})
}
