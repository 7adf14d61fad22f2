package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dnldd/fxrfq/rfq"
	"github.com/dnldd/fxrfq/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// testNow is the fixed handler clock used across route tests.
var testNow = time.Unix(1_700_000_000, 0)

func setupHandler(t *testing.T) *Handler {
	t.Helper()

	req := &shared.RFQ{
		ID:           "rfq-1",
		FromCurrency: "USDC",
		ToCurrency:   "EURC",
		FromAmount:   decimal.RequireFromString("5"),
		TakerAddress: "0xtaker",
	}
	quote := &shared.Quote{
		ID:           "quote-1",
		RFQID:        "rfq-1",
		MakerAddress: "0xmaker",
		FromCurrency: "USDC",
		ToCurrency:   "EURC",
		FromAmount:   decimal.RequireFromString("5"),
		ToAmount:     decimal.RequireFromString("4.6"),
	}

	handler, err := NewHandler(&HandlerConfig{
		ListenAddr: ":0",
		CreateRFQ: func(req *rfq.NewRFQ) (*shared.RFQ, error) {
			return &shared.RFQ{
				ID:           "rfq-new",
				FromCurrency: req.FromCurrency,
				FromAmount:   req.FromAmount,
				ToCurrency:   req.ToCurrency,
				Tenor:        req.Tenor,
				TakerAddress: req.TakerAddress,
			}, nil
		},
		PendingRFQs: func() []*shared.RFQ { return []*shared.RFQ{req} },
		AllRFQs:     func() []*shared.RFQ { return []*shared.RFQ{req} },
		RFQ: func(id string) (*shared.RFQ, error) {
			if id != req.ID {
				return nil, &shared.NotFoundError{Kind: "rfq", ID: id}
			}
			return req, nil
		},
		Quotes:     func(rfqID string) []shared.Quote { return []shared.Quote{*quote} },
		BestQuote:  func(rfqID string) (*shared.Quote, error) { return quote, nil },
		QuoteCount: func(rfqID string) int { return 1 },
		SubmitQuote: func(rfqID string, req *rfq.NewQuote) (*shared.Quote, error) {
			submitted := *quote
			submitted.Rate = req.Rate
			submitted.ToAmount = req.ToAmount
			submitted.Expiry = req.Expiry
			return &submitted, nil
		},
		Quote: func(rfqID string, quoteID string) (*shared.Quote, error) {
			if quoteID != quote.ID {
				return nil, &shared.NotFoundError{Kind: "quote", ID: quoteID}
			}
			return quote, nil
		},
		ValidateQuote: func(quote *shared.Quote, req *shared.RFQ) error { return nil },
		SelectQuote:   func(rfqID string, quoteID string) error { return nil },
		CreateTrade: func(ctx context.Context, rfqID string, quote *shared.Quote,
			takerAddress string, takerSig string, tenor shared.Tenor, settlementTime int64) (*shared.Trade, error) {
			return &shared.Trade{ID: "trade_1", RFQID: rfqID, QuoteID: quote.ID}, nil
		},
		Trade: func(ctx context.Context, tradeID string) (*shared.Trade, error) {
			return &shared.Trade{ID: tradeID}, nil
		},
		FundTaker: func(ctx context.Context, tradeID string, userAddress string) (string, error) {
			return "0xfund", nil
		},
		FundMaker: func(ctx context.Context, tradeID string, userAddress string) (string, error) {
			return "0xfund", nil
		},
		Settle: func(ctx context.Context, tradeID string) (string, error) {
			return "", &shared.NotFullyFundedError{TakerFunded: true}
		},
		ReadyTrades: func() []*shared.Trade { return []*shared.Trade{} },
		TradesByUser: func(ctx context.Context, userAddress string) ([]*shared.Trade, error) {
			return []*shared.Trade{}, nil
		},
		Rate: func(ctx context.Context, from string, to string) (float64, error) {
			return 0.92, nil
		},
		History: func(ctx context.Context, from string, to string, days string, interval string) []shared.RatePoint {
			return []shared.RatePoint{}
		},
		Candles: func(timeframe shared.Timeframe, limit int) []shared.Candle {
			return []shared.Candle{{Time: 0, Open: 0.92, High: 0.92, Low: 0.92, Close: 0.92}}
		},
		Now:    func() time.Time { return testNow },
		Logger: &log.Logger,
		Cancel: func() {},
	})
	assert.NoError(t, err)

	return handler
}

func request(handler *Handler, method string, path string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.Router().ServeHTTP(recorder, req)

	return recorder
}

func TestCreateRFQRoute(t *testing.T) {
	handler := setupHandler(t)

	// Ensure a well formed request creates an RFQ.
	resp := request(handler, http.MethodPost, "/api/rfq",
		`{"fromCurrency":"USDC","fromAmount":"5","toCurrency":"EURC","tenor":"instant","takerAddress":"0xtaker"}`)
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "rfq-new", gjson.Get(resp.Body.String(), "id").String())

	// Ensure USDC to EURC requests at or above the demo cap are
	// rejected.
	resp = request(handler, http.MethodPost, "/api/rfq",
		`{"fromCurrency":"USDC","fromAmount":"10","toCurrency":"EURC","tenor":"instant","takerAddress":"0xtaker"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	// The cap does not apply to the reverse direction.
	resp = request(handler, http.MethodPost, "/api/rfq",
		`{"fromCurrency":"EURC","fromAmount":"10","toCurrency":"USDC","tenor":"instant","takerAddress":"0xtaker"}`)
	assert.Equal(t, http.StatusCreated, resp.Code)

	// Ensure malformed bodies are rejected.
	resp = request(handler, http.MethodPost, "/api/rfq", `{"fromAmount":`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestRFQListingRoutes(t *testing.T) {
	handler := setupHandler(t)

	// Ensure the pending and full listings are both served.
	resp := request(handler, http.MethodGet, "/api/rfq/pending", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, int64(1), gjson.Get(resp.Body.String(), "rfqs.#").Int())

	resp = request(handler, http.MethodGet, "/api/rfq/all", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "rfq-1", gjson.Get(resp.Body.String(), "rfqs.0.id").String())
}

func TestSubmitQuoteRoute(t *testing.T) {
	handler := setupHandler(t)

	// Ensure submitted quotes expire one lifetime past the handler clock
	// and carry the maker's rate.
	resp := request(handler, http.MethodPost, "/api/quotes",
		`{"rfqId":"rfq-1","makerAddress":"0xmaker","rate":0.95}`)
	assert.Equal(t, http.StatusCreated, resp.Code)

	body := resp.Body.String()
	assert.Equal(t, testNow.Add(shared.QuoteLifetime).Unix(), gjson.Get(body, "expiry").Int())
	assert.Equal(t, 0.95, gjson.Get(body, "rate").Float())

	// Ensure the oracle rate is used when the maker supplies none.
	resp = request(handler, http.MethodPost, "/api/quotes",
		`{"rfqId":"rfq-1","makerAddress":"0xmaker"}`)
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, 0.92, gjson.Get(resp.Body.String(), "rate").Float())
}

func TestQuoteRoutes(t *testing.T) {
	handler := setupHandler(t)

	// Ensure the quote listing carries the quotes, best quote and count.
	resp := request(handler, http.MethodGet, "/api/quotes/rfq-1", "")
	assert.Equal(t, http.StatusOK, resp.Code)

	body := resp.Body.String()
	assert.Equal(t, int64(1), gjson.Get(body, "count").Int())
	assert.Equal(t, "quote-1", gjson.Get(body, "bestQuote.id").String())
	assert.Equal(t, int64(1), gjson.Get(body, "quotes.#").Int())

	// Ensure an unknown RFQ is not found.
	resp = request(handler, http.MethodGet, "/api/quotes/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	// Ensure acceptance creates a trade.
	resp = request(handler, http.MethodPost, "/api/quotes/rfq-1/accept",
		`{"quoteId":"quote-1","takerAddress":"0xtaker","takerSig":"0xabcd"}`)
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "trade_1", gjson.Get(resp.Body.String(), "id").String())

	// Ensure accepting an unknown quote fails.
	resp = request(handler, http.MethodPost, "/api/quotes/rfq-1/accept",
		`{"quoteId":"missing","takerAddress":"0xtaker","takerSig":"0xabcd"}`)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSettlementRoutes(t *testing.T) {
	handler := setupHandler(t)

	resp := request(handler, http.MethodGet, "/api/settlement/trade/trade_1", "")
	assert.Equal(t, http.StatusOK, resp.Code)

	// Ensure funding requires a known role.
	resp = request(handler, http.MethodPost, "/api/settlement/trade/trade_1/fund",
		`{"userAddress":"0xtaker","role":"taker"}`)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "0xfund", gjson.Get(resp.Body.String(), "txHash").String())

	resp = request(handler, http.MethodPost, "/api/settlement/trade/trade_1/fund",
		`{"userAddress":"0xtaker","role":"observer"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	// Ensure premature settlement maps to a client error.
	resp = request(handler, http.MethodPost, "/api/settlement/trade/trade_1/settle", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	// Ensure the trade listing requires a user address.
	resp = request(handler, http.MethodGet, "/api/settlement/trades", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = request(handler, http.MethodGet, "/api/settlement/trades?userAddress=0xtaker", "")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestHandlerRunListenFailure(t *testing.T) {
	handler := setupHandler(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler.server.Addr = "127.0.0.1:-1"
	handler.cfg.Cancel = cancel

	done := make(chan struct{})
	go func() {
		handler.Run(ctx)
		close(done)
	}()

	// Ensure a failed listen cancels the service context and the run
	// loop winds down.
	select {
	case <-ctx.Done():
	case <-time.After(time.Second * 5):
		t.Fatal("expected a listen failure to cancel the context")
	}

	select {
	case <-done:
	case <-time.After(time.Second * 5):
		t.Fatal("expected the handler run loop to terminate")
	}
}

func TestRateAndCandleRoutes(t *testing.T) {
	handler := setupHandler(t)

	resp := request(handler, http.MethodGet, "/api/price/USDC/EURC", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 0.92, gjson.Get(resp.Body.String(), "rate").Float())

	resp = request(handler, http.MethodGet, "/api/price/USDC/EURC/history", "")
	assert.Equal(t, http.StatusOK, resp.Code)

	// Ensure candle queries validate the pair and timeframe.
	resp = request(handler, http.MethodGet, "/api/candles/USDC-EURC?timeframe=1h", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, int64(1), gjson.Get(resp.Body.String(), "candles.#").Int())

	resp = request(handler, http.MethodGet, "/api/candles/USDCEURC", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = request(handler, http.MethodGet, "/api/candles/USDC-EURC?timeframe=7m", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = request(handler, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.Code)
}
