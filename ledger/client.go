package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dnldd/fxrfq/shared"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// ClientConfig represents the configuration for the ledger gateway client.
type ClientConfig struct {
	// Endpoint is the ledger gateway base url.
	Endpoint string
	// Contract is the settlement contract address trades are escrowed by.
	Contract string
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ClientConfig) Validate() error {
	var errs error

	if cfg.Endpoint == "" {
		errs = errors.Join(errs, fmt.Errorf("ledger endpoint cannot be an empty string"))
	}
	if cfg.Contract == "" {
		errs = errors.Join(errs, fmt.Errorf("settlement contract address cannot be an empty string"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Client represents the settlement ledger gateway client. Ledger calls have
// a timeout imposed at the transport boundary only; callers treat an absent
// response as still pending until the next reconciliation read.
type Client struct {
	cfg   *ClientConfig
	httpc http.Client
}

// Ensure the Client implements the Ledger interface.
var _ shared.Ledger = (*Client)(nil)

// NewClient initializes a new ledger gateway client.
func NewClient(cfg *ClientConfig) (*Client, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating ledger client config: %w", err)
	}

	return &Client{
		cfg:   cfg,
		httpc: http.Client{Timeout: time.Second * 5},
	}, nil
}

// call performs a gateway request and returns the response body.
func (c *Client) call(ctx context.Context, op string, method string, path string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, &shared.LedgerError{Op: op, Err: fmt.Errorf("encoding payload: %w", err)}
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.Endpoint+path, body)
	if err != nil {
		return nil, &shared.LedgerError{Op: op, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &shared.LedgerError{Op: op, Err: err}
	}

	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &shared.LedgerError{Op: op, Err: fmt.Errorf("reading response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		reason := gjson.GetBytes(respBody, "error").String()
		if reason == "" {
			reason = fmt.Sprintf("gateway responded with status %d", resp.StatusCode)
		}
		return nil, &shared.LedgerError{Op: op, Err: errors.New(reason)}
	}

	return respBody, nil
}

// CreateTrade submits the signed trade message to the ledger. The new trade
// id is extracted from the creation event, falling back to reading the
// post-creation counter when the event cannot be located.
func (c *Client) CreateTrade(ctx context.Context, msg *shared.TradeMessage, takerSig string, makerSig string) (uint64, string, error) {
	payload := map[string]interface{}{
		"contract":       c.cfg.Contract,
		"taker":          msg.Taker,
		"maker":          msg.Maker,
		"fromToken":      msg.FromToken,
		"toToken":        msg.ToToken,
		"fromAmount":     shared.ToBaseUnits(msg.FromAmount),
		"toAmount":       shared.ToBaseUnits(msg.ToAmount),
		"settlementTime": msg.SettlementTime,
		"quoteId":        msg.QuoteID,
		"takerSig":       takerSig,
		"makerSig":       makerSig,
	}

	body, err := c.call(ctx, "createTrade", http.MethodPost, "/trades", payload)
	if err != nil {
		return 0, "", err
	}

	txHash := gjson.GetBytes(body, "txHash").String()

	var tradeID uint64
	event := gjson.GetBytes(body, `events.#(name=="TradeCreated").tradeId`)
	if event.Exists() {
		tradeID = event.Uint()
	} else {
		counter, err := c.TradeCounter(ctx)
		if err != nil {
			return 0, "", err
		}

		c.cfg.Logger.Warn().Msgf("trade creation event missing, derived trade id %d from counter", counter-1)
		tradeID = counter - 1
	}

	return tradeID, txHash, nil
}

// FundTrade transfers the provided amount of the caller's token into escrow
// for the trade.
func (c *Client) FundTrade(ctx context.Context, tradeID uint64, caller string, amount decimal.Decimal) (string, error) {
	payload := map[string]interface{}{
		"contract": c.cfg.Contract,
		"caller":   caller,
		"amount":   shared.ToBaseUnits(amount),
	}

	body, err := c.call(ctx, "fundTrade", http.MethodPost, fmt.Sprintf("/trades/%d/fund", tradeID), payload)
	if err != nil {
		return "", err
	}

	return gjson.GetBytes(body, "txHash").String(), nil
}

// Settle transfers both escrowed amounts to their counterparties.
func (c *Client) Settle(ctx context.Context, tradeID uint64) (string, error) {
	payload := map[string]interface{}{
		"contract": c.cfg.Contract,
	}

	body, err := c.call(ctx, "settle", http.MethodPost, fmt.Sprintf("/trades/%d/settle", tradeID), payload)
	if err != nil {
		return "", err
	}

	return gjson.GetBytes(body, "txHash").String(), nil
}

// Trade reads the authoritative trade record from the ledger.
func (c *Client) Trade(ctx context.Context, tradeID uint64) (*shared.LedgerTrade, error) {
	body, err := c.call(ctx, "getTrade", http.MethodGet, fmt.Sprintf("/trades/%d", tradeID), nil)
	if err != nil {
		return nil, err
	}

	record := gjson.GetBytes(body, "trade")
	if !record.Exists() {
		return nil, &shared.LedgerError{Op: "getTrade", Err: fmt.Errorf("no trade record in response")}
	}

	trade := &shared.LedgerTrade{
		ID:             tradeID,
		Taker:          record.Get("taker").String(),
		Maker:          record.Get("maker").String(),
		FromToken:      record.Get("fromToken").String(),
		ToToken:        record.Get("toToken").String(),
		FromAmount:     shared.FromBaseUnits(record.Get("fromAmount").Int()),
		ToAmount:       shared.FromBaseUnits(record.Get("toAmount").Int()),
		SettlementTime: record.Get("settlementTime").Int(),
		QuoteID:        record.Get("quoteId").String(),
		State:          shared.TradeState(record.Get("state").Int()),
		TakerBalance:   shared.FromBaseUnits(record.Get("takerBalance").Int()),
		MakerBalance:   shared.FromBaseUnits(record.Get("makerBalance").Int()),
	}

	return trade, nil
}

// TradeCounter reads the monotonically increasing count of created trades.
func (c *Client) TradeCounter(ctx context.Context) (uint64, error) {
	body, err := c.call(ctx, "tradeCounter", http.MethodGet, "/counter", nil)
	if err != nil {
		return 0, err
	}

	return gjson.GetBytes(body, "counter").Uint(), nil
}

// Allowance reads the owner's token approval for the settlement contract.
func (c *Client) Allowance(ctx context.Context, token string, owner string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Add("token", token)
	params.Add("owner", owner)
	params.Add("spender", c.cfg.Contract)

	body, err := c.call(ctx, "allowance", http.MethodGet, "/allowance?"+params.Encode(), nil)
	if err != nil {
		return decimal.Zero, err
	}

	return shared.FromBaseUnits(gjson.GetBytes(body, "allowance").Int()), nil
}

// Approve raises the owner's token approval for the settlement contract to
// the provided amount.
func (c *Client) Approve(ctx context.Context, token string, owner string, amount decimal.Decimal) (string, error) {
	payload := map[string]interface{}{
		"token":   token,
		"owner":   owner,
		"spender": c.cfg.Contract,
		"amount":  shared.ToBaseUnits(amount),
	}

	body, err := c.call(ctx, "approve", http.MethodPost, "/approve", payload)
	if err != nil {
		return "", err
	}

	return gjson.GetBytes(body, "txHash").String(), nil
}
