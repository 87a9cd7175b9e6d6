package broker

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"robinhood-trade-bot-go/internal/config"
	"robinhood-trade-bot-go/internal/strategy"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	baseURL = "https://api.robinhood.com"

	// Public OAuth client id used by the official web app.
	oauthClientID = "c82SH0WZOsabOXGP2sxqcj34FxkvfnWRZBKlBjFS"

	orderTypeMarket = "market"
	timeInForceGFD  = "gfd" // good for day
)

// RobinhoodClient is a client for the Robinhood REST API.
// It implements the Client interface.
type RobinhoodClient struct {
	client      *resty.Client
	username    string
	password    string
	mfaSecret   string
	deviceToken string
	logger      *zap.Logger
	limiter     *rate.Limiter

	// sessionMu serializes token refresh and account discovery; it is a
	// deliberately short critical section, separate from any risk lock.
	sessionMu  sync.Mutex
	token      string
	accountURL string

	// instrument URL cache, instruments never change
	instMu      sync.Mutex
	instruments map[string]string
}

var _ Client = (*RobinhoodClient)(nil)

// NewRobinhoodClient creates a Robinhood REST API client. No network
// call is made until Login.
func NewRobinhoodClient(cfg *config.Robinhood, logger *zap.Logger) *RobinhoodClient {
	client := resty.New().SetBaseURL(baseURL)

	deviceToken := cfg.DeviceToken
	if deviceToken == "" {
		deviceToken = uuid.NewString()
	}

	return &RobinhoodClient{
		client:      client,
		username:    cfg.Username,
		password:    cfg.Password,
		mfaSecret:   cfg.MFASecret,
		deviceToken: deviceToken,
		logger:      logger.Named("robinhood"),
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
		instruments: make(map[string]string),
	}
}

// IsAuthenticated reports whether a session token is held.
func (c *RobinhoodClient) IsAuthenticated() bool {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.token != ""
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Login establishes an OAuth session, generating a TOTP code when an
// MFA secret is configured. Concurrent callers are serialized; a second
// caller finding a live token returns immediately.
func (c *RobinhoodClient) Login(ctx context.Context) error {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	if c.token != "" {
		return nil
	}

	if c.username == "" || c.password == "" {
		return fmt.Errorf("%w: credentials not configured", ErrNotAuthenticated)
	}

	body := map[string]string{
		"grant_type":   "password",
		"scope":        "internal",
		"client_id":    oauthClientID,
		"device_token": c.deviceToken,
		"expires_in":   "86400",
		"username":     c.username,
		"password":     c.password,
	}
	if c.mfaSecret != "" {
		code, err := totp.GenerateCode(c.mfaSecret, time.Now())
		if err != nil {
			return fmt.Errorf("%w: failed to generate MFA code: %v", ErrNotAuthenticated, err)
		}
		body["mfa_code"] = code
		c.logger.Info("attempting login with MFA")
	} else {
		c.logger.Info("attempting login without MFA")
	}

	var token tokenResponse
	req := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&token)

	resp, err := c.doRequest(ctx, http.MethodPost, "/oauth2/token/", req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}

	result := resp.Result().(*tokenResponse)
	if result.AccessToken == "" {
		return fmt.Errorf("%w: empty access token in response", ErrNotAuthenticated)
	}

	c.token = result.AccessToken
	c.logger.Info("successfully authenticated with Robinhood")

	return c.loadAccountLocked(ctx)
}

// Logout drops the session token.
func (c *RobinhoodClient) Logout(ctx context.Context) error {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	if c.token == "" {
		return nil
	}

	req := c.client.R().
		SetContext(ctx).
		SetAuthToken(c.token).
		SetBody(map[string]string{
			"client_id": oauthClientID,
			"token":     c.token,
		})
	if _, err := c.doRequest(ctx, http.MethodPost, "/oauth2/revoke_token/", req); err != nil {
		c.logger.Warn("token revocation failed", zap.Error(err))
	}

	c.token = ""
	c.accountURL = ""
	c.logger.Info("logged out from Robinhood")
	return nil
}

type accountsResponse struct {
	Results []struct {
		URL string `json:"url"`
	} `json:"results"`
}

// loadAccountLocked caches the account URL needed for order placement.
// Callers must hold sessionMu.
func (c *RobinhoodClient) loadAccountLocked(ctx context.Context) error {
	var accounts accountsResponse
	req := c.client.R().
		SetContext(ctx).
		SetAuthToken(c.token).
		SetResult(&accounts)

	resp, err := c.doRequest(ctx, http.MethodGet, "/accounts/", req)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}

	result := resp.Result().(*accountsResponse)
	if len(result.Results) == 0 {
		return fmt.Errorf("no brokerage account found")
	}
	c.accountURL = result.Results[0].URL
	return nil
}

// authToken returns the current token or ErrNotAuthenticated.
func (c *RobinhoodClient) authToken() (string, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	if c.token == "" {
		return "", ErrNotAuthenticated
	}
	return c.token, nil
}

type portfolioResponse struct {
	Results []struct {
		Equity                      string `json:"equity"`
		WithdrawableAmount          string `json:"withdrawable_amount"`
		AdjustedEquityPreviousClose string `json:"adjusted_equity_previous_close"`
	} `json:"results"`
}

// Portfolio returns total equity, buying power and the day's change.
func (c *RobinhoodClient) Portfolio(ctx context.Context) (Portfolio, error) {
	token, err := c.authToken()
	if err != nil {
		return Portfolio{}, err
	}

	var pr portfolioResponse
	req := c.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&pr)

	resp, err := c.doRequest(ctx, http.MethodGet, "/portfolios/", req)
	if err != nil {
		return Portfolio{}, fmt.Errorf("failed to get portfolio: %w", err)
	}

	result := resp.Result().(*portfolioResponse)
	if len(result.Results) == 0 {
		return Portfolio{}, fmt.Errorf("no portfolio data returned")
	}

	raw := result.Results[0]
	equity := parseDollars(raw.Equity)
	previousClose := parseDollars(raw.AdjustedEquityPreviousClose)

	return Portfolio{
		TotalValue:  equity,
		BuyingPower: parseDollars(raw.WithdrawableAmount),
		DayChange:   equity - previousClose,
	}, nil
}

type positionsResponse struct {
	Results []struct {
		Quantity   string `json:"quantity"`
		Instrument string `json:"instrument"`
		Symbol     string `json:"symbol"`
	} `json:"results"`
}

type instrumentResponse struct {
	Symbol string `json:"symbol"`
	URL    string `json:"url"`
}

// OpenPositions returns all nonzero holdings with their symbols.
func (c *RobinhoodClient) OpenPositions(ctx context.Context) ([]Position, error) {
	token, err := c.authToken()
	if err != nil {
		return nil, err
	}

	var pr positionsResponse
	req := c.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParam("nonzero", "true").
		SetResult(&pr)

	resp, err := c.doRequest(ctx, http.MethodGet, "/positions/", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	result := resp.Result().(*positionsResponse)
	positions := make([]Position, 0, len(result.Results))
	for _, raw := range result.Results {
		qty := parseDollars(raw.Quantity)
		if qty <= 0 {
			continue
		}
		symbol := raw.Symbol
		if symbol == "" && raw.Instrument != "" {
			symbol, err = c.symbolForInstrument(ctx, token, raw.Instrument)
			if err != nil {
				c.logger.Warn("could not resolve instrument symbol",
					zap.String("instrument", raw.Instrument), zap.Error(err))
				continue
			}
		}
		positions = append(positions, Position{Symbol: symbol, Quantity: qty})
	}
	return positions, nil
}

// symbolForInstrument resolves an instrument URL to its ticker symbol,
// with a process-lifetime cache.
func (c *RobinhoodClient) symbolForInstrument(ctx context.Context, token, instrumentURL string) (string, error) {
	c.instMu.Lock()
	for sym, url := range c.instruments {
		if url == instrumentURL {
			c.instMu.Unlock()
			return sym, nil
		}
	}
	c.instMu.Unlock()

	var inst instrumentResponse
	req := c.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&inst)

	resp, err := c.doRequest(ctx, http.MethodGet, instrumentURL, req)
	if err != nil {
		return "", err
	}

	result := resp.Result().(*instrumentResponse)
	if result.Symbol == "" {
		return "", fmt.Errorf("instrument has no symbol")
	}

	c.instMu.Lock()
	c.instruments[result.Symbol] = instrumentURL
	c.instMu.Unlock()
	return result.Symbol, nil
}

type instrumentsResponse struct {
	Results []instrumentResponse `json:"results"`
}

// instrumentForSymbol resolves a ticker symbol to its instrument URL.
func (c *RobinhoodClient) instrumentForSymbol(ctx context.Context, token, symbol string) (string, error) {
	c.instMu.Lock()
	if url, ok := c.instruments[symbol]; ok {
		c.instMu.Unlock()
		return url, nil
	}
	c.instMu.Unlock()

	var ir instrumentsResponse
	req := c.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParam("symbol", symbol).
		SetResult(&ir)

	resp, err := c.doRequest(ctx, http.MethodGet, "/instruments/", req)
	if err != nil {
		return "", fmt.Errorf("failed to look up instrument for %s: %w", symbol, err)
	}

	result := resp.Result().(*instrumentsResponse)
	if len(result.Results) == 0 || result.Results[0].URL == "" {
		return "", fmt.Errorf("unknown symbol %s", symbol)
	}

	url := result.Results[0].URL
	c.instMu.Lock()
	c.instruments[symbol] = url
	c.instMu.Unlock()
	return url, nil
}

type orderResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// PlaceOrder places a fractional market order by dollar amount, good
// for the day. The ref_id makes a retried submission idempotent on the
// brokerage side.
func (c *RobinhoodClient) PlaceOrder(ctx context.Context, symbol string, side strategy.Action, dollarAmount float64) (Order, error) {
	token, err := c.authToken()
	if err != nil {
		return Order{}, err
	}

	c.sessionMu.Lock()
	accountURL := c.accountURL
	c.sessionMu.Unlock()
	if accountURL == "" {
		return Order{}, fmt.Errorf("%w: no account loaded", ErrNotAuthenticated)
	}

	instrumentURL, err := c.instrumentForSymbol(ctx, token, symbol)
	if err != nil {
		return Order{}, err
	}

	body := map[string]interface{}{
		"account":        accountURL,
		"instrument":     instrumentURL,
		"symbol":         symbol,
		"ref_id":         uuid.NewString(),
		"side":           string(side),
		"type":           orderTypeMarket,
		"time_in_force":  timeInForceGFD,
		"trigger":        "immediate",
		"extended_hours": false,
		"dollar_based_amount": map[string]string{
			"amount":        fmt.Sprintf("%.2f", dollarAmount),
			"currency_code": "USD",
		},
	}

	var or orderResponse
	req := c.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(body).
		SetResult(&or)

	resp, err := c.doRequest(ctx, http.MethodPost, "/orders/", req)
	if err != nil {
		c.logger.Error("failed to place order",
			zap.String("symbol", symbol),
			zap.String("side", string(side)),
			zap.Error(err))
		return Order{}, fmt.Errorf("failed to place order: %w", err)
	}

	result := resp.Result().(*orderResponse)
	c.logger.Info("order placed",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("amount", dollarAmount),
		zap.String("order_id", result.ID))
	return Order{ID: result.ID, State: result.State}, nil
}

// doRequest executes a request with rate limiting and retry on 429/5xx,
// using exponential backoff or the server's Retry-After hint.
func (c *RobinhoodClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("executing request", zap.String("method", method), zap.String("url", url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil && resp.RawResponse != nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				if seconds, perr := strconv.Atoi(resp.Header().Get("Retry-After")); perr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 {
				shouldRetry = true
			}
		} else {
			// Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("request failed, retrying",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// parseDollars parses Robinhood's stringly-typed numeric fields; empty
// or malformed values come back as 0.
func parseDollars(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
