package exchange

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tradedesk/pkg/ratelimit"
)

// Базовые URL Coinbase Advanced Trade API
const (
	coinbaseAdvancedBaseURL    = "https://api.coinbase.com"
	coinbaseAdvancedSandboxURL = "https://api-sandbox.coinbase.com"

	coinbaseJWTTTL = 2 * time.Minute
)

// CoinbaseAdvanced реализует ExchangeClient для Coinbase Advanced Trade.
//
// Два режима аутентификации:
//   - service account: на КАЖДЫЙ запрос строится короткоживущий JWT (ES256),
//     подписанный EC-ключом из секрета (PEM);
//   - OAuth: готовый bearer-токен, полученный внешним OAuth flow
//     (подключение остается в pending_oauth пока токена нет).
type CoinbaseAdvanced struct {
	apiKey      string
	signingKey  *ecdsa.PrivateKey // nil в OAuth-режиме
	bearerToken string            // "" в service-account режиме

	baseURL    string
	host       string // входит в uri claim JWT
	timeout    time.Duration
	httpClient *http.Client
	limiter    *ratelimit.RateLimiter
}

func newCoinbaseAdvanced(cfg ClientConfig) (ExchangeClient, error) {
	creds := cfg.Credentials

	baseURL := coinbaseAdvancedBaseURL
	if cfg.Environment == "sandbox" {
		baseURL = coinbaseAdvancedSandboxURL
	}

	client := &CoinbaseAdvanced{
		apiKey:      creds.APIKey,
		bearerToken: creds.BearerToken,
		baseURL:     baseURL,
		host:        strings.TrimPrefix(baseURL, "https://"),
		timeout:     cfg.timeout(),
		httpClient:  GetGlobalHTTPClient(),
		limiter:     ratelimit.ForProvider("coinbase"),
	}

	// OAuth-режим: bearer-токен достаточен
	if creds.BearerToken != "" {
		return client, nil
	}

	if creds.APIKey == "" || creds.Secret == "" {
		return nil, fmt.Errorf("%w: coinbase advanced requires api key + EC secret or bearer token", ErrMissingCredentials)
	}

	key, err := parseECPrivateKey(creds.Secret)
	if err != nil {
		return nil, &AuthError{Provider: "coinbase", Message: "secret is not a valid EC private key", Err: err}
	}
	client.signingKey = key

	return client, nil
}

func (c *CoinbaseAdvanced) Provider() string { return "coinbase" }

// parseECPrivateKey разбирает PEM с EC-ключом (SEC1 или PKCS8)
func parseECPrivateKey(pemData string) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("PKCS8 key is not an EC key")
	}
	return key, nil
}

// buildJWT собирает и подписывает JWT для одного запроса.
// uri claim обязан совпадать с "METHOD host/path" запроса байт в байт,
// иначе Coinbase отклонит токен.
func (c *CoinbaseAdvanced) buildJWT(method, path string) (string, error) {
	nonceBytes := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, nonceBytes); err != nil {
		return "", err
	}

	now := time.Now()
	header := map[string]interface{}{
		"alg":   "ES256",
		"kid":   c.apiKey,
		"typ":   "JWT",
		"nonce": hex.EncodeToString(nonceBytes),
	}
	claims := map[string]interface{}{
		"sub": c.apiKey,
		"iss": "cdp",
		"nbf": now.Unix(),
		"exp": now.Add(coinbaseJWTTTL).Unix(),
		"uri": method + " " + c.host + path,
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) + "." +
		base64.RawURLEncoding.EncodeToString(claimsJSON)

	digest := sha256.Sum256([]byte(signingInput))
	r, s, err := ecdsa.Sign(rand.Reader, c.signingKey, digest[:])
	if err != nil {
		return "", err
	}

	// ES256: подпись это r||s, каждый ровно 32 байта с left-padding
	signature := make([]byte, 64)
	r.FillBytes(signature[:32])
	s.FillBytes(signature[32:])

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(signature), nil
}

// doRequest выполняет аутентифицированный запрос к Advanced Trade API
func (c *CoinbaseAdvanced) doRequest(ctx context.Context, method, path, body string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	} else {
		token, err := c.buildJWT(method, path)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, c.classifyHTTPError(resp, respBody)
	}

	return respBody, nil
}

func (c *CoinbaseAdvanced) classifyHTTPError(resp *http.Response, body []byte) error {
	var apiErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &apiErr)
	message := apiErr.Message
	if message == "" {
		message = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Provider: "coinbase", Message: message}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{Provider: "coinbase", RetryAfter: retryAfter(resp)}
	case resp.StatusCode >= 500:
		return fmt.Errorf("coinbase: server error %d: %s", resp.StatusCode, message)
	default:
		return &RejectionError{Provider: "coinbase", Code: apiErr.Error, Message: message}
	}
}

func (c *CoinbaseAdvanced) GetBalances(ctx context.Context) ([]Balance, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/brokerage/accounts", "")
	if err != nil {
		return nil, err
	}

	var resp struct {
		Accounts []struct {
			Currency         string `json:"currency"`
			AvailableBalance struct {
				Value string `json:"value"`
			} `json:"available_balance"`
			Hold struct {
				Value string `json:"value"`
			} `json:"hold"`
		} `json:"accounts"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	balances := make([]Balance, 0, len(resp.Accounts))
	for _, a := range resp.Accounts {
		available, _ := strconv.ParseFloat(a.AvailableBalance.Value, 64)
		hold, _ := strconv.ParseFloat(a.Hold.Value, 64)
		balances = append(balances, Balance{
			Currency:  a.Currency,
			Total:     available + hold,
			Available: available,
		})
	}

	return balances, nil
}

func (c *CoinbaseAdvanced) CreateOrder(ctx context.Context, params OrderParams) (*OrderAck, error) {
	// Advanced Trade использует BUY/SELL и вложенную order_configuration
	side := strings.ToUpper(params.Side)

	orderConfig := map[string]interface{}{}
	switch params.Type {
	case "limit":
		orderConfig["limit_limit_gtc"] = map[string]string{
			"base_size":   strconv.FormatFloat(params.Quantity, 'f', -1, 64),
			"limit_price": strconv.FormatFloat(params.Price, 'f', -1, 64),
		}
	case "stop_limit":
		orderConfig["stop_limit_stop_limit_gtc"] = map[string]string{
			"base_size":   strconv.FormatFloat(params.Quantity, 'f', -1, 64),
			"limit_price": strconv.FormatFloat(params.Price, 'f', -1, 64),
			"stop_price":  strconv.FormatFloat(params.StopPrice, 'f', -1, 64),
		}
	default:
		orderConfig["market_market_ioc"] = map[string]string{
			"base_size": strconv.FormatFloat(params.Quantity, 'f', -1, 64),
		}
	}

	payload := map[string]interface{}{
		"client_order_id":     params.ClientOrderID,
		"product_id":          params.Symbol,
		"side":                side,
		"order_configuration": orderConfig,
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/api/v3/brokerage/orders", string(bodyBytes))
	if err != nil {
		return nil, err
	}

	var resp struct {
		Success         bool `json:"success"`
		SuccessResponse struct {
			OrderID string `json:"order_id"`
		} `json:"success_response"`
		ErrorResponse struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		} `json:"error_response"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, &RejectionError{
			Provider: "coinbase",
			Code:     resp.ErrorResponse.Error,
			Message:  resp.ErrorResponse.Message,
		}
	}

	return &OrderAck{ExchangeOrderID: resp.SuccessResponse.OrderID, Status: "open"}, nil
}

func (c *CoinbaseAdvanced) TestConnection(ctx context.Context) bool {
	_, err := c.GetBalances(ctx)
	return err == nil
}
