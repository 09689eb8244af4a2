package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tradedesk/pkg/ratelimit"
)

// Базовые URL Coinbase Exchange (legacy API)
const (
	coinbaseLegacyBaseURL    = "https://api.exchange.coinbase.com"
	coinbaseLegacySandboxURL = "https://api-public.sandbox.exchange.coinbase.com"
)

// CoinbaseLegacy реализует ExchangeClient для Coinbase Exchange API.
// Схема аутентификации: HMAC-SHA256 от timestamp+method+path+body
// с base64-декодированным секретом, плюс обязательный passphrase.
type CoinbaseLegacy struct {
	apiKey     string
	secretKey  string // base64, декодируется при подписи
	passphrase string

	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *ratelimit.RateLimiter
}

func newCoinbaseLegacy(cfg ClientConfig) (ExchangeClient, error) {
	creds := cfg.Credentials
	if creds.APIKey == "" || creds.Secret == "" || creds.Passphrase == "" {
		return nil, fmt.Errorf("%w: coinbase legacy requires api key, secret and passphrase", ErrMissingCredentials)
	}

	baseURL := coinbaseLegacyBaseURL
	if cfg.Environment == "sandbox" {
		baseURL = coinbaseLegacySandboxURL
	}

	return &CoinbaseLegacy{
		apiKey:     creds.APIKey,
		secretKey:  creds.Secret,
		passphrase: creds.Passphrase,
		baseURL:    baseURL,
		timeout:    cfg.timeout(),
		httpClient: GetGlobalHTTPClient(),
		limiter:    ratelimit.ForProvider("coinbase"),
	}, nil
}

func (c *CoinbaseLegacy) Provider() string { return "coinbase" }

// sign создает подпись запроса.
// Prehash-строка собирается БАЙТ В БАЙТ как timestamp+method+requestPath+body:
// любое отклонение канонизации делает подпись невалидной.
func (c *CoinbaseLegacy) sign(timestamp, method, requestPath, body string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(c.secretKey)
	if err != nil {
		return "", &AuthError{Provider: "coinbase", Message: "secret is not valid base64", Err: err}
	}

	h := hmac.New(sha256.New, key)
	h.Write([]byte(timestamp + method + requestPath + body))
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// doRequest выполняет подписанный запрос к Coinbase Exchange
func (c *CoinbaseLegacy) doRequest(ctx context.Context, method, path, body string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature, err := c.sign(timestamp, method, path, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("CB-ACCESS-KEY", c.apiKey)
	req.Header.Set("CB-ACCESS-SIGN", signature)
	req.Header.Set("CB-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("CB-ACCESS-PASSPHRASE", c.passphrase)

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

// classifyHTTPError переводит HTTP статус в ошибку таксономии
func (c *CoinbaseLegacy) classifyHTTPError(resp *http.Response, body []byte) error {
	var apiErr struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &apiErr)
	if apiErr.Message == "" {
		apiErr.Message = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Provider: "coinbase", Message: apiErr.Message}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{Provider: "coinbase", RetryAfter: retryAfter(resp)}
	case resp.StatusCode >= 500:
		return fmt.Errorf("coinbase: server error %d: %s", resp.StatusCode, apiErr.Message)
	default:
		return &RejectionError{Provider: "coinbase", Code: strconv.Itoa(resp.StatusCode), Message: apiErr.Message}
	}
}

func (c *CoinbaseLegacy) GetBalances(ctx context.Context) ([]Balance, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/accounts", "")
	if err != nil {
		return nil, err
	}

	var accounts []struct {
		Currency  string `json:"currency"`
		Balance   string `json:"balance"`
		Available string `json:"available"`
	}
	if err := json.Unmarshal(body, &accounts); err != nil {
		return nil, err
	}

	balances := make([]Balance, 0, len(accounts))
	for _, a := range accounts {
		total, _ := strconv.ParseFloat(a.Balance, 64)
		available, _ := strconv.ParseFloat(a.Available, 64)
		balances = append(balances, Balance{
			Currency:  a.Currency,
			Total:     total,
			Available: available,
		})
	}

	return balances, nil
}

func (c *CoinbaseLegacy) CreateOrder(ctx context.Context, params OrderParams) (*OrderAck, error) {
	payload := map[string]string{
		"client_oid": params.ClientOrderID,
		"product_id": params.Symbol,
		"side":       params.Side,
		"type":       params.Type,
		"size":       strconv.FormatFloat(params.Quantity, 'f', -1, 64),
	}

	if params.Type == "limit" || params.Type == "stop_limit" {
		payload["type"] = "limit"
		payload["price"] = strconv.FormatFloat(params.Price, 'f', -1, 64)
	}
	if params.Type == "stop_limit" {
		payload["stop"] = "loss"
		payload["stop_price"] = strconv.FormatFloat(params.StopPrice, 'f', -1, 64)
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/orders", string(bodyBytes))
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	if resp.ID == "" {
		return nil, &RejectionError{Provider: "coinbase", Code: "no_order_id", Message: "order id missing in response"}
	}

	return &OrderAck{ExchangeOrderID: resp.ID, Status: resp.Status}, nil
}

func (c *CoinbaseLegacy) TestConnection(ctx context.Context) bool {
	_, err := c.GetBalances(ctx)
	return err == nil
}

// retryAfter извлекает Retry-After из ответа (секунды)
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}
