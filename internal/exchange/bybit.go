package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tradedesk/pkg/ratelimit"
)

// Базовые URL Bybit v5 API
const (
	bybitBaseURL    = "https://api.bybit.com"
	bybitSandboxURL = "https://api-testnet.bybit.com"

	bybitRecvWindow = "5000"
)

// Bybit реализует ExchangeClient для Bybit v5 API.
// Схема аутентификации: HMAC-SHA256 (hex) от
// timestamp+apiKey+recvWindow+payload, заголовки X-BAPI-*.
type Bybit struct {
	apiKey    string
	secretKey string

	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *ratelimit.RateLimiter
}

func newBybit(cfg ClientConfig) (ExchangeClient, error) {
	creds := cfg.Credentials
	if creds.APIKey == "" || creds.Secret == "" {
		return nil, fmt.Errorf("%w: bybit requires api key and secret", ErrMissingCredentials)
	}

	baseURL := bybitBaseURL
	if cfg.Environment == "sandbox" {
		baseURL = bybitSandboxURL
	}

	return &Bybit{
		apiKey:     creds.APIKey,
		secretKey:  creds.Secret,
		baseURL:    baseURL,
		timeout:    cfg.timeout(),
		httpClient: GetGlobalHTTPClient(),
		limiter:    ratelimit.ForProvider("bybit"),
	}, nil
}

func (b *Bybit) Provider() string { return "bybit" }

// sign создает подпись для запроса к Bybit API v5.
// Для GET payload - это query string, для POST - JSON тело запроса.
func (b *Bybit) sign(timestamp, payload string) string {
	message := timestamp + b.apiKey + bybitRecvWindow + payload
	h := hmac.New(sha256.New, []byte(b.secretKey))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// doRequest выполняет подписанный запрос к Bybit API
func (b *Bybit) doRequest(ctx context.Context, method, endpoint string, params map[string]string) ([]byte, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var payload string
	var reqURL string

	if method == http.MethodGet {
		query := url.Values{}
		for key, value := range params {
			query.Set(key, value)
		}
		payload = query.Encode()
		reqURL = b.baseURL + endpoint
		if payload != "" {
			reqURL += "?" + payload
		}
	} else {
		reqURL = b.baseURL + endpoint
		if len(params) > 0 {
			jsonBytes, err := json.Marshal(params)
			if err != nil {
				return nil, err
			}
			payload = string(jsonBytes)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, strings.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if method == http.MethodGet {
		// GET: payload уже в URL, тело пустое
		req.Body = nil
		req.ContentLength = 0
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-BAPI-API-KEY", b.apiKey)
	req.Header.Set("X-BAPI-SIGN", b.sign(timestamp, payload))
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", bybitRecvWindow)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		// 403 у Bybit - временный IP-бан за превышение лимитов
		return nil, &RateLimitError{Provider: "bybit", RetryAfter: retryAfter(resp)}
	}

	var baseResp struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
	}
	if err := json.Unmarshal(body, &baseResp); err != nil {
		return nil, err
	}

	if baseResp.RetCode != 0 {
		return nil, classifyBybitError(baseResp.RetCode, baseResp.RetMsg)
	}

	return body, nil
}

// classifyBybitError переводит retCode в ошибку таксономии
func classifyBybitError(code int, message string) error {
	switch code {
	case 10003, 10004, 10005, 33004:
		// invalid api key / signature / permissions / key expired
		return &AuthError{Provider: "bybit", Message: message}
	case 10006, 10018:
		return &RateLimitError{Provider: "bybit"}
	default:
		return &RejectionError{Provider: "bybit", Code: strconv.Itoa(code), Message: message}
	}
}

func (b *Bybit) GetBalances(ctx context.Context) ([]Balance, error) {
	params := map[string]string{
		"accountType": "UNIFIED",
	}

	body, err := b.doRequest(ctx, http.MethodGet, "/v5/account/wallet-balance", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result struct {
			List []struct {
				Coin []struct {
					Coin            string `json:"coin"`
					Equity          string `json:"equity"`
					WalletBalance   string `json:"walletBalance"`
					AvailableToWithdraw string `json:"availableToWithdraw"`
				} `json:"coin"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	var balances []Balance
	for _, account := range resp.Result.List {
		for _, coin := range account.Coin {
			total, _ := strconv.ParseFloat(coin.Equity, 64)
			available, _ := strconv.ParseFloat(coin.AvailableToWithdraw, 64)
			balances = append(balances, Balance{
				Currency:  coin.Coin,
				Total:     total,
				Available: available,
			})
		}
	}

	return balances, nil
}

func (b *Bybit) CreateOrder(ctx context.Context, params OrderParams) (*OrderAck, error) {
	// Bybit использует Title-case для side
	side := "Buy"
	if params.Side == "sell" {
		side = "Sell"
	}

	request := map[string]string{
		"category": "spot",
		"symbol":   params.Symbol,
		"side":     side,
		"qty":      strconv.FormatFloat(params.Quantity, 'f', -1, 64),
	}
	if params.ClientOrderID != "" {
		request["orderLinkId"] = params.ClientOrderID
	}

	switch params.Type {
	case "limit":
		request["orderType"] = "Limit"
		request["timeInForce"] = "GTC"
		request["price"] = strconv.FormatFloat(params.Price, 'f', -1, 64)
	case "stop_limit":
		request["orderType"] = "Limit"
		request["timeInForce"] = "GTC"
		request["price"] = strconv.FormatFloat(params.Price, 'f', -1, 64)
		request["triggerPrice"] = strconv.FormatFloat(params.StopPrice, 'f', -1, 64)
	default:
		request["orderType"] = "Market"
	}

	body, err := b.doRequest(ctx, http.MethodPost, "/v5/order/create", request)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result struct {
			OrderID     string `json:"orderId"`
			OrderLinkID string `json:"orderLinkId"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	if resp.Result.OrderID == "" {
		return nil, &RejectionError{Provider: "bybit", Code: "no_order_id", Message: "order id missing in response"}
	}

	return &OrderAck{ExchangeOrderID: resp.Result.OrderID, Status: "open"}, nil
}

func (b *Bybit) TestConnection(ctx context.Context) bool {
	_, err := b.GetBalances(ctx)
	return err == nil
}
