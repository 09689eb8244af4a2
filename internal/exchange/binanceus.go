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

// Базовые URL Binance US (sandbox - публичный testnet Binance)
const (
	binanceUSBaseURL    = "https://api.binance.us"
	binanceUSSandboxURL = "https://testnet.binance.vision"

	binanceRecvWindow = "5000"
)

// BinanceUS реализует ExchangeClient для Binance US spot API.
// Схема аутентификации: HMAC-SHA256 (hex) от канонизированной строки
// параметров запроса, ключ передается в заголовке X-MBX-APIKEY.
type BinanceUS struct {
	apiKey    string
	secretKey string

	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *ratelimit.RateLimiter
}

func newBinanceUS(cfg ClientConfig) (ExchangeClient, error) {
	creds := cfg.Credentials
	if creds.APIKey == "" || creds.Secret == "" {
		return nil, fmt.Errorf("%w: binanceus requires api key and secret", ErrMissingCredentials)
	}

	baseURL := binanceUSBaseURL
	if cfg.Environment == "sandbox" {
		baseURL = binanceUSSandboxURL
	}

	return &BinanceUS{
		apiKey:     creds.APIKey,
		secretKey:  creds.Secret,
		baseURL:    baseURL,
		timeout:    cfg.timeout(),
		httpClient: GetGlobalHTTPClient(),
		limiter:    ratelimit.ForProvider("binanceus"),
	}, nil
}

func (b *BinanceUS) Provider() string { return "binanceus" }

// sign подписывает строку параметров.
// Binance проверяет подпись именно той строки, что ушла в запрос,
// поэтому подписываем и отправляем ОДНУ И ТУ ЖЕ сериализацию url.Values.
func (b *BinanceUS) sign(queryString string) string {
	h := hmac.New(sha256.New, []byte(b.secretKey))
	h.Write([]byte(queryString))
	return hex.EncodeToString(h.Sum(nil))
}

// doRequest выполняет подписанный запрос; параметры идут в query string
func (b *BinanceUS) doRequest(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", binanceRecvWindow)

	queryString := params.Encode()
	queryString += "&signature=" + b.sign(queryString)

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+endpoint+"?"+queryString, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, b.classifyHTTPError(resp, body)
	}

	return body, nil
}

// classifyHTTPError переводит ответ Binance в ошибку таксономии.
// 418/429 - превышение лимитов (418 это временный IP-бан за игнорирование 429).
func (b *BinanceUS) classifyHTTPError(resp *http.Response, body []byte) error {
	var apiErr struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	_ = json.Unmarshal(body, &apiErr)
	if apiErr.Msg == "" {
		apiErr.Msg = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Provider: "binanceus", Message: apiErr.Msg}
	case apiErr.Code == -2014 || apiErr.Code == -2015 || apiErr.Code == -1022:
		// API-key format invalid / rejected, подпись не сошлась
		return &AuthError{Provider: "binanceus", Message: apiErr.Msg}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 418:
		return &RateLimitError{Provider: "binanceus", RetryAfter: retryAfter(resp)}
	case resp.StatusCode >= 500:
		return fmt.Errorf("binanceus: server error %d: %s", resp.StatusCode, apiErr.Msg)
	default:
		return &RejectionError{Provider: "binanceus", Code: strconv.Itoa(apiErr.Code), Message: apiErr.Msg}
	}
}

func (b *BinanceUS) GetBalances(ctx context.Context) ([]Balance, error) {
	body, err := b.doRequest(ctx, http.MethodGet, "/api/v3/account", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	balances := make([]Balance, 0, len(resp.Balances))
	for _, a := range resp.Balances {
		free, _ := strconv.ParseFloat(a.Free, 64)
		locked, _ := strconv.ParseFloat(a.Locked, 64)
		balances = append(balances, Balance{
			Currency:  a.Asset,
			Total:     free + locked,
			Available: free,
		})
	}

	return balances, nil
}

func (b *BinanceUS) CreateOrder(ctx context.Context, params OrderParams) (*OrderAck, error) {
	values := url.Values{}
	values.Set("symbol", params.Symbol)
	values.Set("side", strings.ToUpper(params.Side))
	values.Set("quantity", strconv.FormatFloat(params.Quantity, 'f', -1, 64))
	if params.ClientOrderID != "" {
		values.Set("newClientOrderId", params.ClientOrderID)
	}

	switch params.Type {
	case "limit":
		values.Set("type", "LIMIT")
		values.Set("timeInForce", "GTC")
		values.Set("price", strconv.FormatFloat(params.Price, 'f', -1, 64))
	case "stop_limit":
		values.Set("type", "STOP_LOSS_LIMIT")
		values.Set("timeInForce", "GTC")
		values.Set("price", strconv.FormatFloat(params.Price, 'f', -1, 64))
		values.Set("stopPrice", strconv.FormatFloat(params.StopPrice, 'f', -1, 64))
	default:
		values.Set("type", "MARKET")
	}

	body, err := b.doRequest(ctx, http.MethodPost, "/api/v3/order", values)
	if err != nil {
		return nil, err
	}

	var resp struct {
		OrderID int64  `json:"orderId"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	if resp.OrderID == 0 {
		return nil, &RejectionError{Provider: "binanceus", Code: "no_order_id", Message: "order id missing in response"}
	}

	return &OrderAck{
		ExchangeOrderID: strconv.FormatInt(resp.OrderID, 10),
		Status:          resp.Status,
	}, nil
}

func (b *BinanceUS) TestConnection(ctx context.Context) bool {
	_, err := b.GetBalances(ctx)
	return err == nil
}
