package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tradedesk/pkg/ratelimit"
)

const krakenBaseURL = "https://api.kraken.com"

// Kraken реализует ExchangeClient для Kraken spot API.
//
// Схема подписи (отличается от остальных HMAC-провайдеров):
//
//	API-Sign = base64(HMAC-SHA512(base64decode(secret),
//	                              path + SHA256(nonce + postdata)))
//
// Все приватные вызовы - POST с form-encoded телом, включающим nonce.
type Kraken struct {
	apiKey    string
	secretKey string // base64, декодируется при подписи

	timeout    time.Duration
	httpClient *http.Client
	limiter    *ratelimit.RateLimiter
}

func newKraken(cfg ClientConfig) (ExchangeClient, error) {
	creds := cfg.Credentials
	if creds.APIKey == "" || creds.Secret == "" {
		return nil, fmt.Errorf("%w: kraken requires api key and secret", ErrMissingCredentials)
	}

	// У Kraken spot нет публичного sandbox - комбинация kraken/spot/sandbox
	// невозможна, это ошибка конфигурации, а не тихий фоллбэк на prod.
	if cfg.Environment == "sandbox" {
		return nil, fmt.Errorf("%w: kraken has no spot sandbox environment", ErrUnsupportedConfiguration)
	}

	return &Kraken{
		apiKey:     creds.APIKey,
		secretKey:  creds.Secret,
		timeout:    cfg.timeout(),
		httpClient: GetGlobalHTTPClient(),
		limiter:    ratelimit.ForProvider("kraken"),
	}, nil
}

func (k *Kraken) Provider() string { return "kraken" }

// sign создает подпись приватного запроса Kraken
func (k *Kraken) sign(path, nonce, postdata string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(k.secretKey)
	if err != nil {
		return "", &AuthError{Provider: "kraken", Message: "secret is not valid base64", Err: err}
	}

	inner := sha256.Sum256([]byte(nonce + postdata))

	mac := hmac.New(sha512.New, key)
	mac.Write([]byte(path))
	mac.Write(inner[:])

	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// doRequest выполняет приватный POST-запрос к Kraken API
func (k *Kraken) doRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := k.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	if params == nil {
		params = url.Values{}
	}
	nonce := strconv.FormatInt(time.Now().UnixMilli(), 10)
	params.Set("nonce", nonce)
	postdata := params.Encode()

	signature, err := k.sign(path, nonce, postdata)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, krakenBaseURL+path, strings.NewReader(postdata))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("API-Key", k.apiKey)
	req.Header.Set("API-Sign", signature)

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Provider: "kraken", RetryAfter: retryAfter(resp)}
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("kraken: server error %d", resp.StatusCode)
	}

	return body, nil
}

// classifyAPIError переводит коды ошибок Kraken в ошибку таксономии.
// Kraken возвращает HTTP 200 с непустым массивом error.
func classifyKrakenError(errors []string) error {
	if len(errors) == 0 {
		return nil
	}
	first := errors[0]

	switch {
	case strings.HasPrefix(first, "EAPI:Invalid key"),
		strings.HasPrefix(first, "EAPI:Invalid signature"),
		strings.HasPrefix(first, "EAPI:Invalid nonce"),
		strings.HasPrefix(first, "EGeneral:Permission denied"):
		return &AuthError{Provider: "kraken", Message: first}
	case strings.HasPrefix(first, "EAPI:Rate limit"),
		strings.HasPrefix(first, "EOrder:Rate limit"),
		strings.HasPrefix(first, "EGeneral:Too many requests"):
		return &RateLimitError{Provider: "kraken"}
	default:
		return &RejectionError{Provider: "kraken", Code: first, Message: strings.Join(errors, "; ")}
	}
}

func (k *Kraken) GetBalances(ctx context.Context) ([]Balance, error) {
	body, err := k.doRequest(ctx, "/0/private/Balance", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Error  []string          `json:"error"`
		Result map[string]string `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if err := classifyKrakenError(resp.Error); err != nil {
		return nil, err
	}

	balances := make([]Balance, 0, len(resp.Result))
	for currency, amount := range resp.Result {
		total, _ := strconv.ParseFloat(amount, 64)
		// Endpoint Balance не разделяет available/hold
		balances = append(balances, Balance{
			Currency:  currency,
			Total:     total,
			Available: total,
		})
	}

	return balances, nil
}

func (k *Kraken) CreateOrder(ctx context.Context, params OrderParams) (*OrderAck, error) {
	values := url.Values{}
	values.Set("pair", params.Symbol)
	values.Set("type", params.Side)
	values.Set("volume", strconv.FormatFloat(params.Quantity, 'f', -1, 64))
	if params.ClientOrderID != "" {
		values.Set("cl_ord_id", params.ClientOrderID)
	}

	switch params.Type {
	case "limit":
		values.Set("ordertype", "limit")
		values.Set("price", strconv.FormatFloat(params.Price, 'f', -1, 64))
	case "stop_limit":
		values.Set("ordertype", "stop-loss-limit")
		values.Set("price", strconv.FormatFloat(params.StopPrice, 'f', -1, 64))
		values.Set("price2", strconv.FormatFloat(params.Price, 'f', -1, 64))
	default:
		values.Set("ordertype", "market")
	}

	body, err := k.doRequest(ctx, "/0/private/AddOrder", values)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Error  []string `json:"error"`
		Result struct {
			Txid []string `json:"txid"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if err := classifyKrakenError(resp.Error); err != nil {
		return nil, err
	}

	if len(resp.Result.Txid) == 0 {
		return nil, &RejectionError{Provider: "kraken", Code: "no_txid", Message: "transaction id missing in response"}
	}

	return &OrderAck{ExchangeOrderID: resp.Result.Txid[0], Status: "open"}, nil
}

func (k *Kraken) TestConnection(ctx context.Context) bool {
	_, err := k.GetBalances(ctx)
	return err == nil
}
