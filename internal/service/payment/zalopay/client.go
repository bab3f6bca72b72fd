package zalopay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	// Provider — имя провайдера в журнале платёжных событий.
	Provider = "zalopay"

	// CallbackPath — путь, на который шлюз присылает уведомление об оплате.
	CallbackPath = "/api/v1/payments/zalopay/callback"

	defaultAppUser     = "user123"
	defaultHTTPTimeout = 10 * time.Second
	maxResponseBytes   = 1 << 20
	transIDSpace       = 1000000
)

// Идентификатор транзакции строится по дате в часовом поясе шлюза (GMT+7).
var gatewayZone = time.FixedZone("GMT+7", 7*60*60)

// Config — параметры приложения в ZaloPay.
type Config struct {
	AppID           string
	Key1            string
	Key2            string
	Endpoint        string
	CallbackBaseURL string
	RedirectURL     string
	HTTPTimeout     time.Duration
}

// Validate проверяет, что заданы параметры для подписи и отправки запроса.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.AppID) == "" {
		missing = append(missing, "app id")
	}
	if c.Key1 == "" {
		missing = append(missing, "key1")
	}
	if c.Key2 == "" {
		missing = append(missing, "key2")
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		missing = append(missing, "endpoint")
	}
	if len(missing) > 0 {
		return fmt.Errorf("zalopay: missing %s", strings.Join(missing, ", "))
	}
	if _, err := url.ParseRequestURI(c.Endpoint); err != nil {
		return fmt.Errorf("zalopay: invalid endpoint: %w", err)
	}
	return nil
}

// Order — параметры запроса на создание заказа в шлюзе.
type Order struct {
	AppID       string
	AppTransID  string
	AppUser     string
	AppTime     int64
	Item        string
	EmbedData   string
	Amount      int64
	CallbackURL string
	Description string
	BankCode    string
	MAC         string
}

// Values кодирует заказ в параметры запроса.
func (o Order) Values() url.Values {
	v := url.Values{}
	v.Set("app_id", o.AppID)
	v.Set("app_trans_id", o.AppTransID)
	v.Set("app_user", o.AppUser)
	v.Set("app_time", strconv.FormatInt(o.AppTime, 10))
	v.Set("item", o.Item)
	v.Set("embed_data", o.EmbedData)
	v.Set("amount", strconv.FormatInt(o.Amount, 10))
	v.Set("callback_url", o.CallbackURL)
	v.Set("description", o.Description)
	v.Set("bank_code", o.BankCode)
	v.Set("mac", o.MAC)
	return v
}

// CallbackData — поля из поля data уведомления об оплате.
type CallbackData struct {
	AppID      json.Number `json:"app_id"`
	AppTransID string      `json:"app_trans_id"`
	AppTime    int64       `json:"app_time"`
	AppUser    string      `json:"app_user"`
	Amount     int64       `json:"amount"`
	ZPTransID  json.Number `json:"zp_trans_id"`
	ServerTime int64       `json:"server_time"`
	Channel    int         `json:"channel"`
}

// ParseCallbackData разбирает поле data уведомления.
func ParseCallbackData(data string) (CallbackData, error) {
	var out CallbackData
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return CallbackData{}, fmt.Errorf("decode callback data: %w", err)
	}
	if out.AppTransID == "" {
		return CallbackData{}, errors.New("callback data has no app_trans_id")
	}
	return out, nil
}

// GatewayError — шлюз ответил ошибкой; Body содержит ответ шлюза.
type GatewayError struct {
	StatusCode int
	Body       json.RawMessage
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("zalopay responded with status %d", e.StatusCode)
}

func (e *GatewayError) Unwrap() error { return domain.ErrGatewayRequest }

// Client — клиент API создания заказов ZaloPay.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *log.Entry
	now        func() time.Time
	randSeq    func() int
}

// ClientOption настраивает Client.
type ClientOption func(*Client)

// WithHTTPClient подменяет HTTP-клиент.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock задаёт источник времени.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSequence задаёт генератор случайной части идентификатора транзакции.
func WithSequence(next func() int) ClientOption {
	return func(c *Client) {
		if next != nil {
			c.randSeq = next
		}
	}
}

// NewClient создаёт клиент.
func NewClient(cfg Config, options ...ClientOption) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.WithField("component", "zalopay"),
		now:        time.Now,
		randSeq:    func() int { return rand.IntN(transIDSpace) },
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// NewOrder готовит и подписывает заказ на сумму amount.
func (c *Client) NewOrder(amount int64, paymentMethod string) Order {
	now := c.now()
	seq := c.randSeq()
	transID := fmt.Sprintf("%s_%d", now.In(gatewayZone).Format("060102"), seq)

	redirect := fmt.Sprintf("%s?orderId=%s&paymentMethod=%s&orderIdpayment=%s",
		c.cfg.RedirectURL, transID, paymentMethod, transID)
	embed, _ := json.Marshal(map[string]string{"redirecturl": redirect})

	order := Order{
		AppID:       c.cfg.AppID,
		AppTransID:  transID,
		AppUser:     defaultAppUser,
		AppTime:     now.UnixMilli(),
		Item:        "[{}]",
		EmbedData:   string(embed),
		Amount:      amount,
		CallbackURL: strings.TrimRight(c.cfg.CallbackBaseURL, "/") + CallbackPath,
		Description: fmt.Sprintf("OCOP Mart - Payment for the order #%d", seq),
		BankCode:    "",
	}
	order.MAC = Sign(c.cfg.Key1, orderMACData(order))
	return order
}

// CreateOrder отправляет заказ в шлюз и возвращает ответ как есть.
func (c *Client) CreateOrder(ctx context.Context, order Order) (json.RawMessage, error) {
	endpoint, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint: %v", domain.ErrGatewayRequest, err)
	}
	query := endpoint.Query()
	for key, values := range order.Values() {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrGatewayRequest, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrGatewayRequest, err)
	}
	raw := rawJSON(body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.WithFields(log.Fields{
			"app_trans_id": order.AppTransID,
			"status":       resp.StatusCode,
		}).Warn("gateway rejected order")
		return nil, &GatewayError{StatusCode: resp.StatusCode, Body: raw}
	}

	c.logger.WithFields(log.Fields{
		"app_trans_id": order.AppTransID,
		"amount":       order.Amount,
	}).Info("gateway order created")
	return raw, nil
}

// VerifyCallback проверяет подпись уведомления ключом key2.
func (c *Client) VerifyCallback(data, signature string) bool {
	return Verify(c.cfg.Key2, data, signature)
}

// rawJSON возвращает тело как JSON; не-JSON ответ оборачивается в строку.
func rawJSON(body []byte) json.RawMessage {
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, _ := json.Marshal(string(body))
	return json.RawMessage(quoted)
}
