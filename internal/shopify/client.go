// Package shopify предоставляет клиент для API коммерческой платформы Shopify.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// apiVersion — версия admin API, против которой выполняются запросы.
const apiVersion = "2024-01"

// CombineTag — метка, которой помечается заказ, ожидающий объединённую отправку.
const CombineTag = "combined-shipping-hold"

// Client инкапсулирует HTTP-взаимодействие с admin API Shopify.
// Адрес магазина и токен доступа передаются в каждый вызов, сервер их не хранит.
type Client struct {
	httpClient *http.Client
}

// NewClient создаёт HTTP-клиент для обращения к admin API Shopify.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type orderUpdate struct {
	Order orderTags `json:"order"`
}

type orderTags struct {
	ID   string `json:"id"`
	Tags string `json:"tags"`
}

// TagOrder помечает заказ магазина меткой tag. Вызов выполняется один раз,
// без повторов: расхождение при сбое разрешает оператор вручную.
func (c *Client) TagOrder(ctx context.Context, shopDomain, accessToken, orderID, tag string) error {
	if c == nil {
		return fmt.Errorf("shopify client not configured")
	}
	if shopDomain == "" || accessToken == "" || orderID == "" {
		return fmt.Errorf("shop domain, access token and order id are required")
	}

	base := shopDomain
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	base = strings.TrimRight(base, "/")

	url := fmt.Sprintf("%s/admin/api/%s/orders/%s.json", base, apiVersion, orderID)

	body, err := json.Marshal(orderUpdate{Order: orderTags{ID: orderID, Tags: tag}})
	if err != nil {
		return fmt.Errorf("marshal order update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
