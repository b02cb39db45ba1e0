package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PetSOS-teamsite/petsos-sub001/internal/platform/httpclient"
	"github.com/PetSOS-teamsite/petsos-sub001/internal/ports/channels"
)

var (
	ErrNotConfigured  = errors.New("whatsapp client not configured")
	ErrInvalidAddress = errors.New("invalid whatsapp number")
)

// Config del bridge de WhatsApp. BaseURL y APIKey vienen de env vars en
// quien lo instancia (router).
type Config struct {
	BaseURL string
	APIKey  string

	// Header de la API key; default "X-Api-Key".
	APIKeyHeader string

	Timeout time.Duration
}

// Client habla con el bridge HTTP de WhatsApp: POST /messages con
// {to, body}, respuesta {message_id}. Implementa channels.Sender.
type Client struct {
	http         *httpclient.Client
	apiKey       string
	apiKeyHeader string
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrNotConfigured
	}

	hc, err := httpclient.NewWithBaseURL(cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	header := strings.TrimSpace(cfg.APIKeyHeader)
	if header == "" {
		header = "X-Api-Key"
	}

	return &Client{
		http:         hc,
		apiKey:       strings.TrimSpace(cfg.APIKey),
		apiKeyHeader: header,
	}, nil
}

// NewWithHTTP inyecta el httpclient (para tests con RoundTripper fake).
func NewWithHTTP(hc *httpclient.Client, apiKey string) *Client {
	return &Client{
		http:         hc,
		apiKey:       apiKey,
		apiKeyHeader: "X-Api-Key",
	}
}

type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

func (c *Client) Send(ctx context.Context, address, content string) (channels.Receipt, error) {
	address = strings.TrimSpace(address)
	if address == "" || !strings.HasPrefix(address, "+") {
		// Número sin prefijo internacional: el bridge lo rechaza siempre.
		return channels.Receipt{}, channels.Permanent(fmt.Errorf("%w: %q", ErrInvalidAddress, address))
	}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers[c.apiKeyHeader] = c.apiKey
	}

	var resp sendResponse
	err := c.http.DoJSON(ctx, http.MethodPost, "/messages", headers, sendRequest{
		To:   address,
		Body: content,
	}, &resp)
	if err != nil {
		return channels.Receipt{}, classify(err)
	}

	return channels.Receipt{ProviderMessageID: resp.MessageID}, nil
}

// classify separa fallas del proveedor: 4xx no se reintenta (el request
// está mal), todo lo demás (5xx, timeout, red) sí.
func classify(err error) error {
	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
			return channels.Permanent(err)
		}
		return channels.Transient(err)
	}
	return channels.Transient(err)
}
