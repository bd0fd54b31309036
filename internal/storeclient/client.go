package storeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blackmichael/wish-lanterns/internal/domain"
	"github.com/blackmichael/wish-lanterns/internal/realtime"
)

const defaultServer = "http://localhost:3000"

// Client is a domain.WishStore backed by a remote wish server: REST calls
// for reads and writes, the /realtime WebSocket for change events.
type Client struct {
	server     string
	httpClient *http.Client
	subscriber *realtime.Subscriber
}

// NewClient creates a client for the wish server at server. If server is
// empty, it defaults to http://localhost:3000.
func NewClient(server string, logger *slog.Logger) *Client {
	if server == "" {
		server = defaultServer
	}
	server = strings.TrimRight(server, "/")
	return &Client{
		server: server,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		subscriber: realtime.NewSubscriber(server+"/realtime", logger),
	}
}

// List fetches every wish, newest first.
func (c *Client) List(ctx context.Context) ([]domain.Wish, error) {
	var wishes []domain.Wish
	if err := c.do(ctx, http.MethodGet, "/api/wishes", nil, &wishes); err != nil {
		return nil, domain.NewStoreError("list", err)
	}
	return wishes, nil
}

// Insert creates a wish on the server.
func (c *Client) Insert(ctx context.Context, nw domain.NewWish) (domain.Wish, error) {
	var w domain.Wish
	if err := c.do(ctx, http.MethodPost, "/api/wishes", nw, &w); err != nil {
		return domain.Wish{}, domain.NewStoreError("insert", err)
	}
	return w, nil
}

// Update patches a wish on the server.
func (c *Client) Update(ctx context.Context, id string, patch domain.WishPatch) (domain.Wish, error) {
	var w domain.Wish
	if err := c.do(ctx, http.MethodPatch, "/api/wishes/"+url.PathEscape(id), patch, &w); err != nil {
		return domain.Wish{}, domain.NewStoreError("update", err)
	}
	return w, nil
}

// Subscribe opens the server's realtime feed.
func (c *Client) Subscribe(ctx context.Context) (domain.Subscription, error) {
	sub, err := c.subscriber.Subscribe(ctx)
	if err != nil {
		return nil, domain.NewStoreError("subscribe", err)
	}
	return sub, nil
}

// apiError is the error body the wish server returns.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.server+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

func statusError(status int, body []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	msg := apiErr.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	if status == http.StatusNotFound {
		return fmt.Errorf("API error (status %d): %w", status, domain.ErrNotFound)
	}
	return fmt.Errorf("API error (status %d): %s", status, msg)
}
