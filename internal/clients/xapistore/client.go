package xapistore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/roomscore-backend/internal/logger"
	"github.com/yungbote/roomscore-backend/internal/xapi"
)

// Client searches the raw xAPI statement store by user and time window.
// Fetch failures are transient; retry policy belongs to the caller.
type Client interface {
	SearchEvents(ctx context.Context, userID string, fromMillis, toMillis int64) ([]*xapi.RawEvent, error)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL: strings.TrimSpace(os.Getenv("XAPI_STORE_URL")),
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("missing XAPI_STORE_URL")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &client{
		log:  log.With("client", "XAPIStoreClient"),
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log  *logger.Logger
	cfg  Config
	http *http.Client
}

type searchResponse struct {
	Events []*xapi.RawEvent `json:"events"`
}

func (c *client) SearchEvents(ctx context.Context, userID string, fromMillis, toMillis int64) ([]*xapi.RawEvent, error) {
	query := url.Values{}
	query.Set("userId", userID)
	query.Set("from", strconv.FormatInt(fromMillis, 10))
	query.Set("to", strconv.FormatInt(toMillis, 10))
	endpoint := fmt.Sprintf("%s/events?%s", c.cfg.BaseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("xapi search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("xapi search request: unexpected status %d", resp.StatusCode)
	}
	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("xapi search decode: %w", err)
	}
	return out.Events, nil
}
