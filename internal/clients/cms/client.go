package cms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/yungbote/roomscore-backend/internal/logger"
	pkgerrors "github.com/yungbote/roomscore-backend/internal/pkg/errors"
	"github.com/yungbote/roomscore-backend/internal/scoring"
)

// Client reads a room's lesson-plan materials from the cms. A room with no
// lesson plan is a hard miss: scoring has nothing to score against.
type Client interface {
	GetMaterials(ctx context.Context, roomID string) ([]*scoring.Material, error)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL: strings.TrimSpace(os.Getenv("CMS_URL")),
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
		return nil, fmt.Errorf("missing CMS_URL")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &client{
		log:  log.With("client", "CMSClient"),
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log  *logger.Logger
	cfg  Config
	http *http.Client
}

type materialsResponse struct {
	List []*scoring.Material `json:"list"`
}

func (c *client) GetMaterials(ctx context.Context, roomID string) ([]*scoring.Material, error) {
	endpoint := fmt.Sprintf("%s/v1/schedules/%s/materials", c.cfg.BaseURL, url.PathEscape(roomID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cms materials request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("lesson plan for room %s: %w", roomID, pkgerrors.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cms materials request: unexpected status %d", resp.StatusCode)
	}

	var out materialsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("cms materials decode: %w", err)
	}
	return out.List, nil
}
