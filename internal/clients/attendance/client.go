package attendance

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
)

// Session is one attendance record. The same session id can appear more than
// once when a user rejoins; callers merge.
type Session struct {
	SessionID      string `json:"sessionId"`
	UserID         string `json:"userId"`
	JoinTimestamp  int64  `json:"joinTimestamp"`
	LeaveTimestamp int64  `json:"leaveTimestamp"`
}

type RoomAttendance struct {
	RoomID string `json:"roomId"`
	// Seconds east of UTC. The scheduler stores class windows in local
	// wall-clock time, so event-window queries shift by this.
	TimezoneOffset int64     `json:"timezoneOffset"`
	TeacherIDs     []string  `json:"teacherIds"`
	Sessions       []Session `json:"sessions"`
}

type Client interface {
	GetRoomAttendances(ctx context.Context, roomID string) (*RoomAttendance, error)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL: strings.TrimSpace(os.Getenv("ATTENDANCE_SERVICE_URL")),
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
		return nil, fmt.Errorf("missing ATTENDANCE_SERVICE_URL")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &client{
		log:  log.With("client", "AttendanceClient"),
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log  *logger.Logger
	cfg  Config
	http *http.Client
}

func (c *client) GetRoomAttendances(ctx context.Context, roomID string) (*RoomAttendance, error) {
	endpoint := fmt.Sprintf("%s/rooms/%s/attendances", c.cfg.BaseURL, url.PathEscape(roomID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("attendance request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("attendances for room %s: %w", roomID, pkgerrors.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attendance request: unexpected status %d", resp.StatusCode)
	}

	var out RoomAttendance
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("attendance response decode: %w", err)
	}
	if out.RoomID == "" {
		out.RoomID = roomID
	}
	return &out, nil
}
