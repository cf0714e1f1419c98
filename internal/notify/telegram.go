package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/obolbot/obol/internal/httpkit"
)

const defaultAPIBase = "https://api.telegram.org"

// Telegram implements [Sink] and [Memberships] over the Bot API.
// Membership operations target the configured private channel: a grant
// lifts any ban so the user can join, a revoke bans them out.
type Telegram struct {
	apiBase    string
	token      string
	channelID  int64
	httpClient *http.Client
	logger     *slog.Logger
}

// NewTelegram creates the Bot API client. An empty apiBase selects the
// public endpoint.
func NewTelegram(apiBase, token string, channelID int64, logger *slog.Logger) *Telegram {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Telegram{
		apiBase:    strings.TrimRight(apiBase, "/"),
		token:      token,
		channelID:  channelID,
		logger:     logger.With("component", "telegram"),
		httpClient: httpkit.NewClient(httpkit.WithTimeout(httpkit.DefaultTimeout)),
	}
}

func (t *Telegram) call(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", t.apiBase, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%s: API error %d: %s", method, resp.StatusCode, string(msg))
	}

	var out struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !out.OK {
		return fmt.Errorf("%s rejected: %s", method, out.Description)
	}
	return nil
}

// Send implements [Sink].
func (t *Telegram) Send(ctx context.Context, userID int64, text string) error {
	return t.call(ctx, "sendMessage", map[string]any{
		"chat_id": userID,
		"text":    text,
	})
}

// Grant implements [Memberships]. Lifting the ban lets a previously
// revoked user rejoin via the channel invite link.
func (t *Telegram) Grant(ctx context.Context, userID int64) error {
	return t.call(ctx, "unbanChatMember", map[string]any{
		"chat_id":        t.channelID,
		"user_id":        userID,
		"only_if_banned": true,
	})
}

// Revoke implements [Memberships].
func (t *Telegram) Revoke(ctx context.Context, userID int64) error {
	return t.call(ctx, "banChatMember", map[string]any{
		"chat_id": t.channelID,
		"user_id": userID,
	})
}
