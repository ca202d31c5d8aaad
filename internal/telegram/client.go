// Package telegram implements the slice of the Telegram Bot API the bot
// consumes: long-polled updates, text and photo replies, and file path
// resolution for user-uploaded media.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultAPIHost = "https://api.telegram.org"

	// Long-poll requests may legitimately sit open for the full poll
	// timeout, so the HTTP timeout needs headroom beyond it.
	defaultTimeout = 90 * time.Second
)

var ErrTokenRequired = errors.New("bot token is required")

type Config struct {
	Token   string
	APIHost string
	Logger  *zap.Logger
}

type Client struct {
	token      string
	apiHost    string
	httpClient *http.Client
	logger     *zap.Logger

	// offset is the next update id to request; getUpdates confirms
	// everything below it. Only the polling goroutine touches it.
	offset int64
}

func New(cfg *Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, ErrTokenRequired
	}

	apiHost := cfg.APIHost
	if apiHost == "" {
		apiHost = defaultAPIHost
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		token:   cfg.Token,
		apiHost: apiHost,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}, nil
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

func (c *Client) call(ctx context.Context, method string, payload any, result any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.apiHost + "/bot" + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if !envelope.OK {
		return fmt.Errorf("%s failed: %s", method, envelope.Description)
	}

	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("failed to parse %s result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", struct{}{}, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// GetUpdates long-polls for new updates and advances the confirmation offset
// past everything returned, so each update is delivered once.
func (c *Client) GetUpdates(ctx context.Context, timeoutSec int) ([]Update, error) {
	payload := struct {
		Offset  int64 `json:"offset,omitempty"`
		Timeout int   `json:"timeout"`
	}{
		Offset:  c.offset,
		Timeout: timeoutSec,
	}

	var updates []Update
	if err := c.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}

	for _, upd := range updates {
		if upd.UpdateID >= c.offset {
			c.offset = upd.UpdateID + 1
		}
	}
	return updates, nil
}

func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	payload := struct {
		ChatID int64  `json:"chat_id"`
		Text   string `json:"text"`
	}{
		ChatID: chatID,
		Text:   text,
	}
	return c.call(ctx, "sendMessage", payload, nil)
}

// SendPhoto sends a photo by URL; Telegram fetches the image itself.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photoURL, caption string) error {
	payload := struct {
		ChatID  int64  `json:"chat_id"`
		Photo   string `json:"photo"`
		Caption string `json:"caption,omitempty"`
	}{
		ChatID:  chatID,
		Photo:   photoURL,
		Caption: caption,
	}
	return c.call(ctx, "sendPhoto", payload, nil)
}

// FileURL resolves a file id to the URL its bytes can be fetched from.
func (c *Client) FileURL(ctx context.Context, fileID string) (string, error) {
	payload := struct {
		FileID string `json:"file_id"`
	}{
		FileID: fileID,
	}

	var file File
	if err := c.call(ctx, "getFile", payload, &file); err != nil {
		return "", err
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("getFile returned no file path for %s", fileID)
	}
	return c.apiHost + "/file/bot" + c.token + "/" + file.FilePath, nil
}
