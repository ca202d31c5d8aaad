package leonardo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// ImprovePrompt asks the service to rewrite prompt into a richer generation
// prompt. The service enforces a length limit (around 200 characters); a
// rejection naming that condition comes back as *PromptTooLongError. Other
// non-200 responses map to ErrRefinementFailed and transport or decode
// failures to ErrRefinementUnavailable. No retry happens here; the
// conversation layer decides whether to re-prompt the user.
func (c *Client) ImprovePrompt(ctx context.Context, prompt string) (string, error) {
	status, body, err := c.postJSON(ctx, "/prompt/improve", improveRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefinementUnavailable, err)
	}

	if status != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil &&
			strings.Contains(strings.ToLower(errResp.Error), "too long") {
			return "", &PromptTooLongError{Length: utf8.RuneCountInString(prompt)}
		}
		c.logger.Warn("prompt refinement rejected",
			zap.Int("status", status),
			zap.ByteString("body", body))
		return "", fmt.Errorf("%w: status %d", ErrRefinementFailed, status)
	}

	var resp improveResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefinementUnavailable, err)
	}
	if resp.PromptGeneration.Prompt == "" {
		return "", fmt.Errorf("%w: empty prompt in response", ErrRefinementFailed)
	}

	return resp.PromptGeneration.Prompt, nil
}
