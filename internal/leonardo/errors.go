package leonardo

import (
	"errors"
	"fmt"
)

var (
	ErrAPIKeyRequired        = errors.New("API key is required")
	ErrRefinementFailed      = errors.New("prompt refinement failed")
	ErrRefinementUnavailable = errors.New("prompt refinement unavailable")
	ErrUploadSetupFailed     = errors.New("reference upload setup failed")
	ErrUploadFailed          = errors.New("reference upload failed")
	ErrSubmissionFailed      = errors.New("generation submission failed")
	ErrPollFailed            = errors.New("generation status check failed")
	ErrTimedOut              = errors.New("generation timed out")
)

// PromptTooLongError is returned by ImprovePrompt when the service rejects
// the prompt for exceeding its length limit. Length is the character count
// of the offending prompt, so callers can echo it back to the user.
type PromptTooLongError struct {
	Length int
}

func (e *PromptTooLongError) Error() string {
	return fmt.Sprintf("prompt too long: %d characters", e.Length)
}
