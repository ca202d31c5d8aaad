package leonardo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"go.uber.org/zap"
)

// Generate submits a generation job with no reference conditioning and polls
// it to completion: PollAttempts status checks spaced PollInterval apart
// (2s x 30 by default). A non-2xx poll is treated as transient and the loop
// keeps going; exhausting the budget returns ErrTimedOut.
func (c *Client) Generate(ctx context.Context, prompt string) (*GeneratedImage, error) {
	generationID, err := c.submit(ctx, &generationRequest{
		Height:        512,
		Width:         1040,
		ModelID:       scratchModelID,
		Prompt:        prompt,
		PhotoReal:     false,
		GuidanceScale: 8,
		NumImages:     1,
	})
	if err != nil {
		return nil, err
	}

	return c.pollUntilComplete(ctx, generationID)
}

// GenerateWithReference uploads the image at referenceURL as an init image
// and submits a job conditioned on it: low init strength so the textual
// prompt dominates, plus a Style Reference controlnet at low strength.
//
// Unlike Generate, this path waits a single fixed ReferenceDelay and performs
// exactly one status check; a failed check is surfaced rather than retried.
func (c *Client) GenerateWithReference(ctx context.Context, prompt, referenceURL string) (*GeneratedImage, error) {
	imageID, err := c.uploadReference(ctx, referenceURL)
	if err != nil {
		return nil, err
	}

	generationID, err := c.submit(ctx, &generationRequest{
		Height:        512,
		Width:         1040,
		ModelID:       referenceModelID,
		Prompt:        prompt,
		PhotoReal:     false,
		GuidanceScale: 9,
		NumImages:     1,
		InitImageID:   imageID,
		InitStrength:  0.05,
		Controlnets: []controlnet{{
			InitImageID:    imageID,
			InitImageType:  "UPLOADED",
			PreprocessorID: stylePreprocessorID,
			StrengthType:   "Low",
		}},
		PresetStyle: "DYNAMIC",
	})
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrPollFailed, ctx.Err())
	case <-time.After(c.referenceDelay):
	}

	img, complete, err := c.checkStatus(ctx, generationID)
	if err != nil {
		return nil, err
	}
	if !complete || img == nil {
		return nil, ErrTimedOut
	}
	return img, nil
}

// uploadReference performs the three-step init-image protocol: request an
// upload slot, fetch the reference bytes, and post them to the returned
// target. A non-204 from the upload target fails the call before any
// generation is submitted.
func (c *Client) uploadReference(ctx context.Context, referenceURL string) (string, error) {
	status, body, err := c.postJSON(ctx, "/init-image", initImageRequest{Extension: "jpg"})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadSetupFailed, err)
	}
	if status != http.StatusOK {
		c.logger.Warn("init-image request rejected",
			zap.Int("status", status),
			zap.ByteString("body", body))
		return "", fmt.Errorf("%w: status %d", ErrUploadSetupFailed, status)
	}

	var slot initImageResponse
	if err := json.Unmarshal(body, &slot); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadSetupFailed, err)
	}

	// The upload fields arrive as a JSON object encoded inside a string.
	var fields map[string]string
	if err := json.Unmarshal([]byte(slot.UploadInitImage.Fields), &fields); err != nil {
		return "", fmt.Errorf("%w: invalid upload fields: %v", ErrUploadSetupFailed, err)
	}

	raw, err := c.fetchReference(ctx, referenceURL)
	if err != nil {
		return "", err
	}

	if err := c.directUpload(ctx, slot.UploadInitImage.URL, fields, raw); err != nil {
		return "", err
	}

	c.logger.Debug("reference image uploaded",
		zap.String("image_id", slot.UploadInitImage.ID),
		zap.Int("bytes", len(raw)))

	return slot.UploadInitImage.ID, nil
}

func (c *Client) fetchReference(ctx context.Context, referenceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, referenceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: reference fetch returned status %d", ErrUploadFailed, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return raw, nil
}

func (c *Client) directUpload(ctx context.Context, target string, fields map[string]string, raw []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			return fmt.Errorf("%w: %v", ErrUploadFailed, err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(header)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if _, err := part.Write(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &buf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	// The upload target is presigned; no authorization header goes here.
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	// Success is an empty-body 204 acknowledgement.
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: upload target returned status %d", ErrUploadFailed, resp.StatusCode)
	}
	return nil
}

func (c *Client) submit(ctx context.Context, genReq *generationRequest) (string, error) {
	status, body, err := c.postJSON(ctx, "/generations", genReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	if status != http.StatusOK {
		c.logger.Warn("generation submission rejected",
			zap.Int("status", status),
			zap.ByteString("body", body))
		return "", fmt.Errorf("%w: status %d", ErrSubmissionFailed, status)
	}

	var resp generationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	if resp.SDGenerationJob.GenerationID == "" {
		return "", fmt.Errorf("%w: missing generation id", ErrSubmissionFailed)
	}

	c.logger.Debug("generation submitted",
		zap.String("generation_id", resp.SDGenerationJob.GenerationID),
		zap.String("model_id", genReq.ModelID))

	return resp.SDGenerationJob.GenerationID, nil
}

func (c *Client) pollUntilComplete(ctx context.Context, generationID string) (*GeneratedImage, error) {
	for attempt := 1; attempt <= c.pollAttempts; attempt++ {
		img, complete, err := c.checkStatus(ctx, generationID)
		if err != nil {
			// Transient: the job may still complete on a later attempt.
			c.logger.Debug("generation poll failed",
				zap.String("generation_id", generationID),
				zap.Int("attempt", attempt),
				zap.Error(err))
		} else if complete {
			if img == nil {
				return nil, ErrTimedOut
			}
			return img, nil
		}

		if attempt == c.pollAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrPollFailed, ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}

	return nil, ErrTimedOut
}

// checkStatus performs one status poll. complete is true once the remote
// reports COMPLETE; img is nil when completion produced no images.
func (c *Client) checkStatus(ctx context.Context, generationID string) (img *GeneratedImage, complete bool, err error) {
	status, body, err := c.getJSON(ctx, "/generations/"+generationID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrPollFailed, err)
	}
	if status != http.StatusOK {
		return nil, false, fmt.Errorf("%w: status %d", ErrPollFailed, status)
	}

	var resp statusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrPollFailed, err)
	}

	if resp.GenerationsByPK.Status != "COMPLETE" {
		return nil, false, nil
	}
	images := resp.GenerationsByPK.GeneratedImages
	if len(images) == 0 {
		return nil, true, nil
	}
	return &GeneratedImage{URL: images[0].URL}, true, nil
}
