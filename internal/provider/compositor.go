package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// HTTPGarmentCompositor calls an image synthesis API that runs compositing
// as an async job: submit, then poll the job status until it settles. The
// polling stays inside this client so callers see one blocking call.
type HTTPGarmentCompositor struct {
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	pollTimeout  time.Duration
	client       *http.Client
}

// NewHTTPGarmentCompositor creates a garment compositor client.
func NewHTTPGarmentCompositor(baseURL, apiKey string, pollInterval, pollTimeout time.Duration) *HTTPGarmentCompositor {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if pollTimeout <= 0 {
		pollTimeout = 90 * time.Second
	}
	return &HTTPGarmentCompositor{
		baseURL:      baseURL,
		apiKey:       apiKey,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

type composeRequest struct {
	BodyImageRef string `json:"body_image_ref"`
	Garment      string `json:"garment"`
}

type composeJob struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"` // queued, processing, done, failed
	ResultRef string `json:"result_ref,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Compose submits a compositing job and blocks until it completes, fails, or
// the poll deadline passes.
func (c *HTTPGarmentCompositor) Compose(ctx context.Context, bodyImageRef, garmentDescription string) (string, error) {
	job, err := c.submit(ctx, bodyImageRef, garmentDescription)
	if err != nil {
		return "", err
	}

	pollCtx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	return c.waitForResult(pollCtx, job.JobID)
}

func (c *HTTPGarmentCompositor) submit(ctx context.Context, bodyImageRef, garment string) (*composeJob, error) {
	body, err := json.Marshal(composeRequest{BodyImageRef: bodyImageRef, Garment: garment})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", ErrComposition, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/compose", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrComposition, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrComposition, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("%w: submit returned status %d", ErrComposition, resp.StatusCode)
	}

	var job composeJob
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("%w: decode submit response: %w", ErrComposition, err)
	}
	if job.JobID == "" {
		return nil, fmt.Errorf("%w: submit returned no job id", ErrComposition)
	}
	return &job, nil
}

// waitForResult polls the job until it reaches a settled status. Transient
// poll errors are logged and retried; only the deadline or a settled job
// ends the loop.
func (c *HTTPGarmentCompositor) waitForResult(ctx context.Context, jobID string) (string, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		job, err := c.pollJob(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("%w: job %s did not complete in time: %w", ErrComposition, jobID, ctx.Err())
			}
			slog.Warn("compositor poll failed, retrying", "job_id", jobID, "error", err)
		} else {
			switch job.Status {
			case "done":
				if job.ResultRef == "" {
					return "", fmt.Errorf("%w: job %s finished without a result", ErrComposition, jobID)
				}
				return job.ResultRef, nil
			case "failed":
				return "", fmt.Errorf("%w: %s", ErrComposition, job.Error)
			}
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: job %s did not complete in time: %w", ErrComposition, jobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *HTTPGarmentCompositor) pollJob(ctx context.Context, jobID string) (*composeJob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/compose/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("build poll request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll returned status %d", resp.StatusCode)
	}

	var job composeJob
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("decode poll response: %w", err)
	}
	return &job, nil
}
