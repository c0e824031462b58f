package uploaders

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"video-crosspost/internal/model"
)

const (
	DefaultGraphBaseURL = "https://graph.facebook.com/v20.0"

	graphCreateTimeout  = 60 * time.Second
	graphStatusTimeout  = 30 * time.Second
	graphPublishTimeout = 60 * time.Second

	defaultPollInterval = 5 * time.Second
	defaultPollTimeout  = 5 * time.Minute
)

// ErrContainerTimeout is returned when a container is still processing after the poll budget.
var ErrContainerTimeout = errors.New("instagram: timeout waiting container")

// ContainerStatusError is a terminal container status other than FINISHED.
type ContainerStatusError struct {
	CreationID string
	Status     model.ContainerStatus
}

func (e *ContainerStatusError) Error() string {
	return fmt.Sprintf("instagram: container %s status %s", e.CreationID, e.Status)
}

// InstagramUploader publishes hosted videos as Reels through the Graph API.
// Every failure is returned as an error; the caller decides how to report it.
type InstagramUploader struct {
	userID      string
	accessToken string
	baseURL     string
	http        *resty.Client

	pollInterval time.Duration
	pollTimeout  time.Duration
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
}

type InstagramOption func(*InstagramUploader)

func WithGraphBaseURL(baseURL string) InstagramOption {
	return func(i *InstagramUploader) {
		if baseURL != "" {
			i.baseURL = baseURL
		}
	}
}

// WithPolling overrides the status poll interval and the total wait budget.
func WithPolling(interval, timeout time.Duration) InstagramOption {
	return func(i *InstagramUploader) {
		if interval > 0 {
			i.pollInterval = interval
		}
		if timeout > 0 {
			i.pollTimeout = timeout
		}
	}
}

func withClock(now func() time.Time, sleep func(context.Context, time.Duration) error) InstagramOption {
	return func(i *InstagramUploader) {
		i.now = now
		i.sleep = sleep
	}
}

// NewInstagramUploader creates a new Instagram uploader
func NewInstagramUploader(userID, accessToken string, opts ...InstagramOption) *InstagramUploader {
	i := &InstagramUploader{
		userID:       userID,
		accessToken:  accessToken,
		baseURL:      DefaultGraphBaseURL,
		http:         resty.New(),
		pollInterval: defaultPollInterval,
		pollTimeout:  defaultPollTimeout,
		now:          time.Now,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Platform returns the platform name
func (i *InstagramUploader) Platform() string {
	return "instagram"
}

// Upload publishes post with the uploader's own account. Caption falls back to the title.
func (i *InstagramUploader) Upload(ctx context.Context, post *Post) (model.PublishResult, error) {
	caption := post.Caption
	if caption == "" {
		caption = post.Title
	}
	return i.Publish(ctx, model.PublishRequest{
		OwnerID:     i.userID,
		AccessToken: i.accessToken,
		MediaURL:    post.SourceURL,
		Caption:     caption,
	})
}

// Publish creates a video container, waits for the platform to finish processing
// it and publishes it.
func (i *InstagramUploader) Publish(ctx context.Context, req model.PublishRequest) (model.PublishResult, error) {
	creationID, err := i.createContainer(ctx, req)
	if err != nil {
		return model.PublishResult{}, err
	}

	if err := i.waitContainer(ctx, req.AccessToken, creationID); err != nil {
		return model.PublishResult{}, err
	}

	body, err := i.call(ctx, "media_publish", http.MethodPost, "/"+req.OwnerID+"/media_publish", graphPublishTimeout, map[string]string{
		"access_token": req.AccessToken,
		"creation_id":  creationID,
	})
	if err != nil {
		return model.PublishResult{}, err
	}

	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		return model.PublishResult{OK: false, Reason: "media_publish returned no id"}, nil
	}
	return model.PublishResult{OK: true, ID: id}, nil
}

func (i *InstagramUploader) createContainer(ctx context.Context, req model.PublishRequest) (string, error) {
	body, err := i.call(ctx, "create container", http.MethodPost, "/"+req.OwnerID+"/media", graphCreateTimeout, map[string]string{
		"access_token": req.AccessToken,
		"media_type":   "VIDEO",
		"video_url":    req.MediaURL,
		"caption":      req.Caption,
	})
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		return "", fmt.Errorf("instagram create container: response has no id: %s", body)
	}
	return id, nil
}

// waitContainer polls status_code every pollInterval until it leaves IN_PROGRESS.
// The budget is measured from loop entry and checked after each query, so a slow
// status call cannot stretch the deadline.
func (i *InstagramUploader) waitContainer(ctx context.Context, accessToken, creationID string) error {
	status := model.ContainerInProgress
	start := i.now()
	for status == model.ContainerInProgress {
		if err := i.sleep(ctx, i.pollInterval); err != nil {
			return err
		}
		body, err := i.call(ctx, "container status", http.MethodGet, "/"+creationID, graphStatusTimeout, map[string]string{
			"fields":       "status_code",
			"access_token": accessToken,
		})
		if err != nil {
			return err
		}
		status = model.ContainerStatus(gjson.GetBytes(body, "status_code").String())
		if status == "" {
			status = model.ContainerInProgress
		}
		if i.now().Sub(start) > i.pollTimeout {
			return fmt.Errorf("%w %s (last status %s)", ErrContainerTimeout, creationID, status)
		}
	}
	if status != model.ContainerFinished {
		return &ContainerStatusError{CreationID: creationID, Status: status}
	}
	return nil
}

func (i *InstagramUploader) call(ctx context.Context, op, method, path string, timeout time.Duration, params map[string]string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := i.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Execute(method, i.baseURL+path)
	if err != nil {
		return nil, fmt.Errorf("instagram %s: %w", op, err)
	}
	if resp.IsError() {
		return nil, &APIError{Op: "instagram " + op, StatusCode: resp.StatusCode(), Body: resp.Body()}
	}
	return resp.Body(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
