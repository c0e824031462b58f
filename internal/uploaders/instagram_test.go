package uploaders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-crosspost/internal/model"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	c.Advance(d)
	return nil
}

// fakeGraph emulates the three Graph endpoints used for a Reel publish.
type fakeGraph struct {
	t *testing.T

	mu            sync.Mutex
	statuses      []string // served in order, the last one repeats
	statusCalls   int
	publishCalls  int
	publishedFrom string
	createQuery   map[string]string

	createStatus int
	createBody   string
	publishBody  string
	onStatus     func()
}

func (g *fakeGraph) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	q := r.URL.Query()
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/1784/media":
		g.createQuery = map[string]string{
			"access_token": q.Get("access_token"),
			"media_type":   q.Get("media_type"),
			"video_url":    q.Get("video_url"),
			"caption":      q.Get("caption"),
		}
		if g.createStatus != 0 {
			w.WriteHeader(g.createStatus)
			_, _ = w.Write([]byte(g.createBody))
			return
		}
		_, _ = w.Write([]byte(`{"id":"c-1"}`))
	case r.Method == http.MethodGet && r.URL.Path == "/c-1":
		assert.Equal(g.t, "status_code", q.Get("fields"))
		assert.Equal(g.t, "tok", q.Get("access_token"))
		if g.onStatus != nil {
			g.onStatus()
		}
		status := g.statuses[len(g.statuses)-1]
		if g.statusCalls < len(g.statuses) {
			status = g.statuses[g.statusCalls]
		}
		g.statusCalls++
		if status == "" {
			_, _ = w.Write([]byte(`{"id":"c-1"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status_code": status, "id": "c-1"})
	case r.Method == http.MethodPost && r.URL.Path == "/1784/media_publish":
		g.publishCalls++
		g.publishedFrom = q.Get("creation_id")
		body := g.publishBody
		if body == "" {
			body = `{"id":"m-9"}`
		}
		_, _ = w.Write([]byte(body))
	default:
		http.NotFound(w, r)
	}
}

func newGraphUploader(t *testing.T, g *fakeGraph, clock *fakeClock) *InstagramUploader {
	t.Helper()
	g.t = t
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)
	return NewInstagramUploader("1784", "tok",
		WithGraphBaseURL(srv.URL),
		withClock(clock.Now, clock.Sleep),
	)
}

func publishRequest() model.PublishRequest {
	return model.PublishRequest{
		OwnerID:     "1784",
		AccessToken: "tok",
		MediaURL:    "https://cdn.example.com/clip.mp4",
		Caption:     "hello",
	}
}

func TestPublishFinished(t *testing.T) {
	g := &fakeGraph{statuses: []string{"IN_PROGRESS", "IN_PROGRESS", "FINISHED"}}
	clock := newFakeClock()
	ig := newGraphUploader(t, g, clock)

	res, err := ig.Publish(context.Background(), publishRequest())
	require.NoError(t, err)
	assert.Equal(t, model.PublishResult{OK: true, ID: "m-9"}, res)

	assert.Equal(t, map[string]string{
		"access_token": "tok",
		"media_type":   "VIDEO",
		"video_url":    "https://cdn.example.com/clip.mp4",
		"caption":      "hello",
	}, g.createQuery)
	assert.Equal(t, 3, g.statusCalls)
	assert.Equal(t, 1, g.publishCalls)
	assert.Equal(t, "c-1", g.publishedFrom)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, clock.sleeps)
}

func TestPublishTimesOutWithoutPublishing(t *testing.T) {
	g := &fakeGraph{statuses: []string{"IN_PROGRESS"}}
	ig := newGraphUploader(t, g, newFakeClock())

	_, err := ig.Publish(context.Background(), publishRequest())
	require.ErrorIs(t, err, ErrContainerTimeout)
	assert.Equal(t, 0, g.publishCalls)
	// 61 polls of 5s is the first point past 5 minutes
	assert.Equal(t, 61, g.statusCalls)
}

func TestPublishDeadlineCountsSlowStatusCalls(t *testing.T) {
	clock := newFakeClock()
	g := &fakeGraph{statuses: []string{"IN_PROGRESS", "IN_PROGRESS", "FINISHED"}}
	g.onStatus = func() { clock.Advance(100 * time.Second) }
	ig := newGraphUploader(t, g, clock)

	// third status arrives at 315s, past the budget, so FINISHED is not honoured
	_, err := ig.Publish(context.Background(), publishRequest())
	require.ErrorIs(t, err, ErrContainerTimeout)
	assert.Equal(t, 3, g.statusCalls)
	assert.Equal(t, 0, g.publishCalls)
}

func TestPublishTerminalStatuses(t *testing.T) {
	for _, status := range []string{"ERROR", "EXPIRED", "SOMETHING_NEW"} {
		t.Run(status, func(t *testing.T) {
			g := &fakeGraph{statuses: []string{"IN_PROGRESS", status}}
			ig := newGraphUploader(t, g, newFakeClock())

			_, err := ig.Publish(context.Background(), publishRequest())
			var statusErr *ContainerStatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, model.ContainerStatus(status), statusErr.Status)
			assert.Equal(t, "c-1", statusErr.CreationID)
			assert.Equal(t, 0, g.publishCalls)
			assert.Equal(t, 2, g.statusCalls)
		})
	}
}

func TestPublishMissingStatusMeansInProgress(t *testing.T) {
	g := &fakeGraph{statuses: []string{"", "", "FINISHED"}}
	ig := newGraphUploader(t, g, newFakeClock())

	res, err := ig.Publish(context.Background(), publishRequest())
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 3, g.statusCalls)
}

func TestPublishCreateRejected(t *testing.T) {
	g := &fakeGraph{
		statuses:     []string{"FINISHED"},
		createStatus: http.StatusBadRequest,
		createBody:   `{"error":{"message":"Invalid parameter","type":"OAuthException","code":100,"fbtrace_id":"x1"}}`,
	}
	ig := newGraphUploader(t, g, newFakeClock())

	_, err := ig.Publish(context.Background(), publishRequest())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, 0, g.statusCalls)
	assert.Equal(t, 0, g.publishCalls)

	d := Diagnose(err)
	require.NotNil(t, d.Envelope)
	assert.Equal(t, "OAuthException", d.Envelope.Type)
}

func TestPublishWithoutIDIsNotOK(t *testing.T) {
	g := &fakeGraph{statuses: []string{"FINISHED"}, publishBody: `{}`}
	ig := newGraphUploader(t, g, newFakeClock())

	res, err := ig.Publish(context.Background(), publishRequest())
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Empty(t, res.ID)
	assert.NotEmpty(t, res.Reason)
}

func TestPublishCancelledContext(t *testing.T) {
	g := &fakeGraph{statuses: []string{"IN_PROGRESS"}}
	srv := httptest.NewServer(g)
	defer srv.Close()
	g.t = t

	ig := NewInstagramUploader("1784", "tok", WithGraphBaseURL(srv.URL), WithPolling(time.Hour, time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ig.Publish(ctx, publishRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, g.publishCalls)
}

func TestUploadUsesTitleWhenCaptionEmpty(t *testing.T) {
	g := &fakeGraph{statuses: []string{"FINISHED"}}
	ig := newGraphUploader(t, g, newFakeClock())

	res, err := ig.Upload(context.Background(), &Post{SourceURL: "https://cdn.example.com/a.mp4", Title: "Title only"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "Title only", g.createQuery["caption"])
	assert.Equal(t, "instagram", ig.Platform())
}
