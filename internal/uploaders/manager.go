package uploaders

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"

	"video-crosspost/internal"
	"video-crosspost/internal/logging"
	"video-crosspost/internal/model"
	"video-crosspost/internal/staging"
)

// Manager manages all uploaders
type Manager struct {
	uploaders map[string]Uploader
	log       *logging.Logger
}

// NewManager registers every platform whose credentials are present in cfg.
func NewManager(cfg internal.Config, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.Nop()
	}
	m := &Manager{
		uploaders: make(map[string]Uploader),
		log:       log,
	}

	if cfg.HasInstagram() {
		m.uploaders["instagram"] = NewInstagramUploader(cfg.IGUserID, cfg.IGAccessToken,
			WithGraphBaseURL(cfg.GraphBaseURL),
			WithPolling(cfg.IGPollInterval, cfg.IGPollTimeout),
		)
	}

	// YouTube credentials may also come from S3, see scheduler.LoadYouTubeCredentials
	if cfg.HasYouTube() {
		m.uploaders["youtube"] = NewYouTubeUploader(cfg.YouTubeClientID, cfg.YouTubeClientSecret, cfg.YouTubeRefreshToken, log,
			WithStager(staging.NewStager(cfg.StagingDir)),
			WithPrivacy(cfg.YouTubePrivacy),
			WithDailyLimit(cfg.YouTubeDailyLimit),
		)
	}

	return m
}

// GetUploader returns an uploader for the specified platform
func (m *Manager) GetUploader(platform string) (Uploader, error) {
	uploader, ok := m.uploaders[platform]
	if !ok {
		return nil, fmt.Errorf("uploader not found for platform: %s", platform)
	}
	return uploader, nil
}

// Upload publishes to one platform. An error from the uploader is logged and
// also folded into the returned result.
func (m *Manager) Upload(ctx context.Context, platform string, post *Post) (model.PublishResult, error) {
	uploader, err := m.GetUploader(platform)
	if err != nil {
		return model.PublishResult{OK: false, Reason: err.Error()}, err
	}

	res, err := uploader.Upload(ctx, post)
	if err != nil {
		Diagnose(err).Log(m.log, platform+".publish")
		return model.PublishResult{OK: false, Reason: err.Error()}, err
	}
	m.log.Infof("%s: ok=%t skipped=%t id=%s reason=%s", platform, res.OK, res.Skipped, res.ID, res.Reason)
	return res, nil
}

// UploadToAll uploads to all configured platforms
func (m *Manager) UploadToAll(ctx context.Context, post *Post) map[string]model.PublishResult {
	return m.UploadToSelected(ctx, m.AvailablePlatforms(), post)
}

// UploadToSelected uploads to each platform in turn, never in parallel.
func (m *Manager) UploadToSelected(ctx context.Context, platforms []string, post *Post) map[string]model.PublishResult {
	results := make(map[string]model.PublishResult)

	for _, platform := range lo.Uniq(platforms) {
		result, _ := m.Upload(ctx, platform, post)
		results[platform] = result
	}

	return results
}

// AvailablePlatforms returns the registered platforms in sorted order
func (m *Manager) AvailablePlatforms() []string {
	platforms := lo.Keys(m.uploaders)
	sort.Strings(platforms)
	return platforms
}

// AddUploader adds or replaces an uploader for a platform
func (m *Manager) AddUploader(platform string, uploader Uploader) {
	m.uploaders[platform] = uploader
}
