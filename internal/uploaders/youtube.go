package uploaders

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"video-crosspost/internal/logging"
	"video-crosspost/internal/model"
	"video-crosspost/internal/staging"
)

// quotaWindowMaxResults is the most search results one page returns. Accounts
// uploading more than this per day are under-counted.
const quotaWindowMaxResults = 50

// YouTubeUploader handles YouTube video uploads
type YouTubeUploader struct {
	clientID     string
	clientSecret string
	refreshToken string
	privacy      string
	dailyLimit   int

	stager   *staging.Stager
	log      *logging.Logger
	endpoint string
	tokenURL string
	now      func() time.Time
}

type YouTubeOption func(*YouTubeUploader)

// WithYouTubeEndpoint points the Data API and the OAuth token exchange at other hosts.
func WithYouTubeEndpoint(apiBase, tokenURL string) YouTubeOption {
	return func(y *YouTubeUploader) {
		y.endpoint = apiBase
		y.tokenURL = tokenURL
	}
}

func WithStager(s *staging.Stager) YouTubeOption {
	return func(y *YouTubeUploader) {
		if s != nil {
			y.stager = s
		}
	}
}

func WithPrivacy(privacy string) YouTubeOption {
	return func(y *YouTubeUploader) { y.privacy = privacy }
}

func WithDailyLimit(limit int) YouTubeOption {
	return func(y *YouTubeUploader) { y.dailyLimit = limit }
}

// NewYouTubeUploader creates a new YouTube uploader
func NewYouTubeUploader(clientID, clientSecret, refreshToken string, log *logging.Logger, opts ...YouTubeOption) *YouTubeUploader {
	if log == nil {
		log = logging.Nop()
	}
	y := &YouTubeUploader{
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
		privacy:      model.DefaultPrivacyStatus,
		dailyLimit:   model.DefaultDailyLimit,
		stager:       staging.NewStager(""),
		log:          log,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

// Platform returns the platform name
func (y *YouTubeUploader) Platform() string {
	return "youtube"
}

// Upload never returns an error; failures are reported in the result.
func (y *YouTubeUploader) Upload(ctx context.Context, post *Post) (model.PublishResult, error) {
	description := post.Description
	if description == "" {
		description = post.Caption
	}
	return y.UploadVideo(ctx, model.UploadRequest{
		ClientID:      y.clientID,
		ClientSecret:  y.clientSecret,
		RefreshToken:  y.refreshToken,
		SourceURL:     post.SourceURL,
		Title:         post.Title,
		Description:   description,
		PrivacyStatus: y.privacy,
		DailyLimit:    y.dailyLimit,
	}), nil
}

// UploadVideo checks the daily quota, stages the source video locally and
// uploads it. It only ever returns {OK:true}, {OK:true, Skipped:true} or
// {OK:false, Reason}. The staged file is always removed.
func (y *YouTubeUploader) UploadVideo(ctx context.Context, req model.UploadRequest) (res model.PublishResult) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("youtube upload panic: %v", r)
			Diagnose(err).Log(y.log, "YT.outer")
			res = model.PublishResult{OK: false, Reason: err.Error()}
		}
	}()

	if req.DailyLimit <= 0 {
		req.DailyLimit = model.DefaultDailyLimit
	}
	if req.PrivacyStatus == "" {
		req.PrivacyStatus = model.DefaultPrivacyStatus
	}

	service, err := y.authenticate(ctx, req)
	if err != nil {
		return y.outerFailure(err)
	}

	today := y.countTodayUploads(ctx, service)
	if today >= req.DailyLimit {
		y.log.Infof("[YT] daily limit reached (%d/%d), skip", today, req.DailyLimit)
		return model.PublishResult{OK: true, Skipped: true}
	}

	staged, err := y.stager.Download(ctx, req.SourceURL)
	if err != nil {
		Diagnose(err).Log(y.log, "YT.download")
		return model.PublishResult{OK: false, Reason: staging.ErrDownload.Error()}
	}
	defer func() {
		if err := y.stager.Remove(staged); err != nil {
			y.log.Warnf("[YT] failed to remove staged file %s: %v", staged, err)
		}
	}()

	return y.insert(ctx, service, req, staged)
}

func (y *YouTubeUploader) insert(ctx context.Context, service *youtube.Service, req model.UploadRequest, staged string) model.PublishResult {
	videoFile, err := os.Open(staged)
	if err != nil {
		return y.outerFailure(err)
	}
	defer videoFile.Close()

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       stripExtension(req.Title),
			Description: req.Description,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: req.PrivacyStatus,
		},
	}

	// ChunkSize(0) sends the whole file in one request.
	up, err := service.Videos.Insert([]string{"snippet", "status"}, video).
		Media(videoFile, googleapi.ChunkSize(0)).
		Context(ctx).
		Do()
	if err != nil {
		d := Diagnose(err)
		d.Log(y.log, "YT.videos.insert")
		return model.PublishResult{OK: false, Reason: d.Reason()}
	}
	if up.Id == "" {
		return model.PublishResult{OK: false, Reason: "videos.insert returned no id"}
	}
	y.log.Infof("[YT] uploaded video %s", up.Id)
	return model.PublishResult{OK: true, ID: up.Id}
}

// countTodayUploads counts this channel's videos published in the last 24 hours.
// Any failure counts as zero so a broken query never blocks an upload.
func (y *YouTubeUploader) countTodayUploads(ctx context.Context, service *youtube.Service) int {
	since := y.now().Add(-24 * time.Hour).UTC().Format(time.RFC3339)
	res, err := service.Search.List([]string{"id"}).
		ForMine(true).
		Type("video").
		PublishedAfter(since).
		MaxResults(quotaWindowMaxResults).
		Context(ctx).
		Do()
	if err != nil {
		Diagnose(err).Log(y.log, "YT.countTodayUploads")
		return 0
	}
	return len(res.Items)
}

// authenticate builds a Data API client whose token is refreshed from req.RefreshToken.
// Nothing is persisted.
func (y *YouTubeUploader) authenticate(ctx context.Context, req model.UploadRequest) (*youtube.Service, error) {
	if req.ClientID == "" || req.ClientSecret == "" || req.RefreshToken == "" {
		return nil, errors.New("youtube: client id, client secret and refresh token are required")
	}

	config := &oauth2.Config{
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeReadonlyScope},
	}
	if y.tokenURL != "" {
		config.Endpoint.TokenURL = y.tokenURL
	}

	client := config.Client(ctx, &oauth2.Token{RefreshToken: req.RefreshToken})

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if y.endpoint != "" {
		opts = append(opts, option.WithEndpoint(y.endpoint))
	}
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create YouTube service: %w", err)
	}
	return service, nil
}

func (y *YouTubeUploader) outerFailure(err error) model.PublishResult {
	Diagnose(err).Log(y.log, "YT.outer")
	reason := err.Error()
	if reason == "" {
		reason = "unknown"
	}
	return model.PublishResult{OK: false, Reason: reason}
}

// stripExtension drops a trailing file extension, so "clip.mp4" becomes "clip".
func stripExtension(title string) string {
	trimmed := strings.TrimSuffix(title, path.Ext(title))
	if trimmed == "" {
		return title
	}
	return trimmed
}
