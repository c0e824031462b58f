package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/samber/lo"

	"video-crosspost/internal"
	"video-crosspost/internal/logging"
	"video-crosspost/internal/model"
	"video-crosspost/internal/s3"
	"video-crosspost/internal/staging"
	"video-crosspost/internal/uploaders"
)

type Service struct {
	cfg  internal.Config
	log  *logging.Logger
	s3c  s3.Client
	mgr  *uploaders.Manager
	cron *cron.Cron

	// jobsMux guards read-modify-write of the jobs index
	jobsMux sync.Mutex
	now     func() time.Time
	newID   func() string
}

// NewService wires a service from already-built parts.
func NewService(cfg internal.Config, s3c s3.Client, mgr *uploaders.Manager, log *logging.Logger) *Service {
	if log == nil {
		log = logging.Nop()
	}
	return &Service{
		cfg:   cfg,
		log:   log,
		s3c:   s3c,
		mgr:   mgr,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// BuildService connects to S3 (or an in-memory store when no bucket is
// configured), registers uploaders and loads YouTube credentials from S3 when
// they are not in the environment.
func BuildService(ctx context.Context, cfg internal.Config, log *logging.Logger) (*Service, error) {
	if log == nil {
		log = logging.Nop()
	}

	var s3c s3.Client
	if cfg.HasS3() {
		c, err := s3.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s3c = c
	} else {
		log.Warnf("S3 is not configured, queued jobs live in memory only")
		s3c = s3.NewMemory()
	}

	mgr := uploaders.NewManager(cfg, log)

	if !cfg.HasYouTube() && cfg.HasS3() {
		creds, err := LoadYouTubeCredentials(ctx, s3c, cfg.TokensPrefix)
		if err != nil {
			return nil, err
		}
		if creds != nil {
			mgr.AddUploader("youtube", uploaders.NewYouTubeUploader(creds.ClientID, creds.ClientSecret, creds.RefreshToken, log,
				uploaders.WithStager(staging.NewStager(cfg.StagingDir)),
				uploaders.WithPrivacy(cfg.YouTubePrivacy),
				uploaders.WithDailyLimit(cfg.YouTubeDailyLimit),
			))
			log.Infof("loaded youtube credentials from S3")
		}
	}

	platforms := mgr.AvailablePlatforms()
	if len(platforms) == 0 {
		log.Warnf("no platforms configured")
	} else {
		log.Infof("platforms: %v", platforms)
	}

	return NewService(cfg, s3c, mgr, log), nil
}

func (s *Service) Manager() *uploaders.Manager { return s.mgr }

func (s *Service) GetConfig() internal.Config { return s.cfg }

func (s *Service) GetS3Client() s3.Client { return s.s3c }

// Publish posts to the given platforms right away. An empty list means every registered platform.
func (s *Service) Publish(ctx context.Context, post *uploaders.Post, platforms []string) map[string]model.PublishResult {
	if len(platforms) == 0 {
		return s.mgr.UploadToAll(ctx, post)
	}
	return s.mgr.UploadToSelected(ctx, platforms, post)
}

// Enqueue appends a pending job for the scheduler to pick up.
func (s *Service) Enqueue(ctx context.Context, post *uploaders.Post, platforms []string) (*model.Job, error) {
	if post == nil || post.SourceURL == "" {
		return nil, errors.New("enqueue: source url is required")
	}
	if len(platforms) == 0 {
		platforms = s.mgr.AvailablePlatforms()
	}
	platforms = lo.Uniq(platforms)
	if len(platforms) == 0 {
		return nil, errors.New("enqueue: no platforms")
	}

	s.jobsMux.Lock()
	defer s.jobsMux.Unlock()

	idx, err := s.loadJobs(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	job := model.Job{
		ID:          s.newID(),
		SourceURL:   post.SourceURL,
		Title:       post.Title,
		Description: post.Description,
		Caption:     post.Caption,
		Platforms:   platforms,
		Remaining:   append([]string(nil), platforms...),
		Status:      model.JobPending,
		Results:     map[string]model.PublishResult{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	idx.Items = append(idx.Items, job)
	if err := s.saveJobs(ctx, idx); err != nil {
		return nil, err
	}
	s.log.Infof("enqueued job %s for %v", job.ID, platforms)
	return &job, nil
}

// PendingJobs returns the queued jobs that still have platforms to publish to.
func (s *Service) PendingJobs(ctx context.Context) ([]model.Job, error) {
	s.jobsMux.Lock()
	defer s.jobsMux.Unlock()

	idx, err := s.loadJobs(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Filter(idx.Items, func(j model.Job, _ int) bool { return j.Status == model.JobPending }), nil
}

// RunOnce publishes the oldest pending job to its remaining platforms. Skipped
// platforms stay queued for a later run; everything else is settled. It reports
// whether a job was processed.
func (s *Service) RunOnce(ctx context.Context) (bool, error) {
	s.jobsMux.Lock()
	idx, err := s.loadJobs(ctx)
	if err != nil {
		s.jobsMux.Unlock()
		return false, err
	}
	job, ok := lo.Find(idx.Items, func(j model.Job) bool { return j.Status == model.JobPending })
	s.jobsMux.Unlock()
	if !ok {
		return false, nil
	}

	s.log.Infof("running job %s, remaining %v", job.ID, job.Remaining)
	post := &uploaders.Post{
		SourceURL:   job.SourceURL,
		Title:       job.Title,
		Description: job.Description,
		Caption:     job.Caption,
	}
	results := s.mgr.UploadToSelected(ctx, job.Remaining, post)

	s.jobsMux.Lock()
	defer s.jobsMux.Unlock()

	// reload, Enqueue may have run while publishing
	idx, err = s.loadJobs(ctx)
	if err != nil {
		return true, err
	}
	_, i, found := lo.FindIndexOf(idx.Items, func(j model.Job) bool { return j.ID == job.ID })
	if !found {
		return true, fmt.Errorf("job %s disappeared from the queue", job.ID)
	}
	updated := applyResults(idx.Items[i], results, s.now())
	idx.Items[i] = updated

	if err := s.saveJobs(ctx, idx); err != nil {
		return true, err
	}
	if err := s.s3c.WriteJSON(ctx, s.cfg.ReportsPrefix+updated.ID+".json", updated); err != nil {
		s.log.Errorf("write report for job %s: %v", updated.ID, err)
	}
	s.log.Infof("job %s is %s, remaining %v", updated.ID, updated.Status, updated.Remaining)
	return true, nil
}

func applyResults(job model.Job, results map[string]model.PublishResult, now time.Time) model.Job {
	if job.Results == nil {
		job.Results = map[string]model.PublishResult{}
	}
	for platform, res := range results {
		job.Results[platform] = res
	}
	job.Remaining = lo.Filter(job.Remaining, func(p string, _ int) bool {
		res, ok := results[p]
		return ok && res.OK && res.Skipped
	})
	job.UpdatedAt = now

	if len(job.Remaining) == 0 {
		job.Status = model.JobDone
		if lo.SomeBy(lo.Values(job.Results), func(r model.PublishResult) bool { return !r.OK }) {
			job.Status = model.JobFailed
		}
	}
	return job
}

// Run drives RunOnce on the configured cron schedule until ctx is cancelled.
// Runs never overlap.
func (s *Service) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.log})))
	if _, err := c.AddFunc(s.cfg.ScheduleCron, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Errorf("cron run: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", s.cfg.ScheduleCron, err)
	}
	s.cron = c
	s.log.Infof("scheduler started with %q", s.cfg.ScheduleCron)
	c.Start()

	<-ctx.Done()

	ctxStop := c.Stop()
	select {
	case <-ctxStop.Done():
		return nil
	case <-time.After(10 * time.Second):
		return errors.New("cron stop timeout")
	}
}

func (s *Service) loadJobs(ctx context.Context) (model.JobsIndex, error) {
	var idx model.JobsIndex
	if _, err := s.s3c.ReadJSON(ctx, s.cfg.JobsJSONKey, &idx); err != nil {
		return idx, err
	}
	return idx, nil
}

func (s *Service) saveJobs(ctx context.Context, idx model.JobsIndex) error {
	idx.UpdatedAt = s.now()
	return s.s3c.WriteJSON(ctx, s.cfg.JobsJSONKey, &idx)
}

// cronLogger routes cron's own messages through our logger.
type cronLogger struct {
	log *logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debugf("cron: %s %v", msg, keysAndValues)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Errorw("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
