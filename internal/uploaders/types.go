package uploaders

import (
	"context"

	"video-crosspost/internal/model"
)

// Post is a platform-neutral description of one video to publish.
type Post struct {
	SourceURL   string
	Title       string
	Description string
	Caption     string
}

// Uploader is an interface for publishing videos to one platform
type Uploader interface {
	Upload(ctx context.Context, post *Post) (model.PublishResult, error)
	Platform() string
}
