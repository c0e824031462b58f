package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrDownload marks any failure to fetch the source or write it to disk.
var ErrDownload = errors.New("Failed to download sourceUrl")

// Stager copies remote media into uniquely named local files.
type Stager struct {
	dir  string
	http *resty.Client
}

// NewStager returns a Stager writing into dir. An empty dir means os.TempDir().
// Downloads have no timeout since source videos vary widely in size.
func NewStager(dir string) *Stager {
	if dir == "" {
		dir = os.TempDir()
	}
	c := resty.New()
	c.SetTimeout(0)
	return &Stager{dir: dir, http: c}
}

func (s *Stager) Dir() string { return s.dir }

// Download streams sourceURL into a new file and returns its path.
// On error no file is left behind and the error wraps ErrDownload.
func (s *Stager) Download(ctx context.Context, sourceURL string) (string, error) {
	resp, err := s.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(sourceURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		snippet, _ := io.ReadAll(io.LimitReader(body, 512))
		return "", fmt.Errorf("%w: http %d for %s: %s", ErrDownload, resp.StatusCode(), sourceURL, snippet)
	}

	f, err := os.CreateTemp(s.dir, fmt.Sprintf("upload-%d-*.mp4", time.Now().UnixNano()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	path := f.Name()

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("%w: write %s: %v", ErrDownload, path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("%w: close %s: %v", ErrDownload, path, err)
	}
	return path, nil
}

// Remove deletes a staged file. A file that is already gone is not an error.
func (s *Stager) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
