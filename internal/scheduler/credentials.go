package scheduler

import (
	"context"
	"errors"
	"fmt"

	"video-crosspost/internal/s3"
)

const youtubeTokenFile = "youtube_token.json"

// YouTubeCredentials is the bundle written by generate_token.
type YouTubeCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
}

// LoadYouTubeCredentials reads <prefix>youtube_token.json. A missing object
// returns (nil, nil).
func LoadYouTubeCredentials(ctx context.Context, store s3.Client, prefix string) (*YouTubeCredentials, error) {
	key := prefix + youtubeTokenFile
	var creds YouTubeCredentials
	found, err := store.ReadJSON(ctx, key, &creds)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	if !found {
		return nil, nil
	}
	if creds.ClientID == "" || creds.ClientSecret == "" || creds.RefreshToken == "" {
		return nil, errors.New(key + " is missing client_id, client_secret or refresh_token")
	}
	return &creds, nil
}
