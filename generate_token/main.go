package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"video-crosspost/internal"
	"video-crosspost/internal/s3"
	"video-crosspost/internal/scheduler"
)

// TokenData is the credential bundle read back by the uploader. The first
// three fields are all it needs; the rest is for humans.
type TokenData struct {
	scheduler.YouTubeCredentials
	Token     string `json:"token,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Expiry    string `json:"expiry,omitempty"`
}

func main() {
	_ = godotenv.Load(".env")

	tokenPath := flag.String("token", "youtube_token.json", "Path to save the token bundle")
	credentialsPath := flag.String("credentials", "client_secrets.json", "Path to client_secrets.json")
	uploadS3 := flag.Bool("s3", false, "also store the bundle in S3 under TOKENS_PREFIX")
	flag.Parse()

	fmt.Println("YouTube token generator")
	fmt.Println("========================================")
	fmt.Println()

	if _, err := os.Stat(*credentialsPath); os.IsNotExist(err) {
		fmt.Printf("Credentials file not found: %s\n", *credentialsPath)
		fmt.Println("   Download from https://console.cloud.google.com/")
		fmt.Println("   1. Create OAuth 2.0 credentials (Desktop app)")
		fmt.Println("   2. Download the JSON file and rename it to client_secrets.json")
		os.Exit(1)
	}

	fmt.Printf("Using credentials: %s\n", *credentialsPath)
	fmt.Printf("Token will be saved to: %s\n", *tokenPath)
	fmt.Println()

	// upload plus read-only, the latter for the daily quota query
	scopes := []string{
		youtube.YoutubeUploadScope,
		youtube.YoutubeReadonlyScope,
	}

	ctx := context.Background()

	b, err := os.ReadFile(*credentialsPath)
	if err != nil {
		fail("read credentials", err)
	}

	config, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		fail("create config", err)
	}

	authURL := config.AuthCodeURL("state", oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	fmt.Println("Open this URL in your browser:")
	fmt.Printf("   %s\n", authURL)
	fmt.Println()
	fmt.Print("Paste the authorization code: ")

	var authCode string
	if _, err := fmt.Scanln(&authCode); err != nil {
		fail("read auth code", err)
	}

	fmt.Println()
	fmt.Println("Exchanging code for token...")

	token, err := config.Exchange(ctx, authCode)
	if err != nil {
		fail("exchange token", err)
	}
	if token.RefreshToken == "" {
		fmt.Println("No refresh token returned. Revoke the app's access and run again.")
		os.Exit(1)
	}

	tokenData := TokenData{
		YouTubeCredentials: scheduler.YouTubeCredentials{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RefreshToken: token.RefreshToken,
		},
		Token:     token.AccessToken,
		TokenType: token.TokenType,
		Expiry:    token.Expiry.String(),
	}

	tokenJSON, err := json.MarshalIndent(tokenData, "", "  ")
	if err != nil {
		fail("marshal token", err)
	}

	dir := filepath.Dir(*tokenPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fail("create directory", err)
		}
	}
	if err := os.WriteFile(*tokenPath, tokenJSON, 0o600); err != nil {
		fail("save token", err)
	}
	fmt.Printf("Token saved: %s\n", *tokenPath)

	if *uploadS3 {
		cfg, err := internal.LoadConfig()
		if err != nil {
			fail("load config", err)
		}
		client, err := s3.New(ctx, cfg)
		if err != nil {
			fail("connect to S3", err)
		}
		key := cfg.TokensPrefix + "youtube_token.json"
		if err := client.PutBytes(ctx, key, tokenJSON, "application/json"); err != nil {
			fail("upload token", err)
		}
		fmt.Printf("Token uploaded to s3://%s/%s\n", cfg.S3Bucket, key)
	}
	fmt.Println()

	fmt.Println("Fetching channel information...")
	client := config.Client(ctx, token)
	youtubeService, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		fmt.Printf("Could not verify channel (will still work): %v\n", err)
		os.Exit(0)
	}

	channels, err := youtubeService.Channels.List([]string{"snippet"}).Mine(true).Do()
	if err != nil {
		fmt.Printf("Could not fetch channel info: %v\n", err)
		os.Exit(0)
	}
	if len(channels.Items) > 0 {
		channel := channels.Items[0]
		fmt.Printf("Channel: %s\n", channel.Snippet.Title)
		fmt.Printf("   ID: %s\n", channel.Id)
	}

	fmt.Println()
	fmt.Println("Next steps: set YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET and YOUTUBE_REFRESH_TOKEN,")
	fmt.Println("or run again with -s3 so the service loads the bundle from the bucket.")
}

func fail(what string, err error) {
	fmt.Printf("Failed to %s: %v\n", what, err)
	os.Exit(1)
}
