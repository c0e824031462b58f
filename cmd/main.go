package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/samber/lo"

	"video-crosspost/internal"
	"video-crosspost/internal/logging"
	"video-crosspost/internal/model"
	"video-crosspost/internal/scheduler"
	"video-crosspost/internal/uploaders"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env file if it exists (try multiple paths)
	envPaths := []string{".env", "../.env", "../../.env"}
	for _, path := range envPaths {
		_ = godotenv.Load(path)
	}

	sourceURL := flag.String("url", "", "public URL of the video to publish")
	title := flag.String("title", "", "video title")
	description := flag.String("description", "", "video description (YouTube)")
	caption := flag.String("caption", "", "caption (Instagram), defaults to the title")
	platforms := flag.String("platforms", "", "comma separated platforms, default all configured")
	enqueue := flag.Bool("enqueue", false, "queue the post for the scheduler instead of publishing now")
	serve := flag.Bool("serve", false, "run the scheduler until interrupted")
	errorsTail := flag.Int("errors", 0, "print the last N lines of the error log and exit")
	flag.Parse()

	cfg, err := internal.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}

	if *errorsTail > 0 {
		lines, err := logging.TailLastNLines(cfg.ErrorsLog, *errorsTail)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", cfg.ErrorsLog, err)
			return 1
		}
		fmt.Println(strings.Join(lines, "\n"))
		return 0
	}

	log, err := logging.New(cfg.ErrorsLog, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stop on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Infof("shutdown signal received")
		cancel()
	}()

	svc, err := scheduler.BuildService(ctx, cfg, log)
	if err != nil {
		log.Errorf("build service: %v", err)
		return 1
	}

	if *serve {
		if err := svc.Run(ctx); err != nil {
			log.Errorf("scheduler stopped: %v", err)
			return 1
		}
		return 0
	}

	if *sourceURL == "" {
		flag.Usage()
		return 2
	}
	post := &uploaders.Post{
		SourceURL:   *sourceURL,
		Title:       *title,
		Description: *description,
		Caption:     *caption,
	}
	selected := splitPlatforms(*platforms)

	if *enqueue {
		job, err := svc.Enqueue(ctx, post, selected)
		if err != nil {
			log.Errorf("enqueue: %v", err)
			return 1
		}
		return printJSON(job)
	}

	results := svc.Publish(ctx, post, selected)
	if code := printJSON(results); code != 0 {
		return code
	}
	if lo.SomeBy(lo.Values(results), func(r model.PublishResult) bool { return !r.OK }) {
		return 1
	}
	return 0
}

func splitPlatforms(s string) []string {
	parts := lo.Map(strings.Split(s, ","), func(p string, _ int) string {
		return strings.ToLower(strings.TrimSpace(p))
	})
	return lo.Compact(parts)
}

func printJSON(v any) int {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		return 1
	}
	fmt.Println(string(b))
	return 0
}
