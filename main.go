package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"kabutune/cmd"
	"kabutune/internal/config"
	"kabutune/internal/encoder"
	"kabutune/internal/logger"
	"kabutune/internal/network"
	"kabutune/internal/news"
	"kabutune/internal/platform"
	"kabutune/internal/platform/piped"
	"kabutune/internal/platform/youtube"
	"kabutune/internal/search"
	"kabutune/internal/server"
	"kabutune/internal/stream"
	"kabutune/pkg/deps"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// ─── Step 1: Parse CLI arguments and load config ───
	args, err := cmd.ParseArgs()
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR]", err)
		cmd.PrintUsageAndExit()
	}

	cfg, err := config.Load(args.ConfigPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR]", err)
		os.Exit(1)
	}
	if err := applyArgs(cfg, args); err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR]", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─── Step 2: Check dependencies ───
	if cfg.Ytdlp().AutoInstall && cfg.Ytdlp().Path == "" {
		if err := youtube.EnsureInstalled(ctx, log); err != nil {
			log.WithError(err).Warn("yt-dlp auto install failed")
		}
	}
	checker := deps.NewChecker("yt-dlp", "ffmpeg").WithPath("yt-dlp", cfg.Ytdlp().Path)
	if err := checker.CheckAndLog(log); err != nil {
		log.WithError(err).Warn("Fallback extractor or transcoding may be unavailable")
		if args.CheckDeps {
			os.Exit(1)
		}
	}
	if args.CheckDeps {
		log.Info("All dependencies found")
		return
	}

	// ─── Step 3: Build the service graph ───
	api, err := buildAPI(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize")
	}

	if !cfg.Log().IsDebug() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := server.SetupRouter(api, cfg.Server(), log)

	srv := &http.Server{
		Addr:              cfg.Server().Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	// ─── Step 4: Serve until a signal arrives ───
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("HTTP API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Fatal("Server error")
		}
	case <-ctx.Done():
		log.Info("Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Graceful shutdown incomplete")
	}
}

func applyArgs(cfg *config.Config, args *cmd.Args) error {
	if args.Port > 0 {
		if err := cfg.Override(config.SERVER_PORT, args.Port); err != nil {
			return err
		}
	}
	if args.LogLevel != "" {
		if err := cfg.Override(config.LOGGING_LEVEL, args.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

func buildAPI(ctx context.Context, cfg *config.Config, log logger.Logger) (*server.API, error) {
	httpCfg := cfg.HTTP()
	searchCfg := cfg.Search()

	apiClient, err := network.SetupHTTPClient(network.NewAPIClientConfig(httpCfg, searchCfg.Timeout), log)
	if err != nil {
		return nil, fmt.Errorf("search http client: %w", err)
	}
	streamClient, err := network.SetupHTTPClient(network.NewStreamingClientConfig(httpCfg), log)
	if err != nil {
		return nil, fmt.Errorf("streaming http client: %w", err)
	}
	feedClient, err := network.SetupHTTPClient(network.NewFetcherClientConfig(httpCfg, cfg.News().Timeout), log)
	if err != nil {
		return nil, fmt.Errorf("feed http client: %w", err)
	}

	// Audio sources, tried in registration order
	ytOpts := youtube.OptionsFromConfig(cfg)
	ytdlp := youtube.NewYtdlp(ytOpts, log)
	pipedClient := piped.New(searchCfg.PipedBase, searchCfg.Region, apiClient, log)

	registry := platform.NewRegistry()
	registry.Register(youtube.NewExtractor(streamClient, ytOpts, log))
	registry.Register(ytdlp)
	registry.RegisterResolver(ytdlp)
	if cfg.Stream().PipedDirect {
		registry.RegisterResolver(pipedClient)
	}

	proxy := stream.New(registry.Source("kkdai"), registry.Source("ytdlp"), registry.Resolvers(), log).
		WithTranscoder(encoder.NewDefaultTranscoder(log))

	backend, err := searchBackend(ctx, cfg, pipedClient, apiClient, log)
	if err != nil {
		return nil, err
	}
	searcher := search.NewService(backend, search.Options{
		MaxResults: searchCfg.MaxResults,
		RelatedMax: searchCfg.RelatedMax,
	}, log).WithSeedFallback(search.NewYtdlpSeeds(ytdlp))

	newsCfg := cfg.News()
	aggregator := news.NewAggregator(news.NewHTTPFetcher(feedClient), news.Options{
		Feeds:    newsCfg.Feeds,
		TTL:      newsCfg.TTL,
		MaxItems: newsCfg.MaxItems,
		PerFeed:  newsCfg.PerFeed,
		Timeout:  newsCfg.Timeout,
	}, log)

	log.WithFields(logger.Fields{
		"backend": backend.Name(),
		"sources": strings.Join(registry.ListPlatforms(), ", "),
	}).Info("Services ready")

	return server.NewAPI(searcher, proxy, aggregator, registry.ListPlatforms(), log), nil
}

// searchBackend uses the Data API when it is selected and a key is set,
// Piped otherwise.
func searchBackend(ctx context.Context, cfg *config.Config, pipedClient *piped.Client, httpClient *http.Client, log logger.Logger) (search.Backend, error) {
	searchCfg := cfg.Search()
	apiKey := cfg.YouTube().APIKey

	if strings.EqualFold(searchCfg.Backend, "youtube") {
		if apiKey == "" {
			log.Warn("search.backend is youtube but youtube.api_key is empty, using piped")
		} else {
			backend, err := search.NewYouTubeBackend(ctx, apiKey, searchCfg.Region, "", httpClient, log)
			if err != nil {
				return nil, fmt.Errorf("youtube data api: %w", err)
			}
			return backend, nil
		}
	}
	return search.NewPipedBackend(pipedClient), nil
}
