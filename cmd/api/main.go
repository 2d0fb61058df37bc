package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"esther-voice/internal/audit"
	"esther-voice/internal/calls"
	"esther-voice/internal/config"
	"esther-voice/internal/guard"
	"esther-voice/internal/httpapi"
	"esther-voice/internal/prompts"
	"esther-voice/internal/relay"
	"esther-voice/internal/sonic"
	"esther-voice/internal/telephony"
	"esther-voice/internal/voice"
	"esther-voice/pkg/logger"
	"esther-voice/pkg/utils"
)

const auditRetention = 7 * 24 * time.Hour

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(rootCtx, awsconfig.WithRegion(cfg.Nova.Region))
	if err != nil {
		log.Error("aws config load failed", "err", err)
		os.Exit(1)
	}

	promptSvc, err := newPromptService(cfg.Prompts, s3.NewFromConfig(awsCfg), log)
	if err != nil {
		log.Error("prompt source init failed", "err", err)
		os.Exit(1)
	}
	if len(cfg.Prompts.Preload) > 0 {
		promptSvc.Preload(rootCtx, cfg.Prompts.Preload)
	}

	deps := voice.Deps{
		Registry:      calls.NewRegistry(),
		Conversations: voice.SonicConversations(sonic.NewBedrockTransport(awsCfg, cfg.Nova.ModelID)),
		Prompts:       promptSvc,
		Log:           log,
	}

	// Redis is optional; without it call history, slots and events live in memory.
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		deps.Guard = guard.NewFrequencyGuard(guard.NewRedisStore(rdb), cfg.Calls.FrequencyLookback, cfg.Calls.FrequencyExempt, log)
		deps.Limiter = guard.NewRedisLimiter(rdb, cfg.Calls.MaxConcurrent, cfg.Calls.MaxDuration+cfg.Calls.PendingTimeout)
		deps.Audit = audit.NewService(audit.NewRedisRepo(rdb, auditRetention))
	} else {
		deps.Guard = guard.NewFrequencyGuard(guard.NewMemoryStore(), cfg.Calls.FrequencyLookback, cfg.Calls.FrequencyExempt, log)
		deps.Limiter = guard.NewLocalLimiter(cfg.Calls.MaxConcurrent)
		deps.Audit = audit.NewService(audit.NewMemoryRepo())
	}

	if cfg.VonageEnabled() {
		signer, err := telephony.NewTokenSigner(cfg.Vonage.ApplicationID, []byte(cfg.Vonage.PrivateKey), 0)
		if err != nil {
			log.Error("vonage signer init failed", "err", err)
			os.Exit(1)
		}
		deps.Provider = telephony.NewVonageClient(signer, telephony.VonageConfig{
			BaseURL:    cfg.Vonage.APIBaseURL,
			FromNumber: cfg.Vonage.OutboundNumber,
		})
	} else {
		log.Warn("vonage credentials not set, outbound calls disabled")
	}

	svc := voice.NewService(deps, voice.Options{
		WebhookBaseURL:   cfg.Vonage.WebhookBaseURL,
		OutboundNumber:   cfg.Vonage.OutboundNumber,
		InboundGreeting:  cfg.Vonage.InboundGreeting,
		InboundPrompt:    cfg.Calls.InboundPrompt,
		DefaultAssistant: cfg.Prompts.DefaultAssistant,
		Inference:        cfg.Inference(),
		VoiceID:          cfg.Nova.VoiceID,
		AudioQueueSize:   cfg.Nova.AudioQueueMax,
		RecordCalls:      cfg.Vonage.RecordCalls,
		Relay:            relay.Options{DrainTimeout: cfg.Nova.DrainTimeout},
	})

	reaper, err := calls.NewReaper(svc.Registry(), calls.ReaperConfig{
		Schedule:       cfg.Calls.ReaperSchedule,
		MaxDuration:    cfg.Calls.MaxDuration,
		PendingTimeout: cfg.Calls.PendingTimeout,
	}, svc.Finalize, log)
	if err != nil {
		log.Error("reaper init failed", "err", err)
		os.Exit(1)
	}
	if err := reaper.Start(); err != nil {
		log.Error("reaper start failed", "err", err)
		os.Exit(1)
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.GinRequests(log))

	registerRoutes(r, &httpapi.Handlers{Voice: svc, Prompts: promptSvc})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "redis", rdb != nil, "vonage", deps.Provider != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	reaper.Stop(shutdownCtx)
	svc.Shutdown(shutdownCtx)

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

func newPromptService(cfg config.PromptsConfig, client prompts.S3API, log *slog.Logger) (*prompts.Service, error) {
	var src prompts.Source
	switch {
	case cfg.S3Bucket != "":
		src = prompts.NewS3Source(client, cfg.S3Bucket)
	case cfg.File != "":
		fs, err := prompts.LoadFileSource(cfg.File)
		if err != nil {
			return nil, err
		}
		src = fs
	}
	return prompts.NewService(src, cfg.CacheTTL, log), nil
}
