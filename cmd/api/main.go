package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"

	"github.com/RibomBalt/webgal-llm-puppet/internal/cache"
	"github.com/RibomBalt/webgal-llm-puppet/internal/config"
	"github.com/RibomBalt/webgal-llm-puppet/internal/handler"
	"github.com/RibomBalt/webgal-llm-puppet/internal/handler/api"
	"github.com/RibomBalt/webgal-llm-puppet/internal/handler/webgal"
	"github.com/RibomBalt/webgal-llm-puppet/internal/logging"
	"github.com/RibomBalt/webgal-llm-puppet/internal/model/preset"
	"github.com/RibomBalt/webgal-llm-puppet/internal/scene"
	"github.com/RibomBalt/webgal-llm-puppet/internal/service/ai"
	"github.com/RibomBalt/webgal-llm-puppet/internal/service/archive"
	"github.com/RibomBalt/webgal-llm-puppet/internal/service/mood"
	"github.com/RibomBalt/webgal-llm-puppet/internal/service/producer"
	"github.com/RibomBalt/webgal-llm-puppet/internal/service/session"
	"github.com/RibomBalt/webgal-llm-puppet/internal/service/tts"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.New(nil, "info").Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logging.New(nil, cfg.Log.Level)
	if envErr != nil {
		log.Debug().Msg("no .env file loaded, using system environment variables")
	}

	// 预设角色：内置种子 + 可选的 YAML 覆盖文件
	presets, err := preset.LoadFiles(cfg.Preset.Files)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load preset files")
	}
	if _, ok := presets.Get(cfg.Preset.DefaultBot); !ok {
		log.Fatal().Str("bot", cfg.Preset.DefaultBot).Msg("default bot preset missing")
	}

	// 缓存：Redis 不可达时自动退化为进程内缓存
	store := cache.New(ctx, cfg.Cache, log.Sub("cache"))
	sessions := session.NewStore(store, presets, log.Sub("session"))

	// Initialize AI service
	var aiSvc *ai.Service
	if cfg.AI.Enabled() {
		aiSvc, err = ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Warn().Err(err).Msg("AI service init failed, 请检查 Ark 模型相关环境变量")
		} else {
			log.Info().Str("model", cfg.AI.Model).Msg("AI service initialized")
		}
	} else {
		log.Warn().Msg("Ark 凭证未配置，跳过 AI 功能初始化")
	}

	// 情绪分类复用同一个聊天模型，模型缺失时退化为随机情绪
	var chatModelForMood model.ChatModel
	if aiSvc != nil {
		chatModelForMood = aiSvc.GetChatModel()
	}
	analyzerPrompt := ""
	if analyzer, ok := presets.Get(preset.MoodAnalyzerName); ok {
		analyzerPrompt = analyzer.SystemPrompt
	}
	moodSvc, err := mood.NewService(ctx, chatModelForMood, analyzerPrompt, log.Sub("mood"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize mood classifier")
	}
	if moodSvc.Enabled() {
		log.Info().Msg("mood classifier enabled")
	} else {
		log.Warn().Msg("mood classifier falls back to random moods")
	}

	ttsSvc, err := tts.NewService(cfg.TTS, log.Sub("tts"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tts service")
	}

	render, err := scene.NewRenderer(cfg.Server.BaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse scene templates")
	}
	composer := scene.NewComposer(render, store, ttsSvc, log.Sub("scene"))

	// 回合归档：打不开时仅告警，历史接口返回 503
	var turns api.TurnReader
	var archiver producer.Archiver
	archiveStore, err := archive.Open(cfg.Preset.ArchivePath)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.Preset.ArchivePath).Msg("turn archive unavailable")
	} else {
		defer archiveStore.Close()
		turns = archiveStore
		archiver = archiveStore
	}

	prod := producer.New(moodSvc, composer, sessions, archiver, log.Sub("producer"))

	var answerer webgal.Answerer
	if aiSvc != nil {
		answerer = aiSvc
	}

	router := handler.NewRouter(handler.Deps{
		Config:   cfg,
		Cache:    store,
		Presets:  presets,
		Sessions: sessions,
		Composer: composer,
		Producer: prod,
		AI:       answerer,
		Turns:    turns,
		Log:      log.Sub("http"),
	})

	startServer(ctx, cfg.Server, router, log)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log *logging.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", serverCfg.Addr).Str("baseURL", serverCfg.BaseURL).Msg("webgal puppet backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
