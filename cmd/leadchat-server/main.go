package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"leadchat/internal/agent"
	"leadchat/internal/config"
	"leadchat/internal/db"
	"leadchat/internal/llm"
	"leadchat/internal/mqtt"
	"leadchat/internal/notify"
	"leadchat/internal/session"
	"leadchat/internal/theme"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	config.LoadEnvFiles(".env", ".env.local")

	cfg, err := config.LoadLeadChatServerConfig()
	if err != nil {
		logger.Error("load config failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store *db.Store
	if cfg.DBDSN != "" {
		store, err = db.New(ctx, cfg.DBDSN)
		if err != nil {
			logger.Error("connect db failed", "error", err)
			os.Exit(1)
		}
		defer store.Close()

		if err := store.Migrate(ctx); err != nil {
			logger.Error("migrate db failed", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("DB_DSN not set, transcripts and leads are not persisted")
	}

	catalog, err := theme.Load(cfg.ThemeCopyFile)
	if err != nil {
		logger.Error("load theme copy failed", "path", cfg.ThemeCopyFile, "error", err)
		os.Exit(1)
	}

	llmProvider, err := llm.NewProvider(llm.Config{
		Provider:         strings.ToLower(cfg.LLMProvider),
		OpenAIBaseURL:    cfg.OpenAIBaseURL,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		AnthropicBaseURL: cfg.AnthropicBaseURL,
		AnthropicAPIKey:  cfg.AnthropicAPIKey,
		Timeout:          cfg.AgentTimeout + 5*time.Second,
	})
	if err != nil {
		logger.Error("init llm provider failed", "error", err)
		os.Exit(1)
	}
	agentClient := agent.New(llmProvider, catalog, agent.Config{
		Model:        cfg.LLMModel,
		HistoryLimit: cfg.ChatHistoryLimit,
		Timeout:      cfg.AgentTimeout,
	})

	srv := &server{
		corsOrigin: cfg.CORSAllowOrigin,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
		now:    time.Now,
	}

	var sinks []notify.Sink
	if cfg.MailEnabled() {
		mailSink, err := notify.NewMailSink(notify.MailConfig{
			Host:        cfg.MailHost,
			Port:        cfg.MailPort,
			Username:    cfg.MailUsername,
			Password:    cfg.MailPassword,
			FromAddress: cfg.MailFromAddress,
			FromName:    cfg.MailFromName,
			AdminEmail:  cfg.LeadAdminEmail,
			Timeout:     cfg.NotifyTimeout,
		})
		if err != nil {
			logger.Error("init mail sink failed", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, mailSink)
		srv.mailer = mailSink
	}

	if cfg.MQTTBrokerURL != "" {
		var acker mqtt.LeadAcker
		if store != nil {
			acker = store
		}
		hub := mqtt.NewHub(mqtt.HubConfig{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
		}, acker, logger)
		if err := hub.Start(ctx); err != nil {
			logger.Error("start mqtt hub failed", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, notify.NewMQTTSink(hub))
		srv.calls = hub
	}

	if len(sinks) == 0 {
		logger.Warn("no mail or mqtt configured, leads are only logged")
		sinks = append(sinks, notify.NewLogSink(logger))
	}
	notifier := notify.NewMulti(logger, sinks...)
	srv.relay = notifier

	deps := session.Deps{
		Agent:    agentClient,
		Notifier: notifier,
		Catalog:  catalog,
		Logger:   logger,
	}
	if store != nil {
		deps.Recorder = store
		srv.leads = store
		srv.db = store
	}
	sessions := session.NewManager(session.Config{
		Idle: session.IdleConfig{
			Grace: cfg.IdleGrace,
			Tick:  time.Second,
			Ticks: cfg.IdleCountdown,
		},
		NotifyTimeout: cfg.NotifyTimeout,
		SessionTTL:    cfg.SessionTTL,
	}, deps)
	srv.sessions = sessions
	go sessions.RunJanitor(ctx, cfg.SweepInterval)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("leadchat server listening",
			"addr", cfg.HTTPAddr,
			"llm_provider", cfg.LLMProvider,
			"model", cfg.LLMModel,
			"mail", cfg.MailEnabled(),
			"mqtt", cfg.MQTTBrokerURL != "",
			"db", store != nil,
			"idle_grace", cfg.IdleGrace,
			"idle_countdown", cfg.IdleCountdown,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	sessions.Shutdown()
	cancel()
}
