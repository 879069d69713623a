package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"

	"docquery/internal/adapter/gemini"
	"docquery/internal/adapter/pdfextract"
	"docquery/internal/app"
	"docquery/internal/config"
	"docquery/internal/logger"
)

func main() {
	handler := logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(slog.New(handler))

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.DB.Close()
	defer deps.NSQProducer.Stop()

	embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
	if err != nil {
		return err
	}
	defer embedder.Close()

	extractor := pdfextract.New()

	application, err := app.New(cfg, deps.DB, deps.Index, embedder, extractor, deps.NSQProducer)
	if err != nil {
		return err
	}

	// Ingestion consumer: one channel, lookupd discovery
	nsqCfg := nsq.NewConfig()
	consumer, err := nsq.NewConsumer(config.TopicDocumentIngest, "ingest-worker", nsqCfg)
	if err != nil {
		return err
	}
	consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		return application.IngestConsumer.HandleMessage(m)
	}))
	if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		slog.Error("failed to connect to NSQLookupd", "error", err)
	} else {
		slog.Info("NSQ ingest consumer connected")
	}
	defer consumer.Stop()

	return application.Run(ctx)
}
