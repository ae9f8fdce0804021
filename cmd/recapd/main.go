// Command recapd runs the meeting post-processing service: the recording
// intake HTTP server, the Temporal pipeline worker, and the live event
// fan-out, all in one process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/interceptor"
	"goa.design/clue/log"

	"github.com/recapd/recapd/internal/asr"
	"github.com/recapd/recapd/internal/audio"
	"github.com/recapd/recapd/internal/broadcast"
	"github.com/recapd/recapd/internal/config"
	"github.com/recapd/recapd/internal/intake"
	"github.com/recapd/recapd/internal/llm"
	"github.com/recapd/recapd/internal/notify"
	"github.com/recapd/recapd/internal/pipeline"
	"github.com/recapd/recapd/internal/storage"
	"github.com/recapd/recapd/internal/store"
	"github.com/recapd/recapd/internal/summary"
	"github.com/recapd/recapd/internal/topics"
)

func main() {
	var (
		envF = flag.String("env", "", "path to optional .env file")
		dbgF = flag.Bool("debug", false, "enable debug logs")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	if err := run(ctx, *envF); err != nil {
		log.Fatal(ctx, err)
	}
}

func run(ctx context.Context, envPath string) error {
	cfg, err := config.Load(envPath)
	if err != nil {
		return err
	}

	st, err := store.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer st.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	pulse, err := broadcast.NewClient(rdb)
	if err != nil {
		return err
	}
	broadcaster, err := broadcast.NewBroadcaster(pulse)
	if err != nil {
		return err
	}
	subscriber, err := broadcast.NewSubscriber(broadcast.SubscriberOptions{Client: pulse})
	if err != nil {
		return err
	}

	objects, err := storage.NewS3(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("object storage: %w", err)
	}

	llmClient, err := llm.New(cfg.LLM)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}

	zulip, err := notify.NewZulip(cfg.Zulip)
	if err != nil && !errors.Is(err, notify.ErrZulipNotConfigured) {
		return fmt.Errorf("zulip: %w", err)
	}
	if zulip == nil {
		log.Print(ctx, log.KV{K: "msg", V: "zulip integration disabled"})
	}

	tracing, err := opentelemetry.NewTracingInterceptor(opentelemetry.TracerOptions{})
	if err != nil {
		return fmt.Errorf("temporal tracing: %w", err)
	}
	tc, err := client.Dial(client.Options{
		HostPort:     cfg.Temporal.HostPort,
		Namespace:    cfg.Temporal.Namespace,
		Interceptors: []interceptor.ClientInterceptor{tracing},
	})
	if err != nil {
		return fmt.Errorf("temporal: %w", err)
	}
	defer tc.Close()

	acts := pipeline.NewActivities(
		st,
		objects,
		audio.NewBackend(cfg.Audio),
		asr.New(cfg.ASR),
		topics.NewSegmenter(llmClient),
		summary.NewGenerator(llmClient),
		broadcaster,
		zulip,
		notify.NewWebhookSender(cfg.Webhook.UserAgent),
		pipeline.ActivityConfig{
			RecordingBucket: cfg.Storage.RecordingBucket,
			PresignTTL:      cfg.Storage.PresignTTL,
			FrontendBaseURL: cfg.FrontendBaseURL,
		},
	)
	wrk := pipeline.NewWorker(tc, cfg.Temporal.TaskQueue, acts)
	if err := wrk.Start(); err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	defer wrk.Stop()

	srv := intake.New(intake.Options{
		Store:         st,
		Starter:       intake.StarterFromRunner(pipeline.NewRunner(tc, cfg.Temporal.TaskQueue)),
		Subscriber:    subscriber,
		WebhookSecret: cfg.Daily.WebhookSecret,
		RedisPing:     func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("signal: %s", <-c)
	}()
	go func() {
		log.Print(ctx, log.KV{K: "msg", V: "intake listening"}, log.KV{K: "addr", V: cfg.HTTP.Addr})
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	reason := <-errc
	log.Print(ctx, log.KV{K: "msg", V: "shutting down"}, log.KV{K: "reason", V: reason.Error()})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, err)
	}
	return nil
}
