// Command recapctl is the operator CLI: re-run processing for a
// transcript and sweep old anonymous transcripts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.temporal.io/sdk/client"
	"goa.design/clue/log"

	"github.com/recapd/recapd/internal/config"
	"github.com/recapd/recapd/internal/pipeline"
	"github.com/recapd/recapd/internal/store"
)

const usage = `usage: recapctl <command> [flags]

commands:
  process-transcript <id> [--sync] [--force]   dispatch (or re-run) processing
  sweep [--older-than 720h]                    delete old anonymous transcripts
`

func main() {
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "process-transcript":
		err = processTranscript(ctx, os.Args[2:])
	case "sweep":
		err = sweep(ctx, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Error(ctx, err)
		os.Exit(1)
	}
}

func processTranscript(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("process-transcript", flag.ExitOnError)
	sync := fs.Bool("sync", false, "wait for the workflow to finish")
	force := fs.Bool("force", false, "terminate a running workflow and start over")
	env := fs.String("env", "", "path to optional .env file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("process-transcript: exactly one transcript id is required")
	}
	transcriptID := fs.Arg(0)

	cfg, err := config.Load(*env)
	if err != nil {
		return err
	}
	st, err := store.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer st.Close()
	if _, err := st.Transcript(ctx, transcriptID); err != nil {
		return fmt.Errorf("transcript %s: %w", transcriptID, err)
	}

	tc, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return fmt.Errorf("temporal: %w", err)
	}
	defer tc.Close()

	runner := pipeline.NewRunner(tc, cfg.Temporal.TaskQueue)
	run, err := runner.Start(ctx, transcriptID, *force)
	if err != nil {
		if errors.Is(err, pipeline.ErrAlreadyRunning) {
			return fmt.Errorf("transcript %s is already processing; use --force to replace the run", transcriptID)
		}
		return err
	}
	log.Print(ctx, log.KV{K: "msg", V: "workflow dispatched"},
		log.KV{K: "workflow_id", V: run.GetID()},
		log.KV{K: "run_id", V: run.GetRunID()})

	if !*sync {
		return nil
	}
	if err := runner.Wait(ctx, transcriptID, run.GetRunID()); err != nil {
		return fmt.Errorf("workflow failed: %w", err)
	}
	log.Print(ctx, log.KV{K: "msg", V: "workflow completed"})
	return nil
}

func sweep(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	olderThan := fs.Duration("older-than", 30*24*time.Hour, "retention window for anonymous transcripts")
	env := fs.String("env", "", "path to optional .env file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*env)
	if err != nil {
		return err
	}
	st, err := store.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer st.Close()

	deleted, err := st.SweepAnonymous(ctx, *olderThan)
	if err != nil {
		return err
	}
	log.Print(ctx, log.KV{K: "msg", V: "sweep finished"}, log.KV{K: "deleted", V: deleted})
	return nil
}
