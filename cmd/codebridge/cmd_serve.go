package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"codebridge/internal/agent"
	"codebridge/internal/api"
	"codebridge/internal/config"
	"codebridge/internal/journal"
	"codebridge/internal/project"
	"codebridge/internal/proxy"
	"codebridge/internal/stream"
	"codebridge/internal/transcribe"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	opts := config.Load()

	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store := config.NewStore(filepath.Join(opts.DataDir, "settings.json"), opts.ProjectsRoot)

	jstore, err := journal.Open(opts.JournalPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer jstore.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := jstore.Init(ctx); err != nil {
		return fmt.Errorf("init journal: %w", err)
	}
	writer := journal.NewWriter(jstore, 256)
	defer writer.Close()

	sup := agent.New(opts.AgentBaseURL, opts.AgentPort, opts.AgentBin)

	srv := api.New(opts, api.Deps{
		Store:    store,
		Projects: project.NewManager(store.ProjectsRoot),
		Agent:    sup,
		Relay:    stream.NewRelay(opts.AgentBaseURL, writer),
		Proxy:    proxy.New(opts.AgentBaseURL, opts.ProxyTimeout, store.Directory),
		Voice:    transcribe.New(opts.DeepgramAPIKey, opts.DeepgramModel, opts.VoiceLanguage),
		Journal:  jstore,
	})

	// Bring the agent up before accepting clients; a failure is logged
	// and left to /api/server/restart, the UI stays usable either way.
	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	if !sup.Reachable(startCtx) {
		if err := sup.StartAndWait(startCtx, store.Directory()); err != nil {
			log.Printf("[serve] agent not started: %v", err)
		}
	}
	cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := store.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Printf("[serve] shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[serve] http shutdown: %v", err)
		}
		if err := sup.Stop(); err != nil {
			log.Printf("[serve] agent stop: %v", err)
		}
		return nil
	})
	return g.Wait()
}
