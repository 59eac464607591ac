package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"todosync/internal/config"
	"todosync/internal/logging"
	"todosync/internal/server/app"
)

func main() {
	configPath := flag.String("config", "config/server.yaml", "path to server config file")
	flag.Parse()

	cfg, err := config.LoadServerConfig(*configPath)
	if err != nil {
		logging.Error("main: failed to load config", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := app.OpenPostgres(ctx, cfg)
	if err != nil {
		logging.Error("main: failed to open database", err)
		os.Exit(1)
	}
	defer st.Close()

	a := app.New(cfg)
	if err := a.Init(ctx, st); err != nil {
		logging.Error("main: failed to init app", err)
		os.Exit(1)
	}
	defer a.Shutdown()

	srv := a.HTTPServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Info("main: listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logging.Error("main: server exited with error", err)
		os.Exit(1)
	}
}
