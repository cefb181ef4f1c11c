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

	"github.com/gin-gonic/gin"

	"github.com/piwi3910/SheetNest/internal/api"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	addr := fs.String("addr", "", "listen address (overrides config)")
	_ = fs.Parse(args)

	e, err := setup(common)
	if err != nil {
		return err
	}
	defer e.close()
	if *addr == "" {
		*addr = e.config.ListenAddr
	}

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:    *addr,
		Handler: api.SetupRouter(e.orch, e.logger.Named("api")),
	}

	errCh := make(chan error, 1)
	go func() {
		e.logger.Info("starting HTTP server", "addr", *addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	e.logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		e.logger.Warn("HTTP shutdown", "error", err)
	}
	if err := e.orch.Close(); err != nil {
		e.logger.Warn("solver shutdown", "error", err)
	}
	return nil
}
