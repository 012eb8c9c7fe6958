// Command t12-collector receives station telemetry over HTTP and serves the
// latest record to dashboards.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sweeney/t12-station/internal/collector"
)

func main() {
	addr := flag.String("addr", ":3000", "HTTP listen address")
	debug := flag.Bool("debug", false, "Enable gin debug logging")
	view := flag.String("view", "", "Serve a static dashboard from this directory at /view and /")
	flag.Parse()

	if !*debug {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(*addr, *view); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(addr, view string) error {
	store := &collector.Store{}
	router := collector.Router(store, nil)
	if view != "" {
		fi, err := os.Stat(view)
		if err != nil {
			return fmt.Errorf("view directory: %w", err)
		}
		if !fi.IsDir() {
			return fmt.Errorf("view directory: %s is not a directory", view)
		}
		collector.MountView(router, view)
		log.Printf("serving dashboard from %s", view)
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Printf("collector listening on %s", addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case s := <-sigCh:
		log.Printf("received %v, shutting down after %d posts", s, store.Count())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
