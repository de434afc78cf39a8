// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reelforge/reelforge/internal/api"
	"github.com/reelforge/reelforge/internal/app"
	"github.com/reelforge/reelforge/internal/config"
)

func main() {
	log.Println("starting reelforge server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	log.Printf("configuration loaded, port %s", cfg.Port)

	if err := cfg.EnsureDirs(); err != nil {
		log.Fatalf("failed to create directories: %v", err)
	}

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := app.InitServices(cfg); err != nil {
		log.Fatalf("failed to initialize services: %v", err)
	}

	router, err := api.SetupRouter()
	if err != nil {
		log.Fatalf("failed to set up routes: %v", err)
	}

	log.Printf("listening on http://localhost:%s", cfg.Port)
	runWithGracefulShutdown(router, cfg.Port)
}

// runWithGracefulShutdown serves until SIGINT/SIGTERM, then drains for up
// to ten seconds.
func runWithGracefulShutdown(handler http.Handler, port string) {
	server := &http.Server{
		Addr:    ":" + port,
		Handler: handler,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("server stopped")
}
