package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/factory"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/handler"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/util"
)

func main() {
	// Initialize factory (which loads config and initializes all clients)
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	cfg := f.Config()

	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      setupRouter(f),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Fatal("Server failed to start", util.ErrorField(err))
		}
	}()

	util.Info("Server started successfully",
		util.String("environment", cfg.Environment),
		util.String("address", server.Addr),
	)

	waitForShutdown(f, server)
}

// setupRouter creates the HTTP router with all handlers using Chi
func setupRouter(f *factory.Factory) http.Handler {
	serviceFactory := f.ServiceFactory()
	authHandler := handler.NewAuthHandler(
		serviceFactory.CredentialService(),
		serviceFactory.ChallengeService(),
		f.TokenService(),
		util.Named("http"),
	)
	return handler.NewRouter(f.Config(), authHandler, f.Limiter(), f, util.Named("http"))
}

func waitForShutdown(f *factory.Factory, server *http.Server) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-signalChan
	util.Info("Received shutdown signal", util.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		util.Error("Failed to shutdown server gracefully", util.ErrorField(err))
	} else {
		util.Info("Server shutdown completed")
	}
	f.Close()
}
