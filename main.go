package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/krau/vqaserve/config"
	"github.com/krau/vqaserve/onnx"
	"github.com/krau/vqaserve/server"
	"github.com/krau/vqaserve/service"
	ort "github.com/yalue/onnxruntime_go"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	slog.Info("Starting vqaserve")

	ort.SetSharedLibraryPath(onnx.LibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("Failed to initialize ONNX Runtime environment", slog.String("error", err.Error()))
		return
	}
	defer ort.DestroyEnvironment()

	svc, err := service.Init(ctx)
	if err != nil {
		slog.Error("Failed to initialize model", slog.String("error", err.Error()))
		return
	}
	defer svc.Close()

	gin.SetMode(gin.ReleaseMode)
	r := server.NewRouter(server.NewHandler(svc, config.C().Token, config.C().MaxUploadMB))

	addr := config.C().Host + ":" + config.C().Port
	srv := &http.Server{Addr: addr, Handler: r}
	slog.Info("Listening on", slog.String("address", addr))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown failed", slog.String("error", err.Error()))
	}
}
