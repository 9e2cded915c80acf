// Command devserver runs a local stand-in for the interview coaching
// backend so the client stack can be developed offline.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/config"
	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/devserver"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	cfg := config.Load()

	srv := devserver.New()
	srv.StubTranscript = cfg.StubTranscript

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddress,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logrus.WithField("address", cfg.HTTPAddress).Info("devserver listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("devserver failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logrus.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("shutdown error")
	}
}
