// Package main runs a local Gmail API emulator serving HTML emails from a
// directory, so `fintool sync run` can be exercised without a Google account.
//
// Point fintool at it with GMAIL_API_ENDPOINT=http://localhost:8081.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shunichi-ikebuchi/fintool/internal/gmailemu"
)

const (
	defaultPort       = "8081"
	defaultMailboxDir = "./testdata/mailbox"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	mailboxDir := os.Getenv("MAILBOX_DIR")
	if mailboxDir == "" {
		mailboxDir = defaultMailboxDir
	}

	mailbox, err := gmailemu.LoadDir(mailboxDir)
	if err != nil {
		slog.Error("failed to load mailbox", "error", err, "dir", mailboxDir)
		os.Exit(1)
	}
	slog.Info("mailbox loaded", "dir", mailboxDir, "labels", len(mailbox.Labels()))

	addr := fmt.Sprintf(":%s", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      gmailemu.NewRouter(mailbox, os.Getenv("GMAIL_ACCESS_TOKEN"), logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		slog.Info("shutting down server")
		if err := server.Close(); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting Gmail API emulator", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
