package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"crmapp/internal/backend/backendtest"
	"crmapp/internal/util"
)

var (
	fakeAddr       string
	fakeUsers      []string
	fakeWorkspaces []string
)

var fakeBackendCmd = &cobra.Command{
	Use:   "fake-backend",
	Short: "Run an in-memory task API",
	Long: `Run an in-memory implementation of the remote task API for local
development. Data is lost on exit.

Users are given as id:username:Full Name; the first user owns every shared
workspace named with --workspace.`,
	Example: `  crmapp fake-backend --user "487593106:alice:Alice Smith" --workspace Sales`,
	RunE:    runFakeBackend,
}

func init() {
	fakeBackendCmd.Flags().StringVar(&fakeAddr, "addr", util.EnvOrDefault("CRM_FAKE_ADDR", ":8000"), "HTTP listen address")
	fakeBackendCmd.Flags().StringArrayVar(&fakeUsers, "user", nil, "Seed user as id:username:Full Name (repeatable)")
	fakeBackendCmd.Flags().StringArrayVar(&fakeWorkspaces, "workspace", nil, "Shared workspace owned by the first user (repeatable)")
}

func runFakeBackend(cmd *cobra.Command, _ []string) error {
	_, logger, err := loadConfig()
	if err != nil {
		return err
	}

	fake := backendtest.New(logger)
	var owner int64
	for _, raw := range fakeUsers {
		id, username, name, err := parseSeedUser(raw)
		if err != nil {
			return err
		}
		fake.AddUser(id, username, name)
		if owner == 0 {
			owner = id
		}
		logger.Info("seeded user", slog.Int64("telegram_id", id), slog.String("username", username))
	}
	for _, name := range fakeWorkspaces {
		if owner == 0 {
			return errors.New("--workspace needs at least one --user")
		}
		ws, err := fake.AddWorkspace(owner, name)
		if err != nil {
			return err
		}
		logger.Info("seeded workspace", slog.Int64("id", ws.ID), slog.String("name", ws.Name))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              fakeAddr,
		Handler:           fake.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting fake backend", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown fake backend", slog.String("error", err.Error()))
	}
	logger.Info("fake backend stopped")
	return nil
}

func parseSeedUser(raw string) (int64, string, string, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return 0, "", "", fmt.Errorf("user %q: want id:username:Full Name", raw)
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, "", "", fmt.Errorf("user %q: invalid id", raw)
	}
	return id, parts[1], parts[2], nil
}
