package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/notekeep/syncd/internal/httpapi"
	"github.com/notekeep/syncd/internal/notesync"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "syncd",
		Short:         "Note synchronization server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCommand(), newTokenCommand())
	return root
}

func newServeCommand() *cobra.Command {
	var (
		addr            string
		backendDSN      string
		jwtSecret       string
		rateLimitMax    int
		rateLimitWindow time.Duration
		maxBodyBytes    int64
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := notesync.BuildNoteBackendFromDSN(backendDSN)
			if err != nil {
				return fmt.Errorf("initialize note backend: %w", err)
			}
			store := notesync.NewStoreWithOptions(notesync.StoreOptions{Backend: backend})
			defer store.Close()

			server := httpapi.NewServerWithConfig(store, httpapi.ServerConfig{
				JWTSecret:       jwtSecret,
				RateLimitMax:    rateLimitMax,
				RateLimitWindow: rateLimitWindow,
				MaxBodyBytes:    maxBodyBytes,
			})
			log.Printf("syncd listening on %s (backend %s)", addr, backendDSN)
			return http.ListenAndServe(addr, server)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", stringEnv("SYNCD_ADDR", ":8080"), "listen address")
	cmd.Flags().StringVar(&backendDSN, "backend-dsn", stringEnv("SYNCD_BACKEND_DSN", "memory://"),
		"note backend DSN: memory://, file://path, sqlite://path or postgres://...")
	cmd.Flags().StringVar(&jwtSecret, "jwt-secret", stringEnv("SYNCD_JWT_SECRET", ""), "HS256 secret for bearer tokens")
	cmd.Flags().IntVar(&rateLimitMax, "rate-limit-max", intEnv("SYNCD_RATE_LIMIT_MAX", 0),
		"max sync calls per owner per window, 0 disables")
	cmd.Flags().DurationVar(&rateLimitWindow, "rate-limit-window", durationEnv("SYNCD_RATE_LIMIT_WINDOW", time.Minute),
		"rate limit window")
	cmd.Flags().Int64Var(&maxBodyBytes, "max-body-bytes", int64Env("SYNCD_MAX_BODY_BYTES", 0),
		"request body limit in bytes, 0 for the built-in default")
	return cmd
}

func stringEnv(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}
