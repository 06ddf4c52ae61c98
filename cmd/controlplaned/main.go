package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harborctl/controlplane/pkg/audit"
	"github.com/harborctl/controlplane/pkg/authz"
	"github.com/harborctl/controlplane/pkg/config"
	"github.com/harborctl/controlplane/pkg/conn"
	"github.com/harborctl/controlplane/pkg/hostregistry"
	"github.com/harborctl/controlplane/pkg/httpapi"
	"github.com/harborctl/controlplane/pkg/log"
	"github.com/harborctl/controlplane/pkg/metrics"
	"github.com/harborctl/controlplane/pkg/router"
	"github.com/harborctl/controlplane/pkg/session"
	"github.com/harborctl/controlplane/pkg/storage"
	"github.com/harborctl/controlplane/pkg/streams"
	"github.com/harborctl/controlplane/pkg/types"
	"github.com/harborctl/controlplane/pkg/vault"
	"github.com/harborctl/controlplane/pkg/wizard"
	"github.com/harborctl/controlplane/pkg/wsbridge"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "controlplaned",
	Short: "Multi-tenant control plane for Docker and Swarm hosts",
	Long: `controlplaned runs the control plane API: authentication, per-host
authorization, a resilient Docker Engine API router, live log/stats/exec
streaming over WebSocket, and a guided host-onboarding wizard.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"controlplaned version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control plane API server",
	RunE:  runServe,
}

func initLogging(cfg *config.Config) {
	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	initLogging(cfg)
	logger := log.WithComponent("controlplaned")

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	v, err := vault.NewFromHex(cfg.VaultMasterKeyHex)
	if err != nil {
		return fmt.Errorf("init vault: %w", err)
	}

	sessions := session.NewManager(store, cfg.JWTSigningKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, cfg.BCryptCost)
	az := authz.New(store)
	hosts := hostregistry.New(store, v)
	resolver := hostregistry.NewCredentialResolver(hosts)

	pool := conn.NewPool(conn.Config{
		DockerAPITimeout:     cfg.DockerAPITimeout,
		BreakerFailThreshold: cfg.BreakerFailThreshold,
		BreakerOpenDuration:  cfg.BreakerOpenDuration,
		BreakerHalfOpenMax:   cfg.BreakerHalfOpenMax,
		ProbeInterval:        cfg.ProbeInterval,
		PingTimeout:          cfg.ProbePingTimeout,
	}, store, resolver)
	pool.SubscribeChanges(hosts.Changes())
	pool.Start()
	defer pool.Stop()

	rec := audit.NewRecorder(store, cfg.AuditQueueDepth)
	defer rec.Close()

	rt := router.New(pool, az, rec)

	registry := streams.NewRegistry(streams.RegistryConfig{
		RingBufferSize:     cfg.StreamRingBufferSize,
		SubscriberBufSize:  cfg.StreamSubscriberBuf,
		SlowConsumerDropAt: cfg.SlowConsumerDropAt,
	})

	bridge := wsbridge.New(wsbridge.Config{
		HeartbeatInterval: cfg.WSHeartbeatInterval,
		HeartbeatTimeout:  cfg.WSHeartbeatTimeout,
	}, sessions, store, az, pool, registry)

	wiz := wizard.New(store, hosts)

	if err := bootstrapAdmin(sessions, store); err != nil {
		return fmt.Errorf("bootstrap admin account: %w", err)
	}

	srv := httpapi.NewServer(sessions, az, hosts, pool, rt, bridge, wiz, store)

	metricsAddr := "127.0.0.1:9090"
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", metricsAddr).Msg("metrics endpoint listening")

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: srv.Routes()}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("control plane API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("api server error")
	}

	return httpServer.Close()
}

// bootstrapAdmin seeds a single admin account when the user store is
// empty, since there is no self-service registration. The generated
// password is printed once to stderr; CONTROLPLANE_BOOTSTRAP_PASSWORD lets
// an operator pin it instead (useful for scripted first-run deployments).
func bootstrapAdmin(sessions *session.Manager, store storage.Store) error {
	users, err := store.ListUsers()
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}

	password := os.Getenv("CONTROLPLANE_BOOTSTRAP_PASSWORD")
	generated := password == ""
	if generated {
		var err error
		password, err = randomPassword()
		if err != nil {
			return err
		}
	}

	if _, err := sessions.CreateUser("admin", password, types.RoleAdmin); err != nil {
		return err
	}

	if generated {
		fmt.Fprintln(os.Stderr, "no users found, created initial admin account")
		fmt.Fprintln(os.Stderr, "  username: admin")
		fmt.Fprintf(os.Stderr, "  password: %s\n", password)
		fmt.Fprintln(os.Stderr, "store this password now, it is never shown again")
	}
	return nil
}

func randomPassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
