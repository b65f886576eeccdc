package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/majlischat/majlis-server/internal/auth"
	"github.com/majlischat/majlis-server/internal/blob"
	"github.com/majlischat/majlis-server/internal/config"
	"github.com/majlischat/majlis-server/internal/core"
	"github.com/majlischat/majlis-server/internal/perm"
	"github.com/majlischat/majlis-server/internal/store"
	"github.com/majlischat/majlis-server/internal/store/sqlite"
	transporthttp "github.com/majlischat/majlis-server/internal/transport/http"
)

// App wires together storage, the room hub, and the transport layer.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with the provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      24 * time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	matrix, err := loadMatrix(startCtx, st, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	bans, err := loadBans(startCtx, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	logger.Info().Int("bans", len(bans)).Msg("ban registry loaded")

	blobs, err := blob.NewStore(cfg.UploadDir, "/uploads")
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init upload store: %w", err)
	}

	hub := core.NewHub(st, logger, core.Options{
		Room:           cfg.RoomName,
		SpeakTime:      cfg.SpeakTime,
		ManualApproval: cfg.ManualApproval,
		Matrix:         matrix,
		Bans:           bans,
	})

	server := transporthttp.NewServer(hub, authService, st, blobs, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the hub and the HTTP server and blocks until context
// cancellation or a fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.hub.Run(ctx)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}

// loadMatrix reads the persisted capability matrix; a fresh database
// gets the default matrix written back so later edits have a row to
// replace.
func loadMatrix(ctx context.Context, st store.Store, logger *zerolog.Logger) (perm.Matrix, error) {
	matrix, err := st.LoadPermissions(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load permissions: %w", err)
		}
		matrix = perm.Default()
		if saveErr := st.SavePermissions(ctx, matrix); saveErr != nil {
			return nil, fmt.Errorf("seed default permissions: %w", saveErr)
		}
		logger.Info().Msg("seeded default permission matrix")
	}
	return matrix, nil
}

func loadBans(ctx context.Context, st store.Store) ([]store.BanEntry, error) {
	listed, err := st.ListBans(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bans: %w", err)
	}
	bans := make([]store.BanEntry, 0, len(listed))
	for _, b := range listed {
		bans = append(bans, *b)
	}
	return bans, nil
}
