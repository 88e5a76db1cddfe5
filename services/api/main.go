package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/unichat/internal/auth"
	"github.com/unichat/internal/config"
	"github.com/unichat/internal/fileserver"
	"github.com/unichat/internal/handler"
	"github.com/unichat/internal/logger"
	"github.com/unichat/internal/notify"
	"github.com/unichat/internal/presence"
	"github.com/unichat/internal/roster"
	"github.com/unichat/internal/service"
	"github.com/unichat/internal/startup"
	"github.com/unichat/internal/ws"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "open the store (applying postgres migrations) and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	flag.Parse()

	err := run(*dev, *migrate)
	if err != nil {
		logger.Errorf("api: %v", err)
	}
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// run owns every resource it opens, so each return path stops embedded PostgreSQL and closes
// the store.
func run(dev, migrate bool) error {
	logger.Info("starting API service")
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)

	if dev {
		embeddedDB, err := startup.StartEmbeddedPostgres(cfg)
		if err != nil {
			return fmt.Errorf("embedded postgres: %w", err)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	openCtx, openCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	store, err := startup.OpenStore(openCtx, cfg)
	openCancel()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(ctx); err != nil {
			logger.Errorf("store close: %v", err)
		}
	}()
	if migrate {
		logger.Info("store ready, exiting (-migrate)")
		return nil
	}

	dir, err := roster.Load(cfg.RosterPath)
	if err != nil {
		return err
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	tracker := presence.NewTracker()
	var notifier notify.Notifier = tracker
	if cfg.PollOnly() {
		notifier = notify.Nop{}
		logger.Infof("realtime: poll every %s, websocket disabled", cfg.PollInterval)
	}

	chats := service.NewChatService(store, dir)
	var parentMu sync.Mutex
	groups := service.NewGroupService(store, dir, cfg.AdminRegNumber, &parentMu)
	delivery := service.NewDeliveryService(store, dir, notifier, chats, &parentMu)

	deps := handler.Deps{
		Config:        cfg,
		Auth:          service.NewAuthService(store, dir, tokens, cfg.AdminRegNumber, cfg.BcryptCost),
		Chats:         chats,
		Groups:        groups,
		Delivery:      delivery,
		Announcements: service.NewAnnouncementService(store, dir, cfg.AdminRegNumber),
		Roster:        dir,
		Presence:      notifier,
		Files:         fileserver.New(cfg.UploadDir, cfg.MaxUploadSize),
	}

	hubCtx, hubCancel := context.WithCancel(context.Background())
	var hubWg sync.WaitGroup
	if !cfg.PollOnly() {
		hub := ws.NewHub(tracker, delivery, ws.Options{
			MaxConns:       cfg.MaxWSConnections,
			SendBufferSize: cfg.WSSendBufferSize,
			WriteWait:      time.Duration(cfg.WSWriteTimeout) * time.Second,
			PongWait:       time.Duration(cfg.WSPongTimeout) * time.Second,
			MaxMessageSize: int64(cfg.WSMaxMessageSize),
		})
		deps.Hub = hub
		hubWg.Add(1)
		go func() {
			defer hubWg.Done()
			hub.Run(hubCtx)
		}()
	}

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler.NewRouter(deps),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s (store=%s, realtime=%s)", cfg.ServerAddr, cfg.StoreBackend, cfg.Realtime)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	delivery.Wait()
	srvWg.Wait()
	logger.Info("server goroutine exited")
	return serveErr
}
