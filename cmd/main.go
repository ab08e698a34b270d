package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/emberhq/emberchat/internal/auth"
	"github.com/emberhq/emberchat/internal/config"
	"github.com/emberhq/emberchat/internal/domain"
	"github.com/emberhq/emberchat/internal/handler"
	"github.com/emberhq/emberchat/internal/hub"
	"github.com/emberhq/emberchat/internal/membership"
	"github.com/emberhq/emberchat/internal/repository"
	"github.com/emberhq/emberchat/internal/service"
	"github.com/emberhq/emberchat/pkg/database"
	"github.com/emberhq/emberchat/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	l := log.L()
	l.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting emberchat")

	db, err := database.New(&cfg.Database)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.AutoMigrate(db,
		&domain.User{},
		&domain.Channel{},
		&domain.Membership{},
		&domain.DirectMessage{},
		&domain.ChannelMessage{},
	); err != nil {
		l.Fatal().Err(err).Msg("failed to migrate database")
	}

	tokens, err := auth.NewManager(cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to initialise token manager")
	}

	store := repository.NewGormStore(db)
	authority := membership.NewAuthority(store)
	wsHub := hub.New()
	router := service.NewRouter(store, authority, wsHub)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(log.GinMiddleware(l))

	engine.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	handler.NewWSHandler(wsHub, router, store, authority, cfg.WebSocket).RegisterRoutes(engine)
	handler.NewHTTPHandler(store, authority, router, tokens).RegisterRoutes(engine)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     engine,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		l.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("forced shutdown")
	}

	l.Info().Msg("stopped")
}
