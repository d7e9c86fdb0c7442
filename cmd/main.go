package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calendarservice/pkg/calendar"
	"calendarservice/pkg/config"
	"calendarservice/pkg/handlers"
	"calendarservice/pkg/oauth"
	"calendarservice/pkg/store"
	"calendarservice/pkg/tokens"

	"github.com/common-nighthawk/go-figure"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("server stopped")
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	setupLogger(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	displayAppName(cfg.AppName)

	db, err := store.Open(cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	scopes := oauth.Scopes(cfg.ResolveIdentity)
	session := oauth.New(oauth.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       scopes,
	})
	h := handlers.New(
		session,
		tokens.NewManager(store.New(db), session),
		calendar.NewGateway(session),
		newSessionStore(cfg),
		handlers.Options{
			DefaultIdentity: cfg.DefaultIdentity,
			ResolveIdentity: cfg.ResolveIdentity,
			CalendarID:      cfg.CalendarID,
			Scopes:          scopes,
		},
	)
	app := handlers.NewApp(cfg.AppName, h)

	errs := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("server listening")
		errs <- app.Listen(cfg.Addr())
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errs:
		if err != nil {
			return fmt.Errorf("app.Listen: %w", err)
		}
		return errors.New("listener closed unexpectedly")
	case <-stop:
	}

	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("app.Shutdown: %w", err)
	}
	return nil
}

func newSessionStore(cfg config.Config) *session.Store {
	return session.New(session.Config{
		Expiration:     24 * time.Hour,
		KeyLookup:      "cookie:calendar_session",
		CookieHTTPOnly: true,
		CookieSecure:   !cfg.IsDev(),
		CookieSameSite: "Lax",
	})
}

func setupLogger(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func displayAppName(appName string) {
	myFigure := figure.NewFigure(appName, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
