package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Zachkp/folio/carousel"
	"github.com/Zachkp/folio/config"
	"github.com/Zachkp/folio/contact"
	"github.com/Zachkp/folio/content"
	"github.com/Zachkp/folio/logging"
	"github.com/Zachkp/folio/metrics"
	"github.com/Zachkp/folio/scheduler"
	"github.com/Zachkp/folio/session"
	"github.com/Zachkp/folio/store"
	"github.com/Zachkp/folio/tui"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	sweepEvery     = time.Minute
	retentionEvery = 24 * time.Hour
	shutdownGrace  = 10 * time.Second
)

func main() {
	cli, cmd, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	site, err := content.Load(cli.Content)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	switch cmd {
	case "preview":
		err = runPreview(cli, site)
	default:
		err = runServe(cli, site)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runPreview logs nothing; the terminal belongs to the program.
func runPreview(cli *config.CLI, site *content.Site) error {
	ctl, err := carousel.New(site.Projects, carousel.WithInterval(cli.AutoAdvance))
	if err != nil {
		return err
	}
	defer ctl.Close()
	ctl.Start()
	return tui.Run(ctl)
}

func runServe(cli *config.CLI, site *content.Site) error {
	log, err := logging.New(cli.LogLevel, cli.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cfg := cli.Serve
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn("failed to close store", zap.Error(err))
		}
	}()

	m := metrics.New()

	sessions, err := session.NewRegistry(session.Config{
		Projects:     site.Projects,
		Relay:        newRelay(&cfg),
		AutoAdvance:  cli.AutoAdvance,
		ContactReset: cfg.ContactReset,
		TTL:          cfg.SessionTTL,
		MaxSessions:  cfg.MaxSessions,
		Metrics:      m,
		Logger:       log.Named("session"),
	})
	if err != nil {
		return err
	}
	defer sessions.Close()

	sched, err := scheduler.New(scheduler.WithLogger(log.Named("scheduler")))
	if err != nil {
		return err
	}
	if _, err := sessions.Schedule(sched, sweepEvery); err != nil {
		return err
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := st.CleanupVisitors(ctx, cfg.VisitorRetention)
		if err != nil {
			log.Warn("visitor cleanup failed", zap.Error(err))
			return
		}
		if n > 0 {
			log.Info("privacy cleanup removed visitor records", zap.Int64("deleted", n), zap.Duration("retention", cfg.VisitorRetention))
		}
	}
	if _, err := sched.Every("visitor-retention", retentionEvery, cleanup); err != nil {
		return err
	}
	cleanup()
	sched.Start()
	defer func() {
		sessions.Close()
		if err := sched.Stop(); err != nil {
			log.Warn("failed to stop scheduler", zap.Error(err))
		}
	}()

	tracker, err := newVisitorTracker(st, m, log.Named("tracker"))
	if err != nil {
		return err
	}
	admin, err := newAdminPanel(cfg.AdminUsername, cfg.AdminPassword, cfg.VisitorRetention, st, tracker, log.Named("admin"))
	if err != nil {
		return err
	}
	tmpl, err := loadTemplates()
	if err != nil {
		return err
	}

	srv := &server{
		site:     site,
		sessions: sessions,
		store:    st,
		metrics:  m,
		tracker:  tracker,
		admin:    admin,
		log:      log,
	}
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(tmpl),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", httpServer.Addr), zap.String("relay", cfg.Relay))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newRelay(cfg *config.ServeCmd) contact.Relay {
	if cfg.Relay == "smtp" {
		return contact.NewSMTPRelay(cfg.SMTP())
	}
	return contact.NewHTTPRelay(cfg.RelayURL, nil)
}

func loadTemplates() (*template.Template, error) {
	funcs := template.FuncMap{
		"copy": copyFor,
		"add":  func(a, b int) int { return a + b },
		"join": strings.Join,
	}
	tmpl, err := template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return tmpl, nil
}

