// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/drip-engine/internal/config"
	"github.com/unclebandit/drip-engine/internal/controller"
	"github.com/unclebandit/drip-engine/internal/db"
	"github.com/unclebandit/drip-engine/internal/handler"
	"github.com/unclebandit/drip-engine/internal/lifecycle"
	"github.com/unclebandit/drip-engine/internal/logging"
	"github.com/unclebandit/drip-engine/internal/repository"
	"github.com/unclebandit/drip-engine/internal/service"
)

func main() {
	configPath := flag.String("config", "config.ini", "path to optional ini config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	controller.ErrorLog = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("server failed")
		stop()
		os.Exit(1)
	}
}

// run serves the API until ctx is done or the listener fails, then shuts
// down and closes the database.
func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	conn, dialect, err := db.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()

	accountRepo := &repository.AccountRepository{DB: conn, Dialect: dialect}
	campaignRepo := &repository.CampaignRepository{DB: conn, Dialect: dialect}
	contactRepo := &repository.ContactRepository{DB: conn, Dialect: dialect}
	messageRepo := &repository.MessageLogRepository{DB: conn, Dialect: dialect}

	machine := lifecycle.NewMachine(contactRepo, campaignRepo, accountRepo, log)

	accountService := &service.AccountService{AccountRepo: accountRepo, Log: log}
	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		AccountRepo:  accountRepo,
		ContactRepo:  contactRepo,
		Messages:     messageRepo,
		Lifecycle:    machine,
		MaxStepsCap:  cfg.MaxStepsCap,
		Log:          log,
	}
	contactService := &service.ContactService{
		ContactRepo: contactRepo,
		AccountRepo: accountRepo,
		Lifecycle:   machine,
		Log:         log,
	}
	dashboardService := &service.DashboardService{
		AccountRepo:  accountRepo,
		CampaignRepo: campaignRepo,
		ContactRepo:  contactRepo,
	}

	router := handler.NewRouter(log,
		&controller.AccountController{AccountService: accountService},
		&controller.CampaignController{CampaignService: campaignService},
		&controller.ContactController{ContactService: contactService},
		handler.NewDashboardHandler(dashboardService, contactService, campaignService),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithFields(cfg.Fields()).Info("server running")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
