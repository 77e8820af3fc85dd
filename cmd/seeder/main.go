// cmd/seeder/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/drip-engine/internal/config"
	"github.com/unclebandit/drip-engine/internal/db"
	"github.com/unclebandit/drip-engine/internal/lifecycle"
	"github.com/unclebandit/drip-engine/internal/logging"
	"github.com/unclebandit/drip-engine/internal/repository"
	"github.com/unclebandit/drip-engine/internal/service"
)

func main() {
	configPath := flag.String("config", "config.ini", "path to optional ini config")
	contacts := flag.Int("contacts", 5, "number of demo contacts to enroll")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log, *contacts); err != nil {
		log.WithError(err).Error("seeding failed")
		os.Exit(1)
	}
	fmt.Println("Database seeding completed successfully!")
}

func run(cfg *config.Config, log *logrus.Logger, contacts int) error {
	conn, dialect, err := db.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()

	accountRepo := &repository.AccountRepository{DB: conn, Dialect: dialect}
	campaignRepo := &repository.CampaignRepository{DB: conn, Dialect: dialect}
	contactRepo := &repository.ContactRepository{DB: conn, Dialect: dialect}
	machine := lifecycle.NewMachine(contactRepo, campaignRepo, accountRepo, log)

	s := seeder{
		accounts: &service.AccountService{AccountRepo: accountRepo, Log: log},
		campaigns: &service.CampaignService{
			CampaignRepo: campaignRepo,
			AccountRepo:  accountRepo,
			ContactRepo:  contactRepo,
			Messages:     &repository.MessageLogRepository{DB: conn, Dialect: dialect},
			Lifecycle:    machine,
			MaxStepsCap:  cfg.MaxStepsCap,
			Log:          log,
		},
		contacts: &service.ContactService{ContactRepo: contactRepo, AccountRepo: accountRepo, Lifecycle: machine, Log: log},
	}
	return s.seed(context.Background(), contacts)
}

type seeder struct {
	accounts  *service.AccountService
	campaigns *service.CampaignService
	contacts  *service.ContactService
}

// seed creates one active account with a three-step campaign and enrolls n
// contacts into it.
func (s seeder) seed(ctx context.Context, n int) error {
	acc, err := s.accounts.CreateAccount(ctx, service.AccountInput{
		Phone:  "+15550100",
		Name:   "Demo account",
		Tag:    "demo",
		Status: "active",
	})
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}

	day := int64(24 * 60 * 60)
	campaign, err := s.campaigns.CreateCampaign(ctx, service.CampaignInput{
		AccountID:       acc.ID,
		Name:            "Welcome sequence",
		IntervalSeconds: day,
		MaxSteps:        3,
		Steps: []service.StepInput{
			{Message: "Hi {name}, thanks for reaching out!"},
			{Message: "Hi {name}, any questions about {tag}?"},
			{Message: "Last note from us, {name}. Reply any time.", IntervalSeconds: &day},
		},
	})
	if err != nil {
		return fmt.Errorf("campaign: %w", err)
	}

	for i := 1; i <= n; i++ {
		_, err := s.contacts.CreateContact(ctx, service.ContactInput{
			AccountID:      acc.ID,
			ExternalUserID: fmt.Sprintf("demo-user-%d", i),
			Name:           fmt.Sprintf("Contact %d", i),
			Tag:            "pricing",
			CampaignID:     &campaign.ID,
		})
		if err != nil {
			return fmt.Errorf("contact %d: %w", i, err)
		}
	}
	fmt.Printf("Seeded: account %s, campaign %s, %d contacts\n", acc.ID, campaign.ID, n)
	return nil
}
