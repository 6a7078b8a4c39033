package handlers

import (
	"starterkit/internal/config"
	"starterkit/internal/mail"
	"starterkit/internal/metrics"
	"starterkit/internal/ratelimit"
	"starterkit/internal/repos"
	"starterkit/internal/services"
	"starterkit/internal/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
)

type Deps struct {
	Config config.Config
	DB     *sqlx.DB

	Auth     *services.AuthService
	Invites  *services.InvitationService
	Flags    *services.FlagService
	Contacts *services.ContactService
	Uploads  *services.UploadService
	Consent  *services.ConsentService
	Admin    *services.AdminService

	Limiter *ratelimit.Limiter
	// SharedStorage backs CSRF tokens when limits live in Redis; nil keeps them in memory.
	SharedStorage fiber.Storage
	Metrics       *metrics.Metrics
	// Media is set when uploads are served from local disk.
	Media *storage.LocalStore
}

// Options carries the infrastructure main builds from config.
type Options struct {
	Store         storage.Store
	Mailer        mail.Mailer
	LimitStorage  fiber.Storage
	SharedStorage fiber.Storage
	Trust         *ratelimit.ProxyTrust
	Metrics       *metrics.Metrics
}

func NewDeps(db *sqlx.DB, cfg config.Config, opts Options) (*Deps, error) {
	tmpl, err := mail.NewRenderer()
	if err != nil {
		return nil, err
	}
	mailer := opts.Mailer
	if mailer == nil {
		mailer = mail.LogMailer{}
	}

	trm := repos.NewTxManager(db)
	userRepo := repos.NewUserRepo(db, trm)
	flagRepo := repos.NewFlagRepo(db)
	inviteRepo := repos.NewInvitationRepo(db)
	contactRepo := repos.NewContactRepo(db)
	uploadRepo := repos.NewUploadRepo(db)
	consentRepo := repos.NewConsentRepo(db)

	flagSvc := services.NewFlagService(flagRepo)
	authSvc := services.NewAuthService(userRepo, flagSvc, cfg.Session.TTL)
	inviteSvc := &services.InvitationService{
		Invites:   inviteRepo,
		Users:     userRepo,
		Auth:      authSvc,
		Tx:        trm,
		Mailer:    mailer,
		Templates: tmpl,
		AppName:   cfg.App.Name,
		BaseURL:   cfg.App.BaseURL,
		TTL:       cfg.Invite.TTL,
	}
	uploadSvc := &services.UploadService{Uploads: uploadRepo, Store: opts.Store, MaxBytes: cfg.Storage.MaxBytes}

	d := &Deps{
		Config:  cfg,
		DB:      db,
		Auth:    authSvc,
		Invites: inviteSvc,
		Flags:   flagSvc,
		Contacts: &services.ContactService{
			Contacts:  contactRepo,
			Mailer:    mailer,
			Templates: tmpl,
			AppName:   cfg.App.Name,
			NotifyTo:  cfg.Mail.ContactNotify,
		},
		Uploads: uploadSvc,
		Consent: &services.ConsentService{Records: consentRepo},
		Admin: &services.AdminService{
			Users:       userRepo,
			Contacts:    contactRepo,
			UploadRows:  uploadRepo,
			Flags:       flagRepo,
			Invitations: inviteSvc,
			Uploads:     uploadSvc,
		},
		Limiter:       ratelimit.New(opts.Trust, opts.LimitStorage),
		SharedStorage: opts.SharedStorage,
		Metrics:       opts.Metrics,
	}
	if ls, ok := opts.Store.(*storage.LocalStore); ok {
		d.Media = ls
	}
	return d, nil
}
