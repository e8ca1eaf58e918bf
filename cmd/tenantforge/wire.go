package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/TenantForge/internal/adapter/email"
	tfnats "github.com/Strob0t/TenantForge/internal/adapter/nats"
	"github.com/Strob0t/TenantForge/internal/adapter/natskv"
	tfotel "github.com/Strob0t/TenantForge/internal/adapter/otel"
	"github.com/Strob0t/TenantForge/internal/adapter/postgres"
	"github.com/Strob0t/TenantForge/internal/adapter/razorpay"
	"github.com/Strob0t/TenantForge/internal/adapter/ristretto"
	"github.com/Strob0t/TenantForge/internal/adapter/session"
	"github.com/Strob0t/TenantForge/internal/adapter/tiered"
	"github.com/Strob0t/TenantForge/internal/config"
	"github.com/Strob0t/TenantForge/internal/port/cache"
	"github.com/Strob0t/TenantForge/internal/resilience"
	"github.com/Strob0t/TenantForge/internal/secrets"
	"github.com/Strob0t/TenantForge/internal/service"
)

// loadVault reads secrets from the environment and the .env file, falling
// back to values given in the YAML config.
func loadVault(cfg *config.Config) (*secrets.Vault, error) {
	loader := secrets.WithFallback(secrets.DotEnvLoader(config.DefaultEnvFile, secrets.All...), map[string]string{
		secrets.KeyPaymentKeySecret: cfg.Payments.KeySecret,
		secrets.KeyWebhookSecret:    cfg.Payments.WebhookSecret,
		secrets.KeySessionSecret:    cfg.Session.Secret,
		secrets.KeySMTPPassword:     cfg.Mail.Password,
	})
	v, err := secrets.NewVault(loader)
	if err != nil {
		return nil, err
	}
	if err := v.Require(secrets.KeyWebhookSecret, secrets.KeySessionSecret); err != nil {
		return nil, err
	}
	return v, nil
}

// connectStore opens the pool. The caller closes it.
func connectStore(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, *postgres.Store, error) {
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	return pool, postgres.NewStore(pool), nil
}

func connectQueue(ctx context.Context, cfg *config.Config) (*tfnats.Queue, error) {
	q, err := tfnats.Connect(ctx, tfnats.Config{
		URL:        cfg.NATS.URL,
		Stream:     cfg.NATS.Stream,
		MaxDeliver: cfg.Mail.MaxDeliver,
		NakDelay:   cfg.Mail.InitialInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("nats: %w", err)
	}
	return q, nil
}

// dedupeCache layers the in-process ristretto cache over a JetStream KV
// bucket so that webhook replays are caught across instances.
func dedupeCache(ctx context.Context, cfg *config.Config, q *tfnats.Queue) (cache.Cache, func(), error) {
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return nil, nil, fmt.Errorf("l1 cache: %w", err)
	}

	var l2 cache.Cache
	if cfg.Cache.L2Bucket != "" {
		kv, err := natskv.Open(ctx, q.JetStream(), cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
		if err != nil {
			l1.Close()
			return nil, nil, fmt.Errorf("l2 cache: %w", err)
		}
		l2 = kv
	} else {
		slog.Warn("no l2 cache bucket configured, webhook dedupe is per instance")
	}

	return tiered.New(l1, l2, cfg.Cache.L2TTL), l1.Close, nil
}

// services is the wired application layer.
type services struct {
	registrar   *service.PaymentRegistrar
	events      *service.PaymentEventVerifier
	tokens      *service.ActivationTokenService
	provisioner *service.TenantProvisioner
	activator   *service.AccountActivator
	resender    *service.ActivationResender
	auth        *service.AuthService
	sessions    *session.Manager
	dispatcher  *service.MailDispatcher
}

func buildServices(cfg *config.Config, vault *secrets.Vault, store *postgres.Store, queue *tfnats.Queue, dedupe cache.Cache, metrics *tfotel.Metrics) *services {
	gateway := razorpay.New(razorpay.Config{
		BaseURL:   cfg.Payments.BaseURL,
		KeyID:     cfg.Payments.KeyID,
		KeySecret: vault.Func(secrets.KeyPaymentKeySecret),
		Timeout:   cfg.Payments.UpstreamTimeout,
		Breaker:   razorpay.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout),
		Bulkhead:  resilience.NewBulkhead(cfg.Payments.MaxInFlight),
	})
	sessions := session.NewManager(vault.Func(secrets.KeySessionSecret), cfg.Session.Issuer, cfg.Session.TTL, cfg.Session.CookieName)
	dispatcher := service.NewMailDispatcher(queue)

	tokens := service.NewActivationTokenService(store, cfg.Activation.ResendTTL, metrics)
	provisioner := service.NewTenantProvisioner(store, store, tokens, dispatcher, cfg.Activation.SignupTTL, metrics)

	return &services{
		registrar:   service.NewPaymentRegistrar(gateway, store, &cfg.Payments, metrics),
		events:      service.NewPaymentEventVerifier(store, provisioner, dedupe, vault.Func(secrets.KeyWebhookSecret), cfg.Payments.DedupeTTL, metrics),
		tokens:      tokens,
		provisioner: provisioner,
		activator:   service.NewAccountActivator(tokens, store, store, store, cfg.Activation.BcryptCost, metrics),
		resender:    service.NewActivationResender(store, store, store, tokens, dispatcher),
		auth:        service.NewAuthService(store, sessions),
		sessions:    sessions,
		dispatcher:  dispatcher,
	}
}

func newMailWorker(cfg *config.Config, vault *secrets.Vault, queue *tfnats.Queue, metrics *tfotel.Metrics) *service.MailWorker {
	sender := email.NewSender(email.SMTPConfig{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		From:     cfg.Mail.From,
		Username: cfg.Mail.Username,
		Password: vault.Func(secrets.KeySMTPPassword),
	})
	return service.NewMailWorker(queue, sender, service.MailWorkerConfig{
		PublicURL:       cfg.Server.PublicURL,
		ActivationPath:  "/activate",
		Attempts:        uint(max(cfg.Mail.Attempts, 1)), //nolint:gosec // bounded by max
		InitialInterval: cfg.Mail.InitialInterval,
		MaxInterval:     cfg.Mail.MaxInterval,
		SendTimeout:     cfg.Mail.SendTimeout,
	}, metrics)
}
