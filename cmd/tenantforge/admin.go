package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	tfnats "github.com/Strob0t/TenantForge/internal/adapter/nats"
	"github.com/Strob0t/TenantForge/internal/adapter/postgres"
	"github.com/Strob0t/TenantForge/internal/config"
	"github.com/Strob0t/TenantForge/internal/domain"
	"github.com/Strob0t/TenantForge/internal/domain/activation"
	"github.com/Strob0t/TenantForge/internal/service"
)

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "list-tenants":
		return runAdminListTenants(args[1:])
	case "resend-activation":
		return runAdminResendActivation(args[1:])
	case "reconcile":
		return runAdminReconcile(args[1:])
	case "activate":
		return runAdminActivate(args[1:])
	case "migrate-status":
		return runAdminMigrateStatus(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: tenantforge admin <command> [options]

Commands:
  list-tenants        List all tenants
  resend-activation   Queue the activation mail again for a paying admin
  reconcile           Provision tenants for captured payments that were never linked
  activate            Complete activation for a token from the command line
  migrate-status      Show applied and pending migrations
  help                Show this help message

Examples:
  tenantforge admin list-tenants
  tenantforge admin resend-activation --email admin@acme.test
  tenantforge admin reconcile --limit 50
  tenantforge admin activate --token <token> --email admin@acme.test --name "Ada Admin"
  tenantforge admin migrate-status
`)
}

// adminDeps holds what the admin commands share. queue is nil unless
// requested.
type adminDeps struct {
	cfg   *config.Config
	store *postgres.Store
	queue *tfnats.Queue
	close func()
}

func loadAdminDeps(ctx context.Context, withQueue bool) (*adminDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	pool, store, err := connectStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d := &adminDeps{cfg: cfg, store: store, close: pool.Close}

	if withQueue {
		q, err := connectQueue(ctx, cfg)
		if err != nil {
			pool.Close()
			return nil, err
		}
		d.queue = q
		d.close = func() {
			_ = q.Drain()
			pool.Close()
		}
	}
	return d, nil
}

// provisioning wires the services the mail-sending commands need. Metrics are
// nil: the CLI does not export them.
func (d *adminDeps) provisioning() (*service.TenantProvisioner, *service.ActivationResender) {
	dispatcher := service.NewMailDispatcher(d.queue)
	tokens := service.NewActivationTokenService(d.store, d.cfg.Activation.ResendTTL, nil)
	provisioner := service.NewTenantProvisioner(d.store, d.store, tokens, dispatcher, d.cfg.Activation.SignupTTL, nil)
	resender := service.NewActivationResender(d.store, d.store, d.store, tokens, dispatcher)
	return provisioner, resender
}

func runAdminListTenants(args []string) error {
	fs := flag.NewFlagSet("list-tenants", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	d, err := loadAdminDeps(ctx, false)
	if err != nil {
		return err
	}
	defer d.close()

	tenants, err := d.store.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}
	if len(tenants) == 0 {
		fmt.Println("No tenants found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSLUG\tNAME\tPLAN\tCYCLE\tSTATUS\tENDS")
	for i := range tenants {
		t := &tenants[i]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Slug, t.Name, t.Plan, t.Cycle, t.Status, t.SubscriptionEnd.Format(time.DateOnly))
	}
	return w.Flush()
}

func runAdminResendActivation(args []string) error {
	fs := flag.NewFlagSet("resend-activation", flag.ContinueOnError)
	email := fs.String("email", "", "admin email from the payment (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("--email is required")
	}

	ctx := context.Background()
	d, err := loadAdminDeps(ctx, true)
	if err != nil {
		return err
	}
	defer d.close()

	_, resender := d.provisioning()
	sent, err := resender.Resend(ctx, *email)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("no pending activation for %s (no captured payment, or the tenant is already activated)", *email)
	}
	if err != nil {
		return fmt.Errorf("resend activation: %w", err)
	}
	if !sent {
		return errors.New("token refreshed but the mail could not be queued")
	}

	fmt.Fprintf(os.Stderr, "Activation mail queued for %s\n", *email)
	return nil
}

func runAdminReconcile(args []string) error {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	limit := fs.Int("limit", reconcileBatch, "maximum payments to process")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	d, err := loadAdminDeps(ctx, true)
	if err != nil {
		return err
	}
	defer d.close()

	provisioner, _ := d.provisioning()
	n, err := provisioner.Reconcile(ctx, *limit)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Linked %d payment(s)\n", n)
	return nil
}

func runAdminActivate(args []string) error {
	fs := flag.NewFlagSet("activate", flag.ContinueOnError)
	token := fs.String("token", "", "activation token (required)")
	email := fs.String("email", "", "email the token was issued for (required)")
	name := fs.String("name", "", "full name of the first admin (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *token == "":
		return errors.New("--token is required")
	case *email == "":
		return errors.New("--email is required")
	case *name == "":
		return errors.New("--name is required")
	}

	pass, err := promptPassword("Password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	if pass != confirm {
		return errors.New("passwords do not match")
	}

	ctx := context.Background()
	d, err := loadAdminDeps(ctx, false)
	if err != nil {
		return err
	}
	defer d.close()

	tokens := service.NewActivationTokenService(d.store, d.cfg.Activation.ResendTTL, nil)
	activator := service.NewAccountActivator(tokens, d.store, d.store, d.store, d.cfg.Activation.BcryptCost, nil)
	ident, err := activator.Complete(ctx, activation.CompleteRequest{
		Token:    *token,
		Email:    *email,
		FullName: *name,
		Password: pass,
	})
	if err != nil {
		return fmt.Errorf("activate (%s): %w", domain.Kind(err), err)
	}

	fmt.Fprintf(os.Stderr, "Account activated: %s (id=%s)\n", ident.Email, ident.ID)
	return nil
}

func runAdminMigrateStatus(args []string) error {
	fs := flag.NewFlagSet("migrate-status", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	states, err := postgres.MigrationStatus(ctx, pool)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VERSION\tSOURCE\tSTATE\tAPPLIED_AT")
	for _, s := range states {
		state, at := "pending", "-"
		if s.Applied {
			state, at = "applied", s.AppliedAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Version, s.Source, state, at)
	}
	return w.Flush()
}

// promptPassword reads a password from the terminal without echoing.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
