package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	tfotel "github.com/Strob0t/TenantForge/internal/adapter/otel"
	"github.com/Strob0t/TenantForge/internal/port/mailer"
	"github.com/Strob0t/TenantForge/internal/port/messagequeue"
)

// MailDispatcher publishes activation mail onto the queue.
type MailDispatcher struct {
	queue messagequeue.Queue
}

// NewMailDispatcher creates a MailDispatcher.
func NewMailDispatcher(queue messagequeue.Queue) *MailDispatcher {
	return &MailDispatcher{queue: queue}
}

// EnqueueActivation implements ActivationMailer.
func (d *MailDispatcher) EnqueueActivation(ctx context.Context, p messagequeue.ActivationMailPayload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal activation mail: %w", err)
	}
	if err := messagequeue.Validate(messagequeue.SubjectMailActivation, data); err != nil {
		return err
	}
	return d.queue.Publish(ctx, messagequeue.SubjectMailActivation, data)
}

// MailWorkerConfig tunes delivery retries inside one queue delivery.
type MailWorkerConfig struct {
	PublicURL       string
	ActivationPath  string
	Attempts        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	SendTimeout     time.Duration
}

// MailWorker consumes activation mail and sends it through a mailer.Sender.
type MailWorker struct {
	queue   messagequeue.Queue
	sender  mailer.Sender
	cfg     MailWorkerConfig
	metrics *tfotel.Metrics
}

// NewMailWorker creates a MailWorker.
func NewMailWorker(queue messagequeue.Queue, sender mailer.Sender, cfg MailWorkerConfig, metrics *tfotel.Metrics) *MailWorker {
	if cfg.Attempts == 0 {
		cfg.Attempts = 1
	}
	if cfg.ActivationPath == "" {
		cfg.ActivationPath = "/activate"
	}
	return &MailWorker{queue: queue, sender: sender, cfg: cfg, metrics: metrics}
}

// Start subscribes the worker. The returned function stops it.
func (w *MailWorker) Start(ctx context.Context) (func(), error) {
	stop, err := w.queue.Subscribe(ctx, messagequeue.SubjectMailActivation, w.Handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", messagequeue.SubjectMailActivation, err)
	}
	slog.Info("mail worker started", "subject", messagequeue.SubjectMailActivation)
	return stop, nil
}

// Handle delivers one queued activation mail, retrying with exponential
// backoff. A returned error hands the message back to the queue.
func (w *MailWorker) Handle(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.ActivationMailPayload
	if err := json.Unmarshal(data, &p); err != nil {
		// Redelivery cannot fix a broken payload.
		slog.Error("drop malformed activation mail", "error", err)
		w.metrics.MailSend(ctx, "dropped")
		return nil
	}

	msg, err := w.render(p)
	if err != nil {
		slog.Error("render activation mail", "tenant_id", p.TenantID, "error", err)
		w.metrics.MailSend(ctx, "dropped")
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	if w.cfg.InitialInterval > 0 {
		eb.InitialInterval = w.cfg.InitialInterval
	}
	if w.cfg.MaxInterval > 0 {
		eb.MaxInterval = w.cfg.MaxInterval
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		sendCtx := ctx
		if w.cfg.SendTimeout > 0 {
			var cancel context.CancelFunc
			sendCtx, cancel = context.WithTimeout(ctx, w.cfg.SendTimeout)
			defer cancel()
		}
		err := w.sender.Send(sendCtx, msg)
		if errors.Is(err, mailer.ErrNotConfigured) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(w.cfg.Attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("activation mail send failed, retrying", "tenant_id", p.TenantID, "retry_in", next, "error", err)
		}),
	)
	if errors.Is(err, mailer.ErrNotConfigured) {
		slog.Warn("mail relay not configured, activation mail skipped", "tenant_id", p.TenantID)
		w.metrics.MailSend(ctx, "skipped")
		return nil
	}
	if err != nil {
		w.metrics.MailSend(ctx, "failed")
		return fmt.Errorf("send activation mail: %w", err)
	}

	w.metrics.MailSend(ctx, "sent")
	slog.Info("activation mail sent", "tenant_id", p.TenantID, "reason", p.Reason)
	return nil
}

var activationHTML = template.Must(template.New("activation").Parse(
	`<p>Your workspace <strong>{{.TenantName}}</strong> is ready.</p>` +
		`<p><a href="{{.Link}}">Activate your account</a> before {{.Expires}}.</p>`))

func (w *MailWorker) render(p messagequeue.ActivationMailPayload) (mailer.Message, error) {
	link := strings.TrimSuffix(w.cfg.PublicURL, "/") + w.cfg.ActivationPath + "?token=" + url.QueryEscape(p.Token)
	expires := p.ExpiresAt.UTC().Format(time.RFC1123)

	var html bytes.Buffer
	err := activationHTML.Execute(&html, struct {
		TenantName, Link, Expires string
	}{p.TenantName, link, expires})
	if err != nil {
		return mailer.Message{}, err
	}

	subject := "Activate your TenantForge workspace"
	if p.Reason == messagequeue.ReasonResend {
		subject = "Your TenantForge activation link"
	}
	return mailer.Message{
		To:      p.Email,
		Subject: subject,
		Text: fmt.Sprintf("Your workspace %s is ready.\n\nActivate your account: %s\n\nThis link expires %s.\n",
			p.TenantName, link, expires),
		HTML: html.String(),
	}, nil
}
