package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"github.com/salonbook/salonapi/internal/config"
	"github.com/salonbook/salonapi/internal/services/iam"
)

type mailTemplate struct {
	subject string
	body    *template.Template
}

var mailTemplates = map[string]mailTemplate{
	iam.TemplateVerifyEmail: {
		subject: "Confirm your email",
		body: template.Must(template.New(iam.TemplateVerifyEmail).Parse(
			`<p>Hello{{with .name}} {{.}}{{end}},</p>` +
				`<p>Your verification code is <strong>{{.code}}</strong>.</p>` +
				`<p>It expires at {{.expiresAt}}.</p>`)),
	},
	iam.TemplateSetupPassword: {
		subject: "Set up your salon account",
		body: template.Must(template.New(iam.TemplateSetupPassword).Parse(
			`<p>You have been given the {{.role}} role.</p>` +
				`<p><a href="{{.link}}">Choose a password</a> to activate your account.</p>`)),
	},
	iam.TemplateResetPassword: {
		subject: "Reset your password",
		body: template.Must(template.New(iam.TemplateResetPassword).Parse(
			`<p>Hello{{with .name}} {{.}}{{end}},</p>` +
				`<p><a href="{{.link}}">Reset your password</a>. The link expires at {{.expiresAt}}.</p>` +
				`<p>If you did not ask for this, ignore this email.</p>`)),
	},
	iam.TemplateChangePasswordOTP: {
		subject: "Your password change code",
		body: template.Must(template.New(iam.TemplateChangePasswordOTP).Parse(
			`<p>Hello{{with .name}} {{.}}{{end}},</p>` +
				`<p>Use <strong>{{.code}}</strong> to confirm your password change. It expires at {{.expiresAt}}.</p>`)),
	},
}

// render returns the subject and HTML body for a named template.
func render(name string, data map[string]any) (string, string, error) {
	tmpl, ok := mailTemplates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown mail template %q", name)
	}
	var buf bytes.Buffer
	if err := tmpl.body.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", name, err)
	}
	return tmpl.subject, buf.String(), nil
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer sends templated HTML email through an SMTP relay.
type SMTPMailer struct {
	from   string
	dialer dialer
}

// NewSMTPMailer builds a mailer from the SMTP section of the configuration.
func NewSMTPMailer(cfg config.SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	return &SMTPMailer{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}, nil
}

// Send implements iam.Mailer.
func (m *SMTPMailer) Send(ctx context.Context, to, name string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body, err := render(name, data)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send %s to %s: %w", name, to, err)
	}
	return nil
}

// LogMailer renders mail and writes it to the log instead of sending it.
// It stands in for SMTP in development.
type LogMailer struct {
	log logrus.FieldLogger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(log logrus.FieldLogger) *LogMailer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogMailer{log: log.WithField("component", "notify.mailer")}
}

// Send implements iam.Mailer.
func (m *LogMailer) Send(_ context.Context, to, name string, data map[string]any) error {
	subject, body, err := render(name, data)
	if err != nil {
		return err
	}
	m.log.WithFields(logrus.Fields{
		"to":       to,
		"template": name,
		"subject":  subject,
	}).Info(body)
	return nil
}

// NewMailer selects SMTP delivery when a host is configured and falls back to
// the log mailer otherwise.
func NewMailer(cfg config.SMTPConfig, log logrus.FieldLogger) (iam.Mailer, error) {
	if cfg.Host == "" {
		return NewLogMailer(log), nil
	}
	return NewSMTPMailer(cfg)
}
