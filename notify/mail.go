package notify

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"gopkg.in/gomail.v2"
)

type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailLookup resolves the address of a user.
type EmailLookup func(ctx context.Context, userID uint) (string, error)

type Mail struct {
	Config MailConfig
	Lookup EmailLookup
	dialer *gomail.Dialer
}

func NewMail(cfg MailConfig, lookup EmailLookup) *Mail {
	return &Mail{
		Config: cfg,
		Lookup: lookup,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

var mailTemplate = template.Must(template.New("notification").Parse(
	`<p>{{.Message}}</p>{{if .OrderNumber}}<p>Order: <b>{{.OrderNumber}}</b>{{if .Status}} ({{.Status}}){{end}}</p>{{end}}`))

func (m *Mail) Notify(ctx context.Context, n Notification) error {
	to, err := m.Lookup(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("mail notify: lookup user %d: %w", n.UserID, err)
	}
	if to == "" {
		return nil
	}

	var body strings.Builder
	if err := mailTemplate.Execute(&body, n); err != nil {
		return fmt.Errorf("mail notify: render: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.Config.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", n.Title)
	msg.SetBody("text/html", body.String())

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("mail notify: send to %s: %w", to, err)
	}
	return nil
}
