// Package mail sends transactional email. Backends: LogMailer for
// development and SMTPMailer for real delivery.
package mail

import (
	"context"
	"errors"
	"strings"

	applog "starterkit/internal/log"

	"go.uber.org/zap"
)

var ErrHeaderInjection = errors.New("mail: CR or LF in header value")

type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// validate rejects header values that could smuggle extra headers.
func (m Message) validate() error {
	if m.To == "" {
		return errors.New("mail: empty recipient")
	}
	if strings.ContainsAny(m.To, "\r\n") || strings.ContainsAny(m.Subject, "\r\n") {
		return ErrHeaderInjection
	}
	return nil
}

// LogMailer writes a line per message instead of delivering it.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, m Message) error {
	if err := m.validate(); err != nil {
		return err
	}
	applog.L().Info("mail.send",
		zap.String("recipient", m.To),
		zap.String("subject", m.Subject),
		zap.Int("html_bytes", len(m.HTML)),
	)
	return nil
}
