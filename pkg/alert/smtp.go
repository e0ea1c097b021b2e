package alert

import (
	"context"

	gomail "gopkg.in/gomail.v2"

	config "github.com/upsidelab/physionet-build/pkg/config"
	"github.com/upsidelab/physionet-build/pkg/logutils"
)

type SMTPAlerter struct {
	dialer *gomail.Dialer
	from   string
}

func newSMTPAlerter() alertHandlerInterface {
	smtpConfig := config.GetConfig().SMTP
	return &SMTPAlerter{
		dialer: gomail.NewDialer(smtpConfig.Host, smtpConfig.Port, smtpConfig.User, smtpConfig.Password),
		from:   smtpConfig.From,
	}
}

func (sa *SMTPAlerter) SendMessageTo(_ context.Context, email, subject, body string) error {
	if email == "" {
		logutils.Log.Warn("receiver does not have an email address")
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", sa.from)
	m.SetHeader("To", email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := sa.dialer.DialAndSend(m); err != nil {
		logutils.Log.Errorf("Failed to send email to %s: %v", email, err)
		return err
	}

	logutils.Log.Infof("Sent email to %s", email)
	return nil
}
