package services

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/avast/retry-go"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

type EmailService interface {
	SendEmailChangeVerification(ctx context.Context, to, link, code string) error
}

// sender is the part of *gomail.Dialer the service uses.
type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type emailService struct {
	dialer   sender
	from     string
	attempts uint
	delay    time.Duration
	log      *logrus.Entry
}

func NewEmailService(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail string, attempts uint, log *logrus.Entry) EmailService {
	dialer := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword)
	return newEmailService(dialer, fromEmail, attempts, time.Second, log)
}

func newEmailService(d sender, from string, attempts uint, delay time.Duration, log *logrus.Entry) *emailService {
	if attempts == 0 {
		attempts = 1
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &emailService{dialer: d, from: from, attempts: attempts, delay: delay, log: log}
}

func (s *emailService) SendEmailChangeVerification(ctx context.Context, to, link, code string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Verification mail for email change")

	body := fmt.Sprintf(`
		<p>URL Link : <a href="%[1]s">%[1]s</a></p>
		<p>Verification code: <strong>%[2]s</strong></p>
		<p>If you did not request this change, you can ignore this email.</p>
	`, html.EscapeString(link), html.EscapeString(code))
	m.SetBody("text/html", body)

	err := retry.Do(
		func() error { return s.dialer.DialAndSend(m) },
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.log.WithError(err).WithField("attempt", n+1).Warn("[email][email_change] smtp send failed, retrying")
		}),
		retry.Context(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to send email change verification: %w", err)
	}
	return nil
}
