// Package email delivers one-time codes by SMTP.
package email

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"covid-dashboard/platform/internal/mfa"
)

const defaultTimeout = 15 * time.Second

// SMTPSender mails the code to the recipient's email address.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TTL is quoted in the message body.
	TTL time.Duration

	deliver func(ctx context.Context, msg *mail.Msg) error
}

// NewSMTPSender returns a sender for host:port. Auth is PLAIN when username is set;
// STARTTLS is used when the server offers it.
func NewSMTPSender(host string, port int, username, password, from string, ttl time.Duration) *SMTPSender {
	s := &SMTPSender{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
		TTL:      ttl,
	}
	s.deliver = s.dialAndSend
	return s
}

// Send implements mfa.Sender.
func (s *SMTPSender) Send(ctx context.Context, to mfa.Recipient, otp string) error {
	if to.Email == "" {
		return mfa.ErrNoDestination
	}
	if s.Host == "" {
		return fmt.Errorf("email: SMTP host not configured")
	}
	msg, err := s.message(to, otp)
	if err != nil {
		return fmt.Errorf("email: %w", err)
	}
	if err := s.deliver(ctx, msg); err != nil {
		return fmt.Errorf("email: send: %w", err)
	}
	return nil
}

func (s *SMTPSender) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	c, err := mail.NewClient(s.Host, s.clientOptions()...)
	if err != nil {
		return err
	}
	return c.DialAndSendWithContext(ctx, msg)
}

func (s *SMTPSender) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(defaultTimeout),
	}
	if s.Port > 0 {
		opts = append(opts, mail.WithPort(s.Port))
	}
	if s.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.Username),
			mail.WithPassword(s.Password),
		)
	}
	return opts
}

func (s *SMTPSender) message(to mfa.Recipient, otp string) (*mail.Msg, error) {
	minutes := int(s.TTL / time.Minute)
	if minutes <= 0 {
		minutes = int(mfa.DefaultChallengeTTL / time.Minute)
	}
	msg := mail.NewMsg()
	if err := msg.From(s.From); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(to.Email); err != nil {
		return nil, fmt.Errorf("recipient address: %w", err)
	}
	msg.Subject("Your COVID Dashboard Login OTP")
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"Hello %s,\r\n\r\nYour one-time login code is: %s\r\n\r\nIt expires in %d minutes.\r\nIf you did not try to log in, ignore this email.\r\n",
		to.Username, otp, minutes))
	return msg, nil
}
