package mail

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog/log"
)

// Sender delivers HTML email over authenticated SMTP. Gmail app passwords
// are the expected credential.
type Sender struct {
	Host     string
	Port     int
	From     string
	Password string
}

// Send delivers one HTML message to a single recipient.
func (s *Sender) Send(to, subject, htmlBody string) error {
	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	auth := smtp.PlainAuth("", s.From, s.Password, s.Host)

	msg := buildMessage(s.From, to, subject, htmlBody)
	log.Info().Str("to", to).Str("subject", subject).Msg("sending email")
	if err := smtp.SendMail(addr, auth, s.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail via %s: %w", addr, err)
	}
	return nil
}

// buildMessage assembles an RFC 5322 message with an HTML body.
func buildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}
