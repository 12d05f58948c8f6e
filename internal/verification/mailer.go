package verification

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"log/slog"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/quantinsight/quantinsight/internal/config"
	"github.com/quantinsight/quantinsight/internal/models"
)

// Message is an outgoing email with plain text and HTML bodies.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NewMailer returns a ConsoleMailer when email is disabled or dev mode is on,
// and an SMTPMailer otherwise.
func NewMailer(cfg config.EmailConfig, logger *slog.Logger) Mailer {
	if !cfg.Enabled || cfg.DevMode || cfg.SMTPHost == "" {
		return &ConsoleMailer{Logger: logger}
	}
	return &SMTPMailer{Config: cfg}
}

// ConsoleMailer logs messages instead of sending them.
type ConsoleMailer struct {
	Logger *slog.Logger
}

func (m *ConsoleMailer) Send(_ context.Context, msg Message) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("email not sent (dev mode)", "to", msg.To, "subject", msg.Subject, "body", msg.Text)
	return nil
}

// SMTPMailer sends through an SMTP relay, upgrading with STARTTLS when
// SMTPTLS is set and using implicit TLS otherwise.
type SMTPMailer struct {
	Config config.EmailConfig
}

const smtpDialTimeout = 15 * time.Second

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	cfg := m.Config
	addr := net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort))
	tlsConfig := &tls.Config{ServerName: cfg.SMTPHost, MinVersion: tls.VersionTLS12}

	dialer := &net.Dialer{Timeout: smtpDialTimeout}
	var (
		conn net.Conn
		err  error
	)
	if cfg.SMTPTLS {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, cfg.SMTPHost)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if cfg.SMTPTLS {
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if cfg.SMTPUsername != "" && cfg.SMTPPassword != "" {
		if err := client.Auth(smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	body, err := buildMIME(fmt.Sprintf("%s <%s>", cfg.FromName, cfg.From), msg)
	if err != nil {
		return err
	}
	if err := client.Mail(cfg.From); err != nil {
		return fmt.Errorf("smtp mail: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return client.Quit()
}

func buildMIME(from string, msg Message) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, part := range []struct{ contentType, content string }{
		{"text/plain; charset=utf-8", msg.Text},
		{"text/html; charset=utf-8", msg.HTML},
	} {
		if part.content == "" {
			continue
		}
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {part.contentType}})
		if err != nil {
			return nil, fmt.Errorf("build message: %w", err)
		}
		if _, err := w.Write([]byte(part.content)); err != nil {
			return nil, fmt.Errorf("build message: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build message: %w", err)
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "From: %s\r\n", from)
	fmt.Fprintf(&out, "To: %s\r\n", msg.To)
	fmt.Fprintf(&out, "Subject: %s\r\n", msg.Subject)
	out.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&out, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mw.Boundary())
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

const signOff = "Best regards,\nThe QuantInsight AI Team"

// VerificationMessage renders the code email for the given purpose.
func VerificationMessage(to, code string, purpose models.VerificationPurpose) Message {
	var lead string
	if purpose == models.PurposeRegistration {
		lead = "Welcome to QuantInsight AI!\n\nYour verification code is: " + code
	} else {
		lead = "Your QuantInsight AI login verification code is: " + code
	}
	text := lead + "\n\nThis code will expire in 10 minutes.\n\n" +
		"If you didn't request this code, please ignore this email.\n\n" + signOff

	return Message{
		To:      to,
		Subject: "Your QuantInsight AI Verification Code: " + code,
		Text:    text,
		HTML:    toHTML(text),
	}
}

// WelcomeMessage renders the greeting sent after registration is verified.
func WelcomeMessage(to, firstName string) Message {
	text := "Hi " + firstName + ",\n\n" +
		"Welcome to QuantInsight AI! Your account has been successfully verified.\n\n" +
		"You now have access to:\n" +
		"• Real-time market analysis\n" +
		"• AI-powered stock predictions\n" +
		"• Multi-agent financial insights\n" +
		"• Personalized portfolio recommendations\n\n" +
		"Get started by selecting your stocks and running your first analysis.\n\n" +
		"If you have any questions, feel free to reach out to our support team.\n\n" + signOff
	return Message{
		To:      to,
		Subject: "Welcome to QuantInsight AI!",
		Text:    text,
		HTML:    toHTML(text),
	}
}

func toHTML(text string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, para := range strings.Split(text, "\n\n") {
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br>"))
		b.WriteString("</p>")
	}
	b.WriteString("</body></html>")
	return b.String()
}
