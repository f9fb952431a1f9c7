package notifier

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ForecastMailer/internal/model"
)

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends the digest as a multipart/alternative message over SMTP.
type EmailNotifier struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
	send     SendFunc
	log      zerolog.Logger
}

func NewEmailNotifier(host string, port int, username, password, from string, to []string, log zerolog.Logger) *EmailNotifier {
	if from == "" {
		from = username
	}
	return &EmailNotifier{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		send:     smtp.SendMail,
		log:      log,
	}
}

func (e *EmailNotifier) Name() string { return "email" }

// Recipients returns the configured To list.
func (e *EmailNotifier) Recipients() []string { return e.to }

// Subject returns the subject line for d.
func Subject(d *model.Digest) string {
	return "Market Forecast Digest - " + d.RunDate
}

// Deliver sends d. smtp.SendMail is not context aware, so ctx is only checked up front.
func (e *EmailNotifier) Deliver(ctx context.Context, d *model.Digest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := e.BuildMessage(d)
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(e.host, strconv.Itoa(e.port))
	auth := smtp.PlainAuth("", e.username, e.password, e.host)
	if err := e.send(addr, auth, e.from, e.to, msg); err != nil {
		return fmt.Errorf("send mail via %s: %w", addr, err)
	}
	e.log.Info().Strs("to", e.to).Str("run_id", d.RunID).Msg("digest email sent")
	return nil
}

// BuildMessage renders the full RFC 5322 message with text and HTML parts.
func (e *EmailNotifier) BuildMessage(d *model.Digest) ([]byte, error) {
	textBody, err := RenderText(d)
	if err != nil {
		return nil, err
	}
	htmlBody, err := RenderHTML(d)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range []struct{ ctype, content string }{
		{"text/plain; charset=UTF-8", textBody},
		{"text/html; charset=UTF-8", htmlBody},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.ctype},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, fmt.Errorf("create mime part: %w", err)
		}
		if _, err := w.Write([]byte(p.content)); err != nil {
			return nil, fmt.Errorf("write mime part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	var msg bytes.Buffer
	headers := []struct{ k, v string }{
		{"From", e.from},
		{"To", strings.Join(e.to, ", ")},
		{"Subject", mime.QEncoding.Encode("utf-8", Subject(d))},
		{"Date", d.GeneratedAt.Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
		{"Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", mw.Boundary())},
	}
	for _, h := range headers {
		fmt.Fprintf(&msg, "%s: %s\r\n", h.k, h.v)
	}
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}
