package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/crashlog/internal/crash"
	"github.com/hugo-lorenzo-mato/crashlog/internal/fsutil"
)

// EmailOptions configures the SMTP transport.
type EmailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	Subject  string
}

type sendMailFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// EmailSender mails the report as an HTML body with the crash log attached.
type EmailSender struct {
	opts     EmailOptions
	sendMail sendMailFunc
	now      func() time.Time
}

var _ Transport = (*EmailSender)(nil)

// NewEmailSender validates opts and creates the transport.
func NewEmailSender(opts EmailOptions) (*EmailSender, error) {
	if opts.Host == "" {
		return nil, errors.New("email: host is required")
	}
	if opts.From == "" {
		return nil, errors.New("email: sender is required")
	}
	if len(opts.To) == 0 {
		return nil, errors.New("email: at least one recipient is required")
	}
	if opts.Port == 0 {
		opts.Port = 587
	}
	if opts.Subject == "" {
		opts.Subject = "Crash report"
	}
	return &EmailSender{opts: opts, sendMail: smtp.SendMail, now: time.Now}, nil
}

// Name implements Transport.
func (s *EmailSender) Name() string {
	return "email"
}

// Send implements Transport. smtp.SendMail has no context, so cancellation
// only abandons the wait.
func (s *EmailSender) Send(ctx context.Context, env Envelope) error {
	msg, err := s.Message(env)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if s.opts.Username != "" {
		auth = smtp.PlainAuth("", s.opts.Username, s.opts.Password, s.opts.Host)
	}
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))

	done := make(chan error, 1)
	go func() {
		done <- s.sendMail(addr, auth, s.opts.From, s.opts.To, msg)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("sending mail via %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Message renders the MIME message for env.
func (s *EmailSender) Message(env Envelope) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	subject := s.opts.Subject
	if env.Tag != "" {
		subject += " [" + env.Tag + "]"
	}

	var msg bytes.Buffer
	writeHeader(&msg, "From", s.opts.From)
	writeHeader(&msg, "To", strings.Join(s.opts.To, ", "))
	writeHeader(&msg, "Subject", mime.QEncoding.Encode("utf-8", subject))
	writeHeader(&msg, "Date", s.now().Format(time.RFC1123Z))
	writeHeader(&msg, "Message-ID", fmt.Sprintf("<%s@crashlog>", env.ID))
	writeHeader(&msg, "MIME-Version", "1.0")
	writeHeader(&msg, "Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", mw.Boundary()))
	msg.WriteString("\r\n")

	htmlPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=utf-8"},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, err
	}
	if err := writeBase64(htmlPart, []byte(ReportHTML(env.Report))); err != nil {
		return nil, err
	}

	if env.LogPath != "" {
		data, err := fsutil.ReadFileScoped(env.LogPath)
		if err != nil {
			return nil, fmt.Errorf("reading crash log attachment: %w", err)
		}
		name := filepath.Base(env.LogPath)
		attachment, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {fmt.Sprintf("text/plain; charset=utf-8; name=%q", name)},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", name)},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return nil, err
		}
		if err := writeBase64(attachment, data); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

// ReportHTML escapes a composed report for an HTML body. The break the
// composer put between metadata and content is kept, and newlines become
// line breaks.
func ReportHTML(report string) string {
	parts := strings.Split(report, crash.HTMLBreak)
	for i, p := range parts {
		parts[i] = strings.ReplaceAll(html.EscapeString(p), "\n", crash.HTMLBreak+"\n")
	}
	return "<html><body><div style=\"font-family: monospace\">" +
		strings.Join(parts, crash.HTMLBreak+"\n") +
		"</div></body></html>"
}

func writeHeader(b *bytes.Buffer, key, value string) {
	b.WriteString(key)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\r\n")
}

// writeBase64 writes data base64 encoded in 76 character lines.
func writeBase64(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		if _, err := w.Write([]byte(encoded[:76] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	_, err := w.Write([]byte(encoded + "\r\n"))
	return err
}
