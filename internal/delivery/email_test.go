package delivery

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmailSender_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewEmailSender(EmailOptions{From: "a@x", To: []string{"b@x"}})
	assert.ErrorContains(t, err, "host")
	_, err = NewEmailSender(EmailOptions{Host: "smtp", To: []string{"b@x"}})
	assert.ErrorContains(t, err, "sender")
	_, err = NewEmailSender(EmailOptions{Host: "smtp", From: "a@x"})
	assert.ErrorContains(t, err, "recipient")

	s, err := NewEmailSender(EmailOptions{Host: "smtp", From: "a@x", To: []string{"b@x"}})
	require.NoError(t, err)
	assert.Equal(t, 587, s.opts.Port)
	assert.Equal(t, "Crash report", s.opts.Subject)
	assert.Equal(t, "email", s.Name())
}

func TestEmailSender_Send(t *testing.T) {
	t.Parallel()

	var (
		gotAddr string
		gotAuth smtp.Auth
		gotFrom string
		gotTo   []string
		gotMsg  []byte
	)
	s, err := NewEmailSender(EmailOptions{
		Host:     "mail.example.com",
		Port:     2525,
		Username: "alice",
		Password: "secret",
		From:     "crash@example.com",
		To:       []string{"oncall@example.com", "dev@example.com"},
	})
	require.NoError(t, err)
	s.sendMail = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, auth, from, to, msg
		return nil
	}

	require.NoError(t, s.Send(context.Background(), testEnvelope()))
	assert.Equal(t, "mail.example.com:2525", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "crash@example.com", gotFrom)
	assert.Equal(t, []string{"oncall@example.com", "dev@example.com"}, gotTo)
	assert.NotEmpty(t, gotMsg)
}

func TestEmailSender_SendNoAuthAndError(t *testing.T) {
	t.Parallel()

	s, err := NewEmailSender(EmailOptions{Host: "localhost", Port: 25, From: "a@x", To: []string{"b@x"}})
	require.NoError(t, err)
	s.sendMail = func(_ string, auth smtp.Auth, _ string, _ []string, _ []byte) error {
		assert.Nil(t, auth)
		return errors.New("554 rejected")
	}

	err = s.Send(context.Background(), testEnvelope())
	assert.ErrorContains(t, err, "localhost:25")
	assert.ErrorContains(t, err, "554 rejected")
}

func TestEmailSender_SendHonorsContext(t *testing.T) {
	t.Parallel()

	s, err := NewEmailSender(EmailOptions{Host: "localhost", From: "a@x", To: []string{"b@x"}})
	require.NoError(t, err)
	release := make(chan struct{})
	defer close(release)
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		<-release
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Send(ctx, testEnvelope()), context.DeadlineExceeded)
}

func TestEmailSender_Message(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "crash-payments-20260101T120000.000Z-0a1b2c3d.log")
	require.NoError(t, os.WriteFile(logPath, []byte("crash log\npanic: boom\n"), 0o600))

	s, err := NewEmailSender(EmailOptions{Host: "smtp", From: "crash@example.com", To: []string{"dev@example.com"}, Subject: "Crash"})
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }

	env := Envelope{ID: "env-1", Tag: "payments", Report: "model: <x1>\n----\n<br>panic: boom", LogPath: logPath}
	raw, err := s.Message(env)
	require.NoError(t, err)

	msg, err := mail.ReadMessage(strings.NewReader(string(raw)))
	require.NoError(t, err)

	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Crash [payments]", subject)
	assert.Equal(t, "crash@example.com", msg.Header.Get("From"))
	assert.Equal(t, "<env-1@crashlog>", msg.Header.Get("Message-ID"))

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)

	mr := multipart.NewReader(msg.Body, params["boundary"])

	htmlPart, err := mr.NextPart()
	require.NoError(t, err)
	assert.Contains(t, htmlPart.Header.Get("Content-Type"), "text/html")
	body := decodePart(t, htmlPart)
	assert.Contains(t, body, "model: &lt;x1&gt;<br>")
	assert.Contains(t, body, "panic: boom")

	attachment, err := mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(logPath), attachment.FileName())
	assert.Equal(t, "crash log\npanic: boom\n", decodePart(t, attachment))

	_, err = mr.NextPart()
	assert.ErrorIs(t, err, io.EOF)
}

func TestEmailSender_MessageMissingLog(t *testing.T) {
	t.Parallel()

	s, err := NewEmailSender(EmailOptions{Host: "smtp", From: "a@x", To: []string{"b@x"}})
	require.NoError(t, err)

	env := testEnvelope()
	env.LogPath = filepath.Join(t.TempDir(), "gone.log")
	_, err = s.Message(env)
	assert.ErrorContains(t, err, "attachment")
}

func TestReportHTML(t *testing.T) {
	t.Parallel()

	got := ReportHTML("a & b\nc<br>panic: <nil>")
	assert.Equal(t,
		`<html><body><div style="font-family: monospace">a &amp; b<br>`+"\n"+`c<br>`+"\n"+`panic: &lt;nil&gt;</div></body></html>`,
		got)
}

func decodePart(t *testing.T, p *multipart.Part) string {
	t.Helper()
	data, err := io.ReadAll(p)
	require.NoError(t, err)
	decoded, err := base64.StdEncoding.DecodeString(strings.NewReplacer("\r", "", "\n", "").Replace(string(data)))
	require.NoError(t, err)
	return string(decoded)
}
