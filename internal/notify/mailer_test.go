package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/salonbook/salonapi/internal/config"
	"github.com/salonbook/salonapi/internal/services/iam"
)

type recordingDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *recordingDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func TestSMTPMailer_Send(t *testing.T) {
	t.Parallel()

	d := &recordingDialer{}
	m := &SMTPMailer{from: "no-reply@salon.test", dialer: d}

	err := m.Send(context.Background(), "stylist@salon.test", iam.TemplateSetupPassword, map[string]any{
		"role": "Expert",
		"link": "http://localhost:8080/setup-password/abc123",
	})
	require.NoError(t, err)
	require.Len(t, d.sent, 1)

	msg := d.sent[0]
	assert.Equal(t, []string{"stylist@salon.test"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"no-reply@salon.test"}, msg.GetHeader("From"))
	assert.Equal(t, []string{"Set up your salon account"}, msg.GetHeader("Subject"))

	var raw bytes.Buffer
	_, err = msg.WriteTo(&raw)
	require.NoError(t, err)
	assert.Contains(t, raw.String(), "setup-password/abc123")
}

func TestSMTPMailer_Errors(t *testing.T) {
	t.Parallel()

	d := &recordingDialer{err: errors.New("connection refused")}
	m := &SMTPMailer{from: "no-reply@salon.test", dialer: d}

	err := m.Send(context.Background(), "a@salon.test", iam.TemplateVerifyEmail, map[string]any{"code": "123456"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	err = m.Send(context.Background(), "a@salon.test", "no_such_template", nil)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = m.Send(ctx, "a@salon.test", iam.TemplateVerifyEmail, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewSMTPMailer_RequiresHostAndFrom(t *testing.T) {
	t.Parallel()

	_, err := NewSMTPMailer(config.SMTPConfig{From: "x@salon.test"})
	require.Error(t, err)
	_, err = NewSMTPMailer(config.SMTPConfig{Host: "smtp.salon.test"})
	require.Error(t, err)

	m, err := NewSMTPMailer(config.SMTPConfig{Host: "smtp.salon.test", Port: 587, From: "x@salon.test"})
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestNewMailer_FallsBackToLog(t *testing.T) {
	t.Parallel()

	m, err := NewMailer(config.SMTPConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LogMailer{}, m)

	m, err = NewMailer(config.SMTPConfig{Host: "smtp.salon.test", From: "x@salon.test"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SMTPMailer{}, m)
}

func TestLogMailer_Send(t *testing.T) {
	t.Parallel()

	logger, hook := logtest.NewNullLogger()
	m := NewLogMailer(logger)

	err := m.Send(context.Background(), "client@salon.test", iam.TemplateChangePasswordOTP, map[string]any{
		"name": "Ana",
		"code": "042917",
	})
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "client@salon.test", entry.Data["to"])
	assert.Equal(t, iam.TemplateChangePasswordOTP, entry.Data["template"])
	assert.Contains(t, entry.Message, "042917")
	assert.Contains(t, entry.Message, "Ana")
}

func TestRender_EscapesData(t *testing.T) {
	t.Parallel()

	_, body, err := render(iam.TemplateVerifyEmail, map[string]any{"name": "<script>", "code": "1"})
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
}
