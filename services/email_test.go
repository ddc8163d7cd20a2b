package services

import (
	"html/template"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmailService(t *testing.T) *EmailService {
	t.Helper()
	svc := &EmailService{templates: make(map[string]*template.Template)}
	require.NoError(t, svc.loadTemplates())
	return svc
}

func TestPasswordResetTemplateRendersCode(t *testing.T) {
	svc := newTestEmailService(t)

	body, err := svc.renderTemplate("password_reset", passwordResetEmailData{
		AppName:       "MediGo",
		Name:          "Alice",
		Code:          "482913",
		ExpiryMinutes: 10,
	})
	require.NoError(t, err)

	assert.Contains(t, body, "482913")
	assert.Contains(t, body, "Hi Alice")
	assert.Contains(t, body, "expires in 10 minutes")
}

func TestRenderUnknownTemplate(t *testing.T) {
	svc := newTestEmailService(t)

	_, err := svc.renderTemplate("order_confirmation", nil)
	assert.Error(t, err)
}

func TestSendWithoutSMTPIsNoOp(t *testing.T) {
	svc := newTestEmailService(t)

	// Unconfigured SMTP must not fail the password reset flow.
	err := svc.SendPasswordResetCode("a@example.com", "Alice", "482913", 10)
	assert.NoError(t, err)
}
