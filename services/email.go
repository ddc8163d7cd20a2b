package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"os"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
)

// EmailService delivers transactional mail over SMTP. When SMTP is not
// configured every send is a logged no-op, so local and test environments
// run without a mail relay.
type EmailService struct {
	context.DefaultService

	smtpHost     string
	smtpPort     string
	smtpUsername string
	smtpPassword string
	fromEmail    string
	fromName     string

	templates map[string]*template.Template
}

const EMAIL_SVC = "email_svc"

func (svc EmailService) Id() string {
	return EMAIL_SVC
}

func (svc *EmailService) Configure(ctx *context.Context) error {
	svc.smtpHost = os.Getenv("SMTP_HOST")
	svc.smtpPort = os.Getenv("SMTP_PORT")
	svc.smtpUsername = os.Getenv("SMTP_USERNAME")
	svc.smtpPassword = os.Getenv("SMTP_PASSWORD")
	svc.fromEmail = os.Getenv("FROM_EMAIL")
	svc.fromName = os.Getenv("FROM_NAME")

	if svc.smtpPort == "" {
		svc.smtpPort = "587"
	}
	if svc.fromName == "" {
		svc.fromName = "MediGo"
	}

	svc.templates = make(map[string]*template.Template)

	return svc.DefaultService.Configure(ctx)
}

func (svc *EmailService) Start() error {
	if err := svc.loadTemplates(); err != nil {
		log.WithError(err).Error("Failed to load email templates")
		// Mail stays degraded to no-op; the API itself still serves.
	}

	return nil
}

const passwordResetEmailHTML = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Your Password Reset Code - {{.AppName}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #0D9488; color: white; padding: 20px; text-align: center; }
        .content { padding: 20px; background-color: #f9f9f9; }
        .code { font-size: 32px; letter-spacing: 8px; font-weight: bold; text-align: center; padding: 16px; background-color: white; border-radius: 5px; margin: 20px 0; }
        .warning { background-color: #FEF2F2; border-left: 4px solid #DC2626; padding: 10px; margin: 20px 0; }
        .footer { padding: 20px; text-align: center; color: #666; font-size: 12px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Password Reset Request</h1>
        </div>
        <div class="content">
            <h2>Hi {{.Name}},</h2>
            <p>We received a request to reset the password for your {{.AppName}} account. Enter this code to continue:</p>
            <div class="code">{{.Code}}</div>
            <div class="warning">
                <strong>Important:</strong> This code expires in {{.ExpiryMinutes}} minutes and can only be used once.
            </div>
            <p>If you didn't request a password reset, you can safely ignore this email. Your password will remain unchanged.</p>
        </div>
        <div class="footer">
            <p>&copy; 2026 {{.AppName}}. All rights reserved.</p>
        </div>
    </div>
</body>
</html>
`

type passwordResetEmailData struct {
	AppName       string
	Name          string
	Code          string
	ExpiryMinutes int
}

func (svc *EmailService) loadTemplates() error {
	var err error

	svc.templates["password_reset"], err = template.New("password_reset").Parse(passwordResetEmailHTML)
	if err != nil {
		return fmt.Errorf("failed to parse password reset email template: %v", err)
	}

	return nil
}

// SendPasswordResetCode mails the short-lived reset code. A missing SMTP
// config is not an error; the caller must not treat delivery as proof the
// account exists.
func (svc *EmailService) SendPasswordResetCode(email, name, code string, expiryMinutes int) error {
	if svc.smtpHost == "" {
		log.Warn("SMTP not configured, skipping password reset email")
		return nil
	}

	data := passwordResetEmailData{
		AppName:       "MediGo",
		Name:          name,
		Code:          code,
		ExpiryMinutes: expiryMinutes,
	}

	subject := "Your Password Reset Code - MediGo"
	return svc.sendTemplateEmail(email, subject, "password_reset", data)
}

func (svc *EmailService) renderTemplate(templateName string, data interface{}) (string, error) {
	tmpl, exists := svc.templates[templateName]
	if !exists {
		return "", fmt.Errorf("template %s not found", templateName)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %v", err)
	}
	return body.String(), nil
}

func (svc *EmailService) sendTemplateEmail(to, subject, templateName string, data interface{}) error {
	body, err := svc.renderTemplate(templateName, data)
	if err != nil {
		return err
	}

	return svc.sendEmail(to, subject, body)
}

func (svc *EmailService) sendEmail(to, subject, body string) error {
	if svc.smtpHost == "" {
		return fmt.Errorf("SMTP not configured")
	}

	auth := smtp.PlainAuth("", svc.smtpUsername, svc.smtpPassword, svc.smtpHost)

	msg := []byte(fmt.Sprintf(
		"From: %s <%s>\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		svc.fromName, svc.fromEmail, to, subject, body))

	err := smtp.SendMail(
		svc.smtpHost+":"+svc.smtpPort,
		auth,
		svc.fromEmail,
		[]string{to},
		msg,
	)

	if err != nil {
		log.WithError(err).WithFields(log.Fields{"to": to, "subject": subject}).Error("Failed to send email")
		return fmt.Errorf("failed to send email: %v", err)
	}

	log.WithFields(log.Fields{"to": to, "subject": subject}).Info("Email sent successfully")
	return nil
}
