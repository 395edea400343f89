package notification

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"net/textproto"
	"strings"
	texttemplate "text/template"

	"gopkg.in/gomail.v2"
)

//go:embed templates/*
var templateFS embed.FS

// SMTPConfig — параметры SMTP-релея.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	SSL      bool
}

// dialer — часть gomail.Dialer, нужная для отправки.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpTemplate struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

// SMTPMailer отправляет письма через SMTP, рендеря встроенные шаблоны.
type SMTPMailer struct {
	from      string
	dialer    dialer
	templates map[string]smtpTemplate
}

// NewSMTPMailer создаёт Mailer поверх gomail.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("smtp from address is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}

	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.SSL
	return newSMTPMailer(cfg.From, d)
}

func newSMTPMailer(from string, d dialer) (*SMTPMailer, error) {
	templates := make(map[string]smtpTemplate, 2)
	for _, name := range []string{TemplateOrderConfirmation, TemplateStatusUpdate} {
		tmpl, err := parseSMTPTemplate(name)
		if err != nil {
			return nil, err
		}
		templates[name] = tmpl
	}
	return &SMTPMailer{from: from, dialer: d, templates: templates}, nil
}

// Send рендерит шаблон и отправляет письмо. gomail не принимает context,
// поэтому отмена проверяется только до подключения.
func (m *SMTPMailer) Send(ctx context.Context, template, recipient string, variables map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmpl, ok := m.templates[template]
	if !ok {
		return &DeliveryError{Provider: "smtp", Template: template, Recipient: recipient, Err: ErrUnknownTemplate}
	}

	msg, err := m.render(tmpl, recipient, variables)
	if err != nil {
		return &DeliveryError{Provider: "smtp", Template: template, Recipient: recipient, Err: err}
	}

	if err := m.dialer.DialAndSend(msg); err != nil {
		return &DeliveryError{
			Provider:  "smtp",
			Template:  template,
			Recipient: recipient,
			Temporary: temporarySMTPError(err),
			Err:       err,
		}
	}
	return nil
}

func (m *SMTPMailer) render(tmpl smtpTemplate, recipient string, vars map[string]string) (*gomail.Message, error) {
	var subject, text, html bytes.Buffer
	if err := tmpl.subject.Execute(&subject, vars); err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	if err := tmpl.text.Execute(&text, vars); err != nil {
		return nil, fmt.Errorf("render plain: %w", err)
	}
	if err := tmpl.html.Execute(&html, vars); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", recipient)
	msg.SetHeader("Subject", strings.TrimSpace(subject.String()))
	msg.SetBody("text/plain", text.String())
	msg.AddAlternative("text/html", html.String())
	return msg, nil
}

func parseSMTPTemplate(name string) (smtpTemplate, error) {
	read := func(ext string) (string, error) {
		data, err := templateFS.ReadFile("templates/" + name + ext)
		if err != nil {
			return "", fmt.Errorf("read template %s%s: %w", name, ext, err)
		}
		return string(data), nil
	}

	subjectSrc, err := read(".subject")
	if err != nil {
		return smtpTemplate{}, err
	}
	textSrc, err := read(".txt")
	if err != nil {
		return smtpTemplate{}, err
	}
	htmlSrc, err := read(".html")
	if err != nil {
		return smtpTemplate{}, err
	}

	var t smtpTemplate
	if t.subject, err = texttemplate.New(name + ".subject").Option("missingkey=zero").Parse(subjectSrc); err != nil {
		return smtpTemplate{}, fmt.Errorf("parse %s subject: %w", name, err)
	}
	if t.text, err = texttemplate.New(name + ".txt").Option("missingkey=zero").Parse(textSrc); err != nil {
		return smtpTemplate{}, fmt.Errorf("parse %s plain: %w", name, err)
	}
	if t.html, err = htmltemplate.New(name + ".html").Option("missingkey=zero").Parse(htmlSrc); err != nil {
		return smtpTemplate{}, fmt.Errorf("parse %s html: %w", name, err)
	}
	return t, nil
}

// temporarySMTPError: коды 5xx означают окончательный отказ, всё остальное можно повторить.
func temporarySMTPError(err error) bool {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code < 500
	}
	return true
}
