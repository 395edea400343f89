package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultEmailJSEndpoint = "https://api.emailjs.com/api/v1.0/email/send"

// EmailJSConfig — параметры REST API EmailJS.
type EmailJSConfig struct {
	Endpoint   string
	ServiceID  string
	PublicKey  string
	PrivateKey string
	// Templates сопоставляет внутренние имена шаблонов с template_id в EmailJS.
	Templates map[string]string
	Timeout   time.Duration
}

// EmailJSMailer отправляет письма через EmailJS.
type EmailJSMailer struct {
	cfg    EmailJSConfig
	client *http.Client
}

type emailJSRequest struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	AccessToken    string            `json:"accessToken,omitempty"`
	TemplateParams map[string]string `json:"template_params"`
}

// NewEmailJSMailer создаёт Mailer для EmailJS.
func NewEmailJSMailer(cfg EmailJSConfig, client *http.Client) (*EmailJSMailer, error) {
	if strings.TrimSpace(cfg.ServiceID) == "" || strings.TrimSpace(cfg.PublicKey) == "" {
		return nil, errors.New("emailjs service id and public key are required")
	}
	for _, name := range []string{TemplateOrderConfirmation, TemplateStatusUpdate} {
		if strings.TrimSpace(cfg.Templates[name]) == "" {
			return nil, fmt.Errorf("emailjs template id for %s is required", name)
		}
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEmailJSEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &EmailJSMailer{cfg: cfg, client: client}, nil
}

// Send вызывает EmailJS. 4xx (кроме 429) считаются окончательным отказом.
func (m *EmailJSMailer) Send(ctx context.Context, template, recipient string, variables map[string]string) error {
	templateID, ok := m.cfg.Templates[template]
	if !ok {
		return m.fail(template, recipient, false, ErrUnknownTemplate)
	}

	params := make(map[string]string, len(variables)+1)
	for k, v := range variables {
		params[k] = v
	}
	params["to_email"] = recipient

	body, err := json.Marshal(emailJSRequest{
		ServiceID:      m.cfg.ServiceID,
		TemplateID:     templateID,
		UserID:         m.cfg.PublicKey,
		AccessToken:    m.cfg.PrivateKey,
		TemplateParams: params,
	})
	if err != nil {
		return m.fail(template, recipient, false, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return m.fail(template, recipient, false, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return m.fail(template, recipient, true, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	temporary := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	return m.fail(template, recipient, temporary,
		fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(text))))
}

func (m *EmailJSMailer) fail(template, recipient string, temporary bool, err error) error {
	return &DeliveryError{
		Provider:  "emailjs",
		Template:  template,
		Recipient: recipient,
		Temporary: temporary,
		Err:       err,
	}
}
