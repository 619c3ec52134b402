package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/phillip/membership-portal-go/models"
)

// email request payload for ZeptoMail API
type emailRequest struct {
	From     emailAddress  `json:"from"`
	To       []toRecipient `json:"to"`
	Subject  string        `json:"subject"`
	HtmlBody string        `json:"htmlbody"`
}

type emailAddress struct {
	Address string `json:"address"`
}

type toRecipient struct {
	Email emailWithName `json:"email_address"`
}

type emailWithName struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// Mailer sends HTML mail through the ZeptoMail HTTP API.
type Mailer struct {
	apiURL     string // e.g. https://api.zeptomail.com/v1.1/email
	apiKey     string // e.g. Zoho-enczapikey xxxxx
	from       string
	httpClient *http.Client
}

func NewMailer(apiURL, apiKey, from string) *Mailer {
	return &Mailer{
		apiURL:     apiURL,
		apiKey:     apiKey,
		from:       from,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether all ZeptoMail settings are present.
func (m *Mailer) Enabled() bool {
	return m.apiURL != "" && m.apiKey != "" && m.from != ""
}

func (m *Mailer) SendEmail(ctx context.Context, to, name, subject, body string) error {
	if !m.Enabled() {
		return fmt.Errorf("missing required email config")
	}

	payload := emailRequest{
		From: emailAddress{Address: m.from},
		To: []toRecipient{
			{Email: emailWithName{Address: to, Name: name}},
		},
		Subject:  subject,
		HtmlBody: body,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("create email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("zeptomail API error: %s", resp.Status)
	}
	return nil
}

var receiptTemplate = template.Must(template.New("receipt").Parse(
	`<p>Thank you. We have recorded your payment.</p>
<table>
<tr><td>Reference</td><td>{{.Reference}}</td></tr>
<tr><td>Amount</td><td>{{.Currency}} {{.Amount.StringFixed 2}}</td></tr>
<tr><td>For</td><td>{{.Description}} ({{.Category}})</td></tr>
<tr><td>Date</td><td>{{.CreatedAt.Format "02 Jan 2006 15:04 MST"}}</td></tr>
</table>`))

// PaymentSettled mails a receipt to the payer. Entries without an email are skipped.
func (m *Mailer) PaymentSettled(ctx context.Context, payment models.Payment) error {
	if payment.PayerEmail == "" || !m.Enabled() {
		return nil
	}

	var body bytes.Buffer
	if err := receiptTemplate.Execute(&body, payment); err != nil {
		return fmt.Errorf("render receipt: %w", err)
	}
	return m.SendEmail(ctx, payment.PayerEmail, "", "Payment receipt "+payment.Reference, body.String())
}
