package resend

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"

	"github.com/habitkit/habits/internal/nudge"

	"github.com/resend/resend-go/v2"
)

const DefaultFrom = "onboarding@resend.dev"

type ResendNotifier struct {
	ApiKey string
	Email  string
	From   string
	// BaseURL overrides the Resend API endpoint; empty means the default.
	BaseURL string
}

var emailTemplate = template.Must(template.New("email").Parse(`
{{if .Expiring}}
<p>The following habit streaks are expiring within the next {{.Hours}} hours:</p>
<ul>
{{range .Expiring}}
  <li>{{.}}</li>
{{end}}
</ul>
{{end}}
{{if .Due}}
<p>Reminders due today:</p>
<ul>
{{range .Due}}
  <li>{{.}}</li>
{{end}}
</ul>
{{end}}
`))

func renderBody(r nudge.Reminder) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, r); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func subject(r nudge.Reminder) string {
	switch {
	case len(r.Expiring) > 0:
		return "Streaks are expiring soon"
	default:
		return "Habit reminders"
	}
}

func (n *ResendNotifier) client() (*resend.Client, error) {
	client := resend.NewClient(n.ApiKey)
	if n.BaseURL != "" {
		u, err := url.Parse(n.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("resend base url: %w", err)
		}
		client.BaseURL = u
	}
	return client, nil
}

func (n *ResendNotifier) SendNudge(ctx context.Context, r nudge.Reminder) error {
	if n.ApiKey == "" || n.Email == "" {
		return fmt.Errorf("resend notifier needs an api key and a recipient")
	}
	body, err := renderBody(r)
	if err != nil {
		return err
	}
	client, err := n.client()
	if err != nil {
		return err
	}

	from := n.From
	if from == "" {
		from = DefaultFrom
	}
	params := &resend.SendEmailRequest{
		From:    from,
		To:      []string{n.Email},
		Subject: subject(r),
		Html:    body,
	}
	_, err = client.Emails.SendWithContext(ctx, params)
	return err
}

var _ nudge.Notifier = (*ResendNotifier)(nil)
