package mailer

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"
)

// Sender delivers one message and returns the provider's message id, if any.
type Sender interface {
	Send(ctx context.Context, toEmail, toName, subject, text, html string) (string, error)
}

type Service interface {
	SendInvitation(ctx context.Context, inv Invitation) error
	SendReminder(ctx context.Context, inv Invitation) error
}

// Invitation is everything a respondent email needs.
type Invitation struct {
	ToEmail     string
	ToName      string
	TalentName  string
	CompanyName string
	ConsentURL  string
	RejectURL   string
	ExpiresAt   time.Time
	Reminder    int // 0 for the first invitation
}

type Mailer struct {
	sender  Sender
	appName string
}

func New(sender Sender, appName string) *Mailer {
	return &Mailer{sender: sender, appName: appName}
}

func (m *Mailer) SendInvitation(ctx context.Context, inv Invitation) error {
	subject := fmt.Sprintf("[%s] Reference request for %s", m.appName, inv.TalentName)
	return m.send(ctx, inv, subject)
}

func (m *Mailer) SendReminder(ctx context.Context, inv Invitation) error {
	subject := fmt.Sprintf("[%s] Reminder (%d): reference request for %s", m.appName, inv.Reminder, inv.TalentName)
	return m.send(ctx, inv, subject)
}

func (m *Mailer) send(ctx context.Context, inv Invitation, subject string) error {
	text, body := render(inv)
	if _, err := m.sender.Send(ctx, inv.ToEmail, inv.ToName, subject, text, body); err != nil {
		return fmt.Errorf("send to %s: %w", inv.ToEmail, err)
	}
	return nil
}

func render(inv Invitation) (string, string) {
	expires := inv.ExpiresAt.Format("2006-01-02")

	var text strings.Builder
	fmt.Fprintf(&text, "Hello %s,\n\n", inv.ToName)
	fmt.Fprintf(&text, "%s has asked %s for a reference.\n", inv.TalentName, inv.CompanyName)
	fmt.Fprintf(&text, "Respond here: %s\n", inv.ConsentURL)
	fmt.Fprintf(&text, "Decline here: %s\n", inv.RejectURL)
	fmt.Fprintf(&text, "This link expires on %s.\n", expires)

	e := html.EscapeString
	body := fmt.Sprintf(`<p>Hello %s,</p>
<p><b>%s</b> has asked %s for a reference.</p>
<p><a href="%s">Respond</a> or <a href="%s">decline</a>.</p>
<p>This link expires on %s.</p>`,
		e(inv.ToName), e(inv.TalentName), e(inv.CompanyName), e(inv.ConsentURL), e(inv.RejectURL), expires)

	return text.String(), body
}
