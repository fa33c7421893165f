// Package reminders mails pending respondents whose reminder is due.
package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/diagnosis/refcheck/internal/links"
	"github.com/diagnosis/refcheck/internal/platform/mailer"
	"github.com/diagnosis/refcheck/internal/repo"
	"github.com/diagnosis/refcheck/internal/requests"
	"github.com/diagnosis/refcheck/internal/tokens"
	"github.com/diagnosis/refcheck/pkg/events"
	"github.com/diagnosis/refcheck/pkg/logger"
)

type Sweeper struct {
	tokens   *tokens.Service
	requests repo.RequestRepository
	mailer   mailer.Service
	links    *links.Builder
	bus      events.Publisher
	now      func() time.Time
}

func NewSweeper(
	tokenSvc *tokens.Service,
	requestRepo repo.RequestRepository,
	mail mailer.Service,
	linkBuilder *links.Builder,
	bus events.Publisher,
	now func() time.Time,
) *Sweeper {
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		tokens:   tokenSvc,
		requests: requestRepo,
		mailer:   mail,
		links:    linkBuilder,
		bus:      bus,
		now:      now,
	}
}

// Sweep sends one reminder to every token that needs it and returns how many
// went out. Rejected tokens are skipped. A failed send is logged and does not
// count against the token's reminder budget.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	due, err := s.tokens.GetTokensNeedingReminder(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range due {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		t := &due[i]

		rejected, err := s.tokens.IsRejected(ctx, t.Token)
		if err != nil {
			return sent, err
		}
		if rejected {
			continue
		}

		req, err := s.requests.Get(ctx, t.RequestID)
		if err != nil {
			return sent, fmt.Errorf("get request %s: %w", t.RequestID, err)
		}
		company, _ := req.Company(t.CompanyID)

		attempt := t.RemindersSent + 1
		if err := s.mailer.SendReminder(ctx, requests.Invitation(s.links, req, company, t, attempt)); err != nil {
			logger.ErrorContext(ctx, "Failed to send reminder", "request_id", t.RequestID, "company_id", t.CompanyID, "error", err)
			continue
		}
		if err := s.tokens.RecordReminder(ctx, t.Token); err != nil {
			return sent, err
		}
		sent++

		if err := s.bus.Publish(ctx, events.TokenReminded, events.TokenRemindedEvent{
			RequestID:     t.RequestID,
			CompanyID:     t.CompanyID,
			RemindersSent: attempt,
			RemindedAt:    s.now(),
		}); err != nil {
			logger.ErrorContext(ctx, "Failed to publish reminder event", "request_id", t.RequestID, "error", err)
		}
	}

	if sent > 0 || len(due) > 0 {
		logger.InfoContext(ctx, "Reminder sweep finished", "due", len(due), "sent", sent)
	}
	return sent, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				logger.ErrorContext(ctx, "Reminder sweep failed", "error", err)
			}
		}
	}
}
