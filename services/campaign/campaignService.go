package campaign

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"eduops-notify/httpServices/mail"
	"eduops-notify/logger"
	campaignModel "eduops-notify/models/campaign"
	"eduops-notify/services/campaign_event"
	"eduops-notify/services/dispatcher"
	templateService "eduops-notify/services/template"
	"eduops-notify/types/campaign"
	"eduops-notify/utils"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Service orchestrates campaigns from creation through completion. It
// persists state transitions in the campaign store and hands each
// recipient to the dispatcher; a campaign with failed recipients is a
// successful operation with a partial-failure result, never an error.
type Service struct {
	DB          *gorm.DB
	Dispatcher  *dispatcher.Dispatcher
	Templates   *templateService.Service
	WorkerCount int
	MaxAttempts int
	BackoffBase time.Duration
}

func NewCampaignService(db *gorm.DB, d *dispatcher.Dispatcher, t *templateService.Service) *Service {
	return &Service{
		DB:          db,
		Dispatcher:  d,
		Templates:   t,
		WorkerCount: envInt("CAMPAIGN_WORKER_COUNT", 4),
		MaxAttempts: envInt("DISPATCH_MAX_ATTEMPTS", 3),
		BackoffBase: time.Duration(envInt("DISPATCH_BACKOFF_MS", 2000)) * time.Millisecond,
	}
}

// WithTx returns a copy of the service whose writes run inside the
// given transaction, so a caller can make campaign creation part of a
// larger atomic unit.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	copied := *s
	copied.DB = tx
	copied.Templates = s.Templates.WithTx(tx)
	return &copied
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// CreateCampaign persists a campaign in Draft with every recipient in
// Pending. The recipient list is frozen at creation; messages are
// rendered here so a template or context problem is caught before any
// transport call.
func (s *Service) CreateCampaign(req campaign.CreateCampaignRequest, createdBy string) (string, error) {
	tmpl, err := s.Templates.GetTemplate(req.TemplateID)
	if err != nil {
		return "", fmt.Errorf("template %s not found: %w", req.TemplateID, err)
	}

	ctx := templateService.Context(req.Context)
	if err := s.Templates.ValidateContext(tmpl, ctx); err != nil {
		return "", err
	}

	campaignID := uuid.NewString()
	newCampaign := &campaignModel.Campaign{
		ID:              campaignID,
		Name:            req.Name,
		Subject:         tmpl.Subject,
		TemplateID:      tmpl.ID,
		Status:          campaignModel.StatusDraft,
		CreatedBy:       createdBy,
		TotalRecipients: len(req.Recipients),
		EmailsPending:   len(req.Recipients),
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(newCampaign).Error; err != nil {
			return fmt.Errorf("failed to create campaign: %w", err)
		}

		for _, r := range req.Recipients {
			firstName, lastName := utils.SplitFullName(r.Name)
			rendered, err := s.Templates.Render(tmpl, ctx, map[string]string{
				"name":       displayName(r.Name),
				"first_name": firstOr(firstName, "Valued"),
				"last_name":  firstOr(lastName, "Learner"),
				"email":      r.Email,
			})
			if err != nil {
				return fmt.Errorf("failed to render message for %s: %w", r.Email, err)
			}

			attempt := campaignModel.RecipientAttempt{
				ID:              uuid.NewString(),
				CampaignID:      campaignID,
				Email:           r.Email,
				Name:            r.Name,
				FirstName:       firstName,
				LastName:        lastName,
				RenderedSubject: rendered.Subject,
				RenderedBody:    rendered.Body,
				State:           campaignModel.AttemptPending,
			}
			if err := tx.Create(&attempt).Error; err != nil {
				return fmt.Errorf("failed to create recipient attempt: %w", err)
			}
		}

		return campaign_event.SnapshotCampaignToEvent(tx, newCampaign, campaignModel.CampaignEventCreated)
	})
	if err != nil {
		return "", err
	}

	logger.Success(fmt.Sprintf("Campaign %s created with %d recipients", campaignID, len(req.Recipients)))
	return campaignID, nil
}

// StartCampaign transitions a campaign to Sending and works through
// every dispatchable recipient with a bounded worker pool. It is
// resumable: a re-invocation only processes recipients that never
// reached a terminal state, so already-Sent recipients are untouched.
func (s *Service) StartCampaign(ctx context.Context, campaignID string) error {
	var c campaignModel.Campaign
	if err := s.DB.First(&c, "id = ?", campaignID).Error; err != nil {
		return fmt.Errorf("campaign %s not found: %w", campaignID, err)
	}

	switch c.Status {
	case campaignModel.StatusCompleted, campaignModel.StatusPartiallyFailed, campaignModel.StatusCancelled:
		// Terminal: nothing left to dispatch.
		return nil
	case campaignModel.StatusDraft:
		now := time.Now()
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&campaignModel.Campaign{}).
				Where("id = ? AND status = ?", campaignID, campaignModel.StatusDraft).
				Updates(map[string]interface{}{"status": campaignModel.StatusSending, "started_at": now})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// Another caller raced us into Sending; resuming is fine.
				return nil
			}
			c.Status = campaignModel.StatusSending
			return campaign_event.SnapshotCampaignToEvent(tx, &c, campaignModel.CampaignEventStarted)
		})
		if err != nil {
			return fmt.Errorf("failed to start campaign: %w", err)
		}
	}

	var attempts []campaignModel.RecipientAttempt
	err := s.DB.Where("campaign_id = ? AND state IN ?", campaignID, campaignModel.DispatchableStates).
		Order("created_at ASC").Find(&attempts).Error
	if err != nil {
		return fmt.Errorf("failed to load pending recipients: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.WorkerCount)

	for i := range attempts {
		attempt := attempts[i]
		g.Go(func() error {
			// Cooperative cancellation: observed between dispatches,
			// never preemptively mid-flight.
			if s.isCancelled(campaignID) || gctx.Err() != nil {
				return nil
			}
			s.processAttempt(gctx, campaignID, attempt)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	return s.finalize(campaignID)
}

// processAttempt drives one recipient through the delivery state
// machine: Pending -> Attempting -> {Sent | RetryScheduled | Failed}.
// Retries are strictly sequential with exponential backoff and stop at
// the attempt ceiling.
func (s *Service) processAttempt(ctx context.Context, campaignID string, attempt campaignModel.RecipientAttempt) {
	if !utils.ValidateEmailFormat(attempt.Email) {
		s.markTerminal(&attempt, campaignModel.AttemptFailed, "invalid email address format")
		return
	}

	for {
		if !s.claim(&attempt) {
			// Either another worker already drove this attempt to a
			// terminal state, or an interrupted run left it
			// dispatchable with no attempts remaining.
			s.failIfExhausted(&attempt)
			return
		}

		outcome, err := s.Dispatcher.Send(ctx, dispatcher.Intent{
			CampaignID:    campaignID,
			AttemptID:     attempt.ID,
			AttemptNumber: attempt.AttemptCount,
			Message: mail.Message{
				To:       attempt.Email,
				ToName:   attempt.Name,
				Subject:  attempt.RenderedSubject,
				HTMLBody: attempt.RenderedBody,
			},
		})

		switch outcome {
		case dispatcher.OutcomeSent:
			s.markTerminal(&attempt, campaignModel.AttemptSent, "")
			return
		case dispatcher.OutcomePermanentFailure:
			s.markTerminal(&attempt, campaignModel.AttemptFailed, errorSummary(err))
			return
		default:
			if attempt.AttemptCount >= s.MaxAttempts {
				s.markTerminal(&attempt, campaignModel.AttemptFailed, errorSummary(err))
				return
			}
			s.transition(&attempt, campaignModel.AttemptAttempting, campaignModel.AttemptRetryScheduled, errorSummary(err))

			backoff := s.BackoffBase * (1 << (attempt.AttemptCount - 1))
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			if s.isCancelled(campaignID) {
				return
			}
		}
	}
}

// claim moves the attempt into Attempting and bumps the attempt count
// under a guarded UPDATE, so two workers finishing at nearly the same
// time can never both own a terminal-state write. The attempt-count
// guard keeps a resumed run from pushing past the retry ceiling: a row
// interrupted mid-dispatch at the ceiling cannot be claimed again.
func (s *Service) claim(attempt *campaignModel.RecipientAttempt) bool {
	now := time.Now()
	res := s.DB.Model(&campaignModel.RecipientAttempt{}).
		Where("id = ? AND state IN ? AND attempt_count < ?", attempt.ID, campaignModel.DispatchableStates, s.MaxAttempts).
		Updates(map[string]interface{}{
			"state":             campaignModel.AttemptAttempting,
			"attempt_count":     gorm.Expr("attempt_count + 1"),
			"last_attempted_at": now,
		})
	if res.Error != nil || res.RowsAffected == 0 {
		return false
	}
	attempt.State = campaignModel.AttemptAttempting
	attempt.AttemptCount++
	attempt.LastAttemptedAt = &now
	return true
}

// failIfExhausted closes out an attempt an interrupted run left
// dispatchable at the retry ceiling. The guarded UPDATE is a no-op for
// attempts that are terminal or still have attempts remaining.
func (s *Service) failIfExhausted(attempt *campaignModel.RecipientAttempt) {
	res := s.DB.Model(&campaignModel.RecipientAttempt{}).
		Where("id = ? AND state IN ? AND attempt_count >= ?", attempt.ID, campaignModel.DispatchableStates, s.MaxAttempts).
		Updates(map[string]interface{}{
			"state":      campaignModel.AttemptFailed,
			"last_error": "retry ceiling reached",
		})
	if res.Error != nil {
		logger.Error("Failed to close out exhausted attempt for "+attempt.Email, res.Error)
		return
	}
	if res.RowsAffected > 0 {
		attempt.State = campaignModel.AttemptFailed
	}
}

// transition performs a guarded state change from one specific state.
func (s *Service) transition(attempt *campaignModel.RecipientAttempt, from, to campaignModel.AttemptState, errSummary string) {
	updates := map[string]interface{}{"state": to}
	if errSummary != "" {
		updates["last_error"] = errSummary
	}
	res := s.DB.Model(&campaignModel.RecipientAttempt{}).
		Where("id = ? AND state = ?", attempt.ID, from).
		Updates(updates)
	if res.Error != nil {
		logger.Error("Failed to persist attempt transition for "+attempt.Email, res.Error)
		return
	}
	attempt.State = to
}

// markTerminal writes a terminal state, refusing to overwrite another
// terminal state (monotonic transitions).
func (s *Service) markTerminal(attempt *campaignModel.RecipientAttempt, state campaignModel.AttemptState, errSummary string) {
	updates := map[string]interface{}{"state": state}
	if errSummary != "" {
		updates["last_error"] = errSummary
	}
	if state == campaignModel.AttemptSent {
		updates["sent_at"] = time.Now()
	}
	res := s.DB.Model(&campaignModel.RecipientAttempt{}).
		Where("id = ? AND state IN ?", attempt.ID, campaignModel.DispatchableStates).
		Updates(updates)
	if res.Error != nil {
		logger.Error("Failed to persist terminal state for "+attempt.Email, res.Error)
		return
	}
	attempt.State = state
}

// finalize recomputes the aggregate status once every attempt is
// terminal. While any recipient is non-terminal the campaign stays
// Sending (or Cancelled).
func (s *Service) finalize(campaignID string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var c campaignModel.Campaign
		if err := tx.First(&c, "id = ?", campaignID).Error; err != nil {
			return err
		}

		counts, err := countStates(tx, campaignID)
		if err != nil {
			return err
		}

		c.EmailsSent = counts[campaignModel.AttemptSent]
		c.EmailsFailed = counts[campaignModel.AttemptFailed] + counts[campaignModel.AttemptSkipped]
		c.EmailsPending = c.TotalRecipients - c.EmailsSent - c.EmailsFailed

		if c.Status == campaignModel.StatusSending && c.EmailsPending == 0 {
			now := time.Now()
			c.CompletedAt = &now
			if c.EmailsFailed == 0 {
				c.Status = campaignModel.StatusCompleted
			} else {
				c.Status = campaignModel.StatusPartiallyFailed
			}
			if err := tx.Save(&c).Error; err != nil {
				return err
			}
			return campaign_event.SnapshotCampaignToEvent(tx, &c, campaignModel.CampaignEventCompleted)
		}

		return tx.Save(&c).Error
	})
}

// CancelCampaign stops further dispatching. In-flight attempts finish;
// workers observe the new status between dispatches.
func (s *Service) CancelCampaign(campaignID string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var c campaignModel.Campaign
		if err := tx.First(&c, "id = ?", campaignID).Error; err != nil {
			return fmt.Errorf("campaign %s not found: %w", campaignID, err)
		}

		if c.Status != campaignModel.StatusDraft && c.Status != campaignModel.StatusSending {
			return errors.New("campaign is already finished")
		}

		c.Status = campaignModel.StatusCancelled
		if err := tx.Save(&c).Error; err != nil {
			return err
		}
		return campaign_event.SnapshotCampaignToEvent(tx, &c, campaignModel.CampaignEventCancelled)
	})
}

// GetCampaignStatus returns a consistent snapshot of a campaign and
// its per-recipient states.
func (s *Service) GetCampaignStatus(campaignID string) (*campaign.CampaignStatusResponse, error) {
	var c campaignModel.Campaign
	err := s.DB.Preload("Recipients", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC")
	}).First(&c, "id = ?", campaignID).Error
	if err != nil {
		return nil, err
	}

	resp := &campaign.CampaignStatusResponse{
		ID:              c.ID,
		Name:            c.Name,
		Status:          string(c.Status),
		TotalRecipients: c.TotalRecipients,
		CreatedAt:       c.CreatedAt,
		CompletedAt:     c.CompletedAt,
	}

	for _, r := range c.Recipients {
		switch r.State {
		case campaignModel.AttemptSent:
			resp.EmailsSent++
		case campaignModel.AttemptFailed, campaignModel.AttemptSkipped:
			resp.EmailsFailed++
		default:
			resp.EmailsPending++
		}
		resp.Recipients = append(resp.Recipients, campaign.RecipientStatus{
			Email:           r.Email,
			Name:            r.Name,
			State:           string(r.State),
			AttemptCount:    r.AttemptCount,
			LastError:       r.LastError,
			LastAttemptedAt: r.LastAttemptedAt,
		})
	}

	return resp, nil
}

// GetAllCampaigns lists campaigns, newest first.
func (s *Service) GetAllCampaigns() ([]campaignModel.Campaign, error) {
	var campaigns []campaignModel.Campaign
	err := s.DB.Order("created_at DESC").Find(&campaigns).Error
	return campaigns, err
}

func (s *Service) isCancelled(campaignID string) bool {
	var status campaignModel.CampaignStatus
	err := s.DB.Model(&campaignModel.Campaign{}).
		Where("id = ?", campaignID).
		Pluck("status", &status).Error
	if err != nil {
		return false
	}
	return status == campaignModel.StatusCancelled
}

func countStates(tx *gorm.DB, campaignID string) (map[campaignModel.AttemptState]int, error) {
	type row struct {
		State campaignModel.AttemptState
		N     int
	}
	var rows []row
	err := tx.Model(&campaignModel.RecipientAttempt{}).
		Select("state, count(*) as n").
		Where("campaign_id = ?", campaignID).
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[campaignModel.AttemptState]int, len(rows))
	for _, r := range rows {
		counts[r.State] = r.N
	}
	return counts, nil
}

func errorSummary(err error) string {
	if err == nil {
		return ""
	}
	summary := err.Error()
	if len(summary) > 500 {
		summary = summary[:500]
	}
	return summary
}

func displayName(name string) string {
	if name == "" {
		return "Valued Learner"
	}
	return name
}

func firstOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
