package reminder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"eduops-notify/logger"
	reminderModel "eduops-notify/models/reminder"
	sessionModel "eduops-notify/models/session"
	templateModel "eduops-notify/models/template"
	campaignService "eduops-notify/services/campaign"
	templateService "eduops-notify/services/template"
	campaignTypes "eduops-notify/types/campaign"
	"eduops-notify/utils"

	"github.com/jinzhu/now"
	"gorm.io/gorm"
)

// reminderTemplateName is the stored template used for instructor
// session reminders. It is created on first use if missing.
const reminderTemplateName = "session_reminder"

// SessionSource is the read-only collaborator providing the session
// schedule. The canonical rows are owned by the dashboard's CRUD layer.
type SessionSource interface {
	SessionsBetween(from, to time.Time) ([]sessionModel.Session, error)
}

// GormSessionSource reads the sessions table directly.
type GormSessionSource struct {
	DB *gorm.DB
}

func (s *GormSessionSource) SessionsBetween(from, to time.Time) ([]sessionModel.Session, error) {
	var sessions []sessionModel.Session
	err := s.DB.Where("start_time >= ? AND start_time <= ?", from, to).
		Order("start_time ASC").Find(&sessions).Error
	return sessions, err
}

// Service evaluates upcoming sessions against the clock and queues
// instructor reminders as single-recipient campaigns. Ticks are
// serialized: a new tick never starts before the prior one completes.
type Service struct {
	DB        *gorm.DB
	Sessions  SessionSource
	Campaigns *campaignService.Service
	Templates *templateService.Service
	Clock     utils.Clock

	TickInterval    time.Duration
	LeadTimeMinutes int
	CatchupLookback time.Duration

	mu sync.Mutex
}

func NewReminderService(db *gorm.DB, campaigns *campaignService.Service, templates *templateService.Service) *Service {
	return &Service{
		DB:              db,
		Sessions:        &GormSessionSource{DB: db},
		Campaigns:       campaigns,
		Templates:       templates,
		Clock:           utils.SystemClock{},
		TickInterval:    time.Minute,
		LeadTimeMinutes: envInt("REMINDER_LEAD_TIME_MINUTES", 60),
		CatchupLookback: time.Duration(envInt("REMINDER_CATCHUP_LOOKBACK_HOURS", 24)) * time.Hour,
	}
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// Start runs the periodic evaluation loop until the context is
// cancelled. The first tick runs immediately so a restart catches up
// on reminders missed while the process was down.
func (s *Service) Start(ctx context.Context) {
	logger.Info(fmt.Sprintf("Reminder scheduler started (tick %s, lead time %d minutes)", s.TickInterval, s.LeadTimeMinutes))

	if err := s.RunTick(s.Clock.Now()); err != nil {
		logger.Error("Reminder tick failed", err)
	}

	ticker := time.NewTicker(s.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Reminder scheduler stopped")
			return
		case t := <-ticker.C:
			// Align on the minute so the fire-window comparison is
			// stable across ticks.
			if err := s.RunTick(now.With(t).BeginningOfMinute()); err != nil {
				logger.Error("Reminder tick failed", err)
			}
		}
	}
}

// RunTick evaluates every rule once against the given instant. It is
// exposed for the manual trigger endpoint and for tests.
func (s *Service) RunTick(tickTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The window covers sessions whose fire window may be due now,
	// including those missed while the process was down.
	from := tickTime.Add(-s.CatchupLookback)
	to := tickTime.Add(time.Duration(s.LeadTimeMinutes)*time.Minute + s.TickInterval)

	sessions, err := s.Sessions.SessionsBetween(from, to)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}

	for _, sess := range sessions {
		if err := s.evaluateSession(tickTime, sess); err != nil {
			logger.Error("Failed to evaluate reminder for session "+sess.ID, err)
		}
	}

	return nil
}

// SessionReminderStatus pairs an upcoming session with its rule state.
type SessionReminderStatus struct {
	SessionID      string     `json:"session_id"`
	Topic          string     `json:"topic"`
	StartTime      time.Time  `json:"start_time"`
	InstructorName string     `json:"instructor_name"`
	FireAt         time.Time  `json:"fire_at"`
	Fired          bool       `json:"fired"`
	LastFiredAt    *time.Time `json:"last_fired_at,omitempty"`
}

// UpcomingStatus reports every session inside the current evaluation
// window and whether its reminder has fired for the present occurrence.
func (s *Service) UpcomingStatus() ([]SessionReminderStatus, error) {
	tickTime := s.Clock.Now()
	from := tickTime.Add(-s.CatchupLookback)
	to := tickTime.Add(time.Duration(s.LeadTimeMinutes)*time.Minute + s.TickInterval)

	sessions, err := s.Sessions.SessionsBetween(from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	statuses := make([]SessionReminderStatus, 0, len(sessions))
	for _, sess := range sessions {
		var rule reminderModel.ReminderRule
		fired := false
		var lastFiredAt *time.Time
		if err := s.DB.Where("session_id = ?", sess.ID).First(&rule).Error; err == nil {
			key := reminderModel.OccurrenceKey(sess.ID, sess.StartTime)
			fired = !rule.IsArmedFor(key)
			lastFiredAt = rule.LastFiredAt
		}

		lead := s.LeadTimeMinutes
		if rule.LeadTimeMinutes > 0 {
			lead = rule.LeadTimeMinutes
		}

		statuses = append(statuses, SessionReminderStatus{
			SessionID:      sess.ID,
			Topic:          sess.Topic,
			StartTime:      sess.StartTime,
			InstructorName: sess.InstructorName,
			FireAt:         sess.StartTime.Add(-time.Duration(lead) * time.Minute),
			Fired:          fired,
			LastFiredAt:    lastFiredAt,
		})
	}

	return statuses, nil
}

func (s *Service) evaluateSession(tickTime time.Time, sess sessionModel.Session) error {
	rule, err := s.getOrCreateRule(sess.ID)
	if err != nil {
		return err
	}

	// The occurrence key is derived from the authoritative start time,
	// so a rescheduled session re-arms automatically.
	occurrenceKey := reminderModel.OccurrenceKey(sess.ID, sess.StartTime)
	if !rule.IsArmedFor(occurrenceKey) {
		return nil
	}

	fireAt := rule.FireWindowStart(sess.StartTime)
	if tickTime.Before(fireAt) {
		return nil
	}

	if tickTime.Sub(fireAt) > s.CatchupLookback {
		// Too old to fire: log and disarm for this occurrence so the
		// skip is not re-evaluated every tick.
		logger.Warning(fmt.Sprintf("Reminder for session %s (%s) is beyond the catch-up lookback; skipping",
			sess.ID, sess.StartTime.Format(time.RFC3339)))
		return s.DB.Model(&reminderModel.ReminderRule{}).
			Where("id = ?", rule.ID).
			Update("last_skipped_key", occurrenceKey).Error
	}

	tmpl, err := s.ensureReminderTemplate()
	if err != nil {
		return err
	}

	// The guarded rule update and the campaign creation share one
	// transaction: the rule only transitions when the reminder campaign
	// exists, so a creation failure leaves it armed for the next tick.
	// Queuing, not delivery, transitions the rule, so a delivery failure
	// after commit never re-arms it into a reminder storm.
	firedAt := s.Clock.Now()
	var campaignID string
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&reminderModel.ReminderRule{}).
			Where("id = ? AND (last_fired_key IS NULL OR last_fired_key <> ?)", rule.ID, occurrenceKey).
			Updates(map[string]interface{}{
				"last_fired_key": occurrenceKey,
				"last_fired_at":  firedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// A concurrent tick already fired this occurrence.
			return nil
		}

		id, err := s.Campaigns.WithTx(tx).CreateCampaign(campaignTypes.CreateCampaignRequest{
			Name:       fmt.Sprintf("Session reminder: %s", sess.Topic),
			TemplateID: tmpl.ID,
			Recipients: []campaignTypes.Recipient{
				{Email: sess.InstructorEmail, Name: sess.InstructorName},
			},
			Context: map[string]interface{}{
				"topic":        sess.Topic,
				"session_date": sess.StartTime,
				"session_time": sess.StartTime.Format("3:04 PM"),
				"meeting_link": sess.MeetingLink,
			},
		}, "reminder-scheduler")
		if err != nil {
			return fmt.Errorf("failed to create reminder campaign: %w", err)
		}
		campaignID = id
		return nil
	})
	if err != nil {
		return err
	}
	if campaignID == "" {
		return nil
	}

	// Delivery runs through the dispatcher's rate limiting, retry and
	// audit guarantees in the background.
	go func() {
		if err := s.Campaigns.StartCampaign(context.Background(), campaignID); err != nil {
			logger.Error("Failed to send reminder campaign "+campaignID, err)
		}
	}()

	logger.Success(fmt.Sprintf("Reminder queued for %s (session %s)", sess.InstructorEmail, sess.ID))
	return nil
}

func (s *Service) getOrCreateRule(sessionID string) (*reminderModel.ReminderRule, error) {
	var rule reminderModel.ReminderRule
	err := s.DB.Where("session_id = ?", sessionID).First(&rule).Error
	if err == nil {
		return &rule, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	rule = reminderModel.ReminderRule{
		SessionID:       sessionID,
		LeadTimeMinutes: s.LeadTimeMinutes,
	}
	if err := s.DB.Create(&rule).Error; err != nil {
		return nil, fmt.Errorf("failed to create reminder rule: %w", err)
	}
	return &rule, nil
}

// ensureReminderTemplate returns the stored reminder template, seeding
// the default one on first use.
func (s *Service) ensureReminderTemplate() (*templateModel.EmailTemplate, error) {
	tmpl, err := s.Templates.GetTemplateByName(reminderTemplateName)
	if err == nil {
		return tmpl, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	return s.Templates.CreateTemplate(
		reminderTemplateName,
		"Reminder: Upcoming Live Session — {{topic}}",
		defaultReminderBody,
		"reminder",
		"reminder-scheduler",
	)
}

const defaultReminderBody = `
<p>Hello <b>{{name}}</b>,</p>
<p>I hope this message finds you well. This is a gentle reminder regarding your upcoming session.</p>
<p><b>Session Details:</b></p>
<ul>
	<li>
		<b>Date:</b> {{session_date}}<br>
		<b>Time:</b> {{session_time}}<br>
		<b>Topic:</b> {{topic}}<br>
		<b>Zoom:</b> <a href="{{meeting_link}}">Join Meeting</a><br>
	</li>
</ul>
<p>Please let us know if you require any assistance or have any updates regarding the session.
We look forward to a successful session!</p>
<p>Best regards,<br>Operations Team</p>
`
