package campaign

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"eduops-notify/httpServices/mail"
	"eduops-notify/logger"
	campaignModel "eduops-notify/models/campaign"
	logModel "eduops-notify/models/log"
	templateModel "eduops-notify/models/template"
	"eduops-notify/services/dispatcher"
	"eduops-notify/services/ratelimit"
	templateService "eduops-notify/services/template"
	campaignTypes "eduops-notify/types/campaign"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// scriptedTransport returns, per recipient, a scripted sequence of
// errors; calls beyond the script succeed.
type scriptedTransport struct {
	mu      sync.Mutex
	scripts map[string][]error
	calls   map[string]int
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{
		scripts: make(map[string][]error),
		calls:   make(map[string]int),
	}
}

func (s *scriptedTransport) script(email string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[email] = errs
}

func (s *scriptedTransport) Deliver(ctx context.Context, msg mail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.calls[msg.To]
	s.calls[msg.To] = n + 1
	if script := s.scripts[msg.To]; n < len(script) {
		return script[n]
	}
	return nil
}

func (s *scriptedTransport) callCount(email string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[email]
}

func (s *scriptedTransport) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

func newCampaignServiceForTest(t *testing.T) (*Service, *gorm.DB, *scriptedTransport) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&templateModel.EmailTemplate{},
		&campaignModel.Campaign{},
		&campaignModel.RecipientAttempt{},
		&campaignModel.CampaignEvent{},
		&logModel.DeliveryLog{},
	); err != nil {
		t.Fatalf("migrate db: %v", err)
	}

	transport := newScriptedTransport()
	auditLogger := logger.NewAsyncLogger(db)
	go auditLogger.ProcessLog()
	t.Cleanup(auditLogger.Close)

	templates := templateService.NewTemplateService(db)
	svc := NewCampaignService(db, dispatcher.NewDispatcher(transport, ratelimit.Unlimited{}, auditLogger), templates)
	svc.WorkerCount = 2
	svc.MaxAttempts = 3
	svc.BackoffBase = time.Millisecond

	return svc, db, transport
}

func seedTemplate(t *testing.T, svc *Service) string {
	t.Helper()
	tmpl, err := svc.Templates.CreateTemplate(
		"course-update",
		"Update for {{name}}",
		"<p>Hi {{first_name}}, {{details}}</p>",
		"announcement",
		"ops@eduops360.com",
	)
	if err != nil {
		t.Fatalf("seed template: %v", err)
	}
	return tmpl.ID
}

func createTestCampaign(t *testing.T, svc *Service, templateID string, recipients ...campaignTypes.Recipient) string {
	t.Helper()
	id, err := svc.CreateCampaign(campaignTypes.CreateCampaignRequest{
		Name:       "March update",
		TemplateID: templateID,
		Recipients: recipients,
		Context:    map[string]interface{}{"details": "the syllabus changed"},
	}, "ops@eduops360.com")
	if err != nil {
		t.Fatalf("CreateCampaign: %v", err)
	}
	return id
}

func TestCreateCampaignFreezesRecipientsInDraft(t *testing.T) {
	svc, db, _ := newCampaignServiceForTest(t)
	templateID := seedTemplate(t, svc)

	id := createTestCampaign(t, svc, templateID,
		campaignTypes.Recipient{Email: "a@university.edu", Name: "Priya Sharma"},
		campaignTypes.Recipient{Email: "b@university.edu", Name: "Ben Okafor"},
	)

	var c campaignModel.Campaign
	if err := db.First(&c, "id = ?", id).Error; err != nil {
		t.Fatalf("load campaign: %v", err)
	}
	if c.Status != campaignModel.StatusDraft {
		t.Errorf("status = %s, want draft", c.Status)
	}
	if c.TotalRecipients != 2 || c.EmailsPending != 2 || c.EmailsSent != 0 || c.EmailsFailed != 0 {
		t.Errorf("counters total=%d sent=%d failed=%d pending=%d, want 2/0/0/2",
			c.TotalRecipients, c.EmailsSent, c.EmailsFailed, c.EmailsPending)
	}

	var attempts []campaignModel.RecipientAttempt
	if err := db.Where("campaign_id = ?", id).Find(&attempts).Error; err != nil {
		t.Fatalf("load attempts: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(attempts))
	}
	for _, a := range attempts {
		if a.State != campaignModel.AttemptPending {
			t.Errorf("attempt for %s in state %s, want pending", a.Email, a.State)
		}
		if !strings.Contains(a.RenderedBody, "the syllabus changed") {
			t.Errorf("body for %s not rendered at creation: %s", a.Email, a.RenderedBody)
		}
	}
}

func TestCreateCampaignRejectsIncompleteContext(t *testing.T) {
	svc, _, _ := newCampaignServiceForTest(t)
	templateID := seedTemplate(t, svc)

	_, err := svc.CreateCampaign(campaignTypes.CreateCampaignRequest{
		Name:       "Broken",
		TemplateID: templateID,
		Recipients: []campaignTypes.Recipient{{Email: "a@university.edu"}},
		Context:    map[string]interface{}{},
	}, "ops@eduops360.com")
	if err == nil {
		t.Fatal("expected validation error for missing {{details}}")
	}
}

func TestStartCampaignDeliversAllAndCompletes(t *testing.T) {
	svc, db, transport := newCampaignServiceForTest(t)
	templateID := seedTemplate(t, svc)
	id := createTestCampaign(t, svc, templateID,
		campaignTypes.Recipient{Email: "a@university.edu", Name: "Priya Sharma"},
		campaignTypes.Recipient{Email: "b@university.edu", Name: "Ben Okafor"},
		campaignTypes.Recipient{Email: "c@university.edu", Name: "Chen Wei"},
	)

	if err := svc.StartCampaign(context.Background(), id); err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}

	var c campaignModel.Campaign
	if err := db.First(&c, "id = ?", id).Error; err != nil {
		t.Fatalf("load campaign: %v", err)
	}
	if c.Status != campaignModel.StatusCompleted {
		t.Errorf("status = %s, want completed", c.Status)
	}
	if c.EmailsSent != 3 || c.EmailsFailed != 0 || c.EmailsPending != 0 {
		t.Errorf("counters sent=%d failed=%d pending=%d, want 3/0/0", c.EmailsSent, c.EmailsFailed, c.EmailsPending)
	}
	if c.CompletedAt == nil {
		t.Error("completed_at not set")
	}
	if transport.totalCalls() != 3 {
		t.Errorf("transport calls = %d, want 3", transport.totalCalls())
	}
}

func TestStartCampaignPartialFailure(t *testing.T) {
	svc, db, transport := newCampaignServiceForTest(t)
	templateID := seedTemplate(t, svc)

	transport.script("gone@university.edu", mail.Permanent("mailbox does not exist", nil))

	id := createTestCampaign(t, svc, templateID,
		campaignTypes.Recipient{Email: "a@university.edu", Name: "Priya Sharma"},
		campaignTypes.Recipient{Email: "gone@university.edu", Name: "Left School"},
		campaignTypes.Recipient{Email: "c@university.edu", Name: "Chen Wei"},
	)

	if err := svc.StartCampaign(context.Background(), id); err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}

	var c campaignModel.Campaign
	if err := db.First(&c, "id = ?", id).Error; err != nil {
		t.Fatalf("load campaign: %v", err)
	}
	if c.Status != campaignModel.StatusPartiallyFailed {
		t.Errorf("status = %s, want partially_failed", c.Status)
	}
	if c.EmailsSent != 2 || c.EmailsFailed != 1 || c.EmailsPending != 0 {
		t.Errorf("counters sent=%d failed=%d pending=%d, want 2/1/0", c.EmailsSent, c.EmailsFailed, c.EmailsPending)
	}

	// Permanent failures are never retried.
	if calls := transport.callCount("gone@university.edu"); calls != 1 {
		t.Errorf("permanent failure retried: %d calls, want 1", calls)
	}

	var failed campaignModel.RecipientAttempt
	if err := db.First(&failed, "campaign_id = ? AND email = ?", id, "gone@university.edu").Error; err != nil {
		t.Fatalf("load failed attempt: %v", err)
	}
	if failed.State != campaignModel.AttemptFailed {
		t.Errorf("state = %s, want failed", failed.State)
	}
	if failed.LastError == nil || !strings.Contains(*failed.LastError, "mailbox") {
		t.Errorf("last_error not recorded: %v", failed.LastError)
	}
}

func TestStartCampaignRetriesTransientThenSucceeds(t *testing.T) {
	svc, db, transport := newCampaignServiceForTest(t)
	templateID := seedTemplate(t, svc)

	transport.script("flaky@university.edu", mail.Transient("greylisted, try later", nil))

	id := createTestCampaign(t, svc, templateID,
		campaignTypes.Recipient{Email: "flaky@university.edu", Name: "Flaky Relay"},
	)

	if err := svc.StartCampaign(context.Background(), id); err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}

	var attempt campaignModel.RecipientAttempt
	if err := db.First(&attempt, "campaign_id = ?", id).Error; err != nil {
		t.Fatalf("load attempt: %v", err)
	}
	if attempt.State != campaignModel.AttemptSent {
		t.Errorf("state = %s, want sent", attempt.State)
	}
	if attempt.AttemptCount != 2 {
		t.Errorf("attempt_count = %d, want 2", attempt.AttemptCount)
	}
	if attempt.SentAt == nil {
		t.Error("sent_at not set")
	}
	if calls := transport.callCount("flaky@university.edu"); calls != 2 {
		t.Errorf("transport calls = %d, want 2", calls)
	}
}

func TestStartCampaignStopsAtAttemptCeiling(t *testing.T) {
	svc, db, transport := newCampaignServiceForTest(t)
	templateID := seedTemplate(t, svc)

	transport.script("down@university.edu",
		mail.Transient("relay unavailable", nil),
		mail.Transient("relay unavailable", nil),
		mail.Transient("relay unavailable", nil),
		mail.Transient("relay unavailable", nil),
	)

	id := createTestCampaign(t, svc, templateID,
		campaignTypes.Recipient{Email: "down@university.edu", Name: "Dead Relay"},
	)

	if err := svc.StartCampaign(context.Background(), id); err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}

	if calls := transport.callCount("down@university.edu"); calls != svc.MaxAttempts {
		t.Errorf("transport calls = %d, want exactly %d", calls, svc.MaxAttempts)
	}

	var attempt campaignModel.RecipientAttempt
	if err := db.First(&attempt, "campaign_id = ?", id).Error; err != nil {
		t.Fatalf("load attempt: %v", err)
	}
	if attempt.State != campaignModel.AttemptFailed {
		t.Errorf("state = %s, want failed", attempt.State)
	}
	if attempt.AttemptCount != svc.MaxAttempts {
		t.Errorf("attempt_count = %d, want %d", attempt.AttemptCount, svc.MaxAttempts)
	}

	var c campaignModel.Campaign
	if err := db.First(&c, "id = ?", id).Error; err != nil {
		t.Fatalf("load campaign: %v", err)
	}
	if c.Status != campaignModel.StatusPartiallyFailed {
		t.Errorf("status = %s, want partially_failed", c.Status)
	}
}

func TestStartCampaignMarksMalformedAddressWithoutTransportCall(t *testing.T) {
	svc, db, transport := newCampaignServiceForTest(t)
	templateID := seedTemplate(t, svc)

	id := createTestCampaign(t, svc, templateID,
		campaignTypes.Recipient{Email: "not-an-address", Name: "Typo"},
		campaignTypes.Recipient{Email: "ok@university.edu", Name: "Fine"},
	)

	if err := svc.StartCampaign(context.Background(), id); err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}

	if calls := transport.callCount("not-an-address"); calls != 0 {
		t.Errorf("malformed address reached the transport %d times", calls)
	}

	var bad campaignModel.RecipientAttempt
	if err := db.First(&bad, "campaign_id = ? AND email = ?", id, "not-an-address").Error; err != nil {
		t.Fatalf("load attempt: %v", err)
	}
	if bad.State != campaignModel.AttemptFailed {
		t.Errorf("state = %s, want failed", bad.State)
	}
}

func TestStartCampaignResumeSkipsDeliveredRecipients(t *testing.T) {
	svc, db, transport := newCampaignServiceForTest(t)
	templateID := seedTemplate(t, svc)

	id := createTestCampaign(t, svc, templateID,
		campaignTypes.Recipient{Email: "a@university.edu", Name: "Priya Sharma"},
		campaignTypes.Recipient{Email: "b@university.edu", Name: "Ben Okafor"},
	)

	if err := svc.StartCampaign(context.Background(), id); err != nil {
		t.Fatalf("first StartCampaign: %v", err)
	}
	if transport.totalCalls() != 2 {
		t.Fatalf("transport calls after first run = %d, want 2", transport.totalCalls())
	}

	// Re-invocation after completion is a no-op: no duplicate sends.
	if err := svc.StartCampaign(context.Background(), id); err != nil {
		t.Fatalf("second StartCampaign: %v", err)
	}
	if transport.totalCalls() != 2 {
		t.Fatalf("transport calls after resume = %d, want still 2", transport.totalCalls())
	}

	// Same for an interrupted run: recipients already Sent are untouched.
	if err := db.Model(&campaignModel.Campaign{}).Where("id = ?", id).
		Update("status", campaignModel.StatusSending).Error; err != nil {
		t.Fatalf("rewind status: %v", err)
	}
	if err := svc.StartCampaign(context.Background(), id); err != nil {
		t.Fatalf("resume StartCampaign: %v", err)
	}
	if transport.totalCalls() != 2 {
		t.Fatalf("transport calls after interrupted-run resume = %d, want still 2", transport.totalCalls())
	}

	var c campaignModel.Campaign
	if err := db.First(&c, "id = ?", id).Error; err != nil {
		t.Fatalf("load campaign: %v", err)
	}
	if c.Status != campaignModel.StatusCompleted {
		t.Errorf("status = %s, want completed", c.Status)
	}
}

func TestResumeNeverExceedsAttemptCeiling(t *testing.T) {
	svc, db, transport := newCampaignServiceForTest(t)
	templateID := seedTemplate(t, svc)

	id := createTestCampaign(t, svc, templateID,
		campaignTypes.Recipient{Email: "stuck@university.edu", Name: "Stuck Mid Flight"},
	)

	// Simulate a run that died mid-dispatch on the final attempt: the
	// row is left in attempting with the counter already at the
	// ceiling.
	if err := db.Model(&campaignModel.Campaign{}).Where("id = ?", id).
		Update("status", campaignModel.StatusSending).Error; err != nil {
		t.Fatalf("seed campaign status: %v", err)
	}
	if err := db.Model(&campaignModel.RecipientAttempt{}).Where("campaign_id = ?", id).
		Updates(map[string]interface{}{
			"state":         campaignModel.AttemptAttempting,
			"attempt_count": svc.MaxAttempts,
		}).Error; err != nil {
		t.Fatalf("seed exhausted attempt: %v", err)
	}

	if err := svc.StartCampaign(context.Background(), id); err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}

	if calls := transport.totalCalls(); calls != 0 {
		t.Errorf("exhausted attempt reached the transport %d times on resume", calls)
	}

	var attempt campaignModel.RecipientAttempt
	if err := db.First(&attempt, "campaign_id = ?", id).Error; err != nil {
		t.Fatalf("load attempt: %v", err)
	}
	if attempt.AttemptCount != svc.MaxAttempts {
		t.Errorf("attempt_count = %d, must never exceed the ceiling %d", attempt.AttemptCount, svc.MaxAttempts)
	}
	if attempt.State != campaignModel.AttemptFailed {
		t.Errorf("state = %s, want failed", attempt.State)
	}

	var c campaignModel.Campaign
	if err := db.First(&c, "id = ?", id).Error; err != nil {
		t.Fatalf("load campaign: %v", err)
	}
	if c.Status != campaignModel.StatusPartiallyFailed {
		t.Errorf("status = %s, want partially_failed", c.Status)
	}
}

func TestCancelCampaignBeforeStart(t *testing.T) {
	svc, db, transport := newCampaignServiceForTest(t)
	templateID := seedTemplate(t, svc)

	id := createTestCampaign(t, svc, templateID,
		campaignTypes.Recipient{Email: "a@university.edu", Name: "Priya Sharma"},
	)

	if err := svc.CancelCampaign(id); err != nil {
		t.Fatalf("CancelCampaign: %v", err)
	}

	if err := svc.StartCampaign(context.Background(), id); err != nil {
		t.Fatalf("StartCampaign after cancel: %v", err)
	}
	if transport.totalCalls() != 0 {
		t.Errorf("cancelled campaign reached the transport %d times", transport.totalCalls())
	}

	var c campaignModel.Campaign
	if err := db.First(&c, "id = ?", id).Error; err != nil {
		t.Fatalf("load campaign: %v", err)
	}
	if c.Status != campaignModel.StatusCancelled {
		t.Errorf("status = %s, want cancelled", c.Status)
	}

	// Cancelling a finished campaign is rejected.
	if err := svc.CancelCampaign(id); err == nil {
		t.Error("expected error cancelling an already-cancelled campaign")
	}
}

func TestGetCampaignStatusCountsAreConsistent(t *testing.T) {
	svc, _, transport := newCampaignServiceForTest(t)
	templateID := seedTemplate(t, svc)

	transport.script("gone@university.edu", mail.Permanent("hard bounce", nil))

	id := createTestCampaign(t, svc, templateID,
		campaignTypes.Recipient{Email: "a@university.edu", Name: "Priya Sharma"},
		campaignTypes.Recipient{Email: "gone@university.edu", Name: "Left School"},
	)

	if err := svc.StartCampaign(context.Background(), id); err != nil {
		t.Fatalf("StartCampaign: %v", err)
	}

	status, err := svc.GetCampaignStatus(id)
	if err != nil {
		t.Fatalf("GetCampaignStatus: %v", err)
	}
	if got := status.EmailsSent + status.EmailsFailed + status.EmailsPending; got != status.TotalRecipients {
		t.Errorf("sent+failed+pending = %d, want total %d", got, status.TotalRecipients)
	}
	if len(status.Recipients) != 2 {
		t.Fatalf("recipient slices = %d, want 2", len(status.Recipients))
	}
}
