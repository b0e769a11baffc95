package template

import (
	"fmt"
	"strings"
	"testing"
	"time"

	templateModel "eduops-notify/models/template"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

func newTemplateDBForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&templateModel.EmailTemplate{}); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func TestCreateAndFetchTemplate(t *testing.T) {
	svc := NewTemplateService(newTemplateDBForTest(t))

	created, err := svc.CreateTemplate("welcome", "Welcome {{name}}", "<p>Hi {{first_name}}</p>", "onboarding", "admin@eduops360.com")
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected a generated template ID")
	}

	byID, err := svc.GetTemplate(created.ID)
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if byID.Name != "welcome" {
		t.Errorf("unexpected template name %q", byID.Name)
	}

	byName, err := svc.GetTemplateByName("welcome")
	if err != nil {
		t.Fatalf("GetTemplateByName: %v", err)
	}
	if byName.ID != created.ID {
		t.Errorf("lookup by name returned %q, want %q", byName.ID, created.ID)
	}
}

func TestValidateContextRejectsMissingPlaceholder(t *testing.T) {
	svc := NewTemplateService(newTemplateDBForTest(t))
	tmpl := &templateModel.EmailTemplate{
		Name:        "session",
		Subject:     "Reminder: {{topic}}",
		HTMLContent: "<p>Hello {{name}}, see you on {{session_date}}.</p>",
	}

	// Built-in recipient keys never need to be in the context.
	err := svc.ValidateContext(tmpl, Context{
		"topic":        "Distributed Systems",
		"session_date": time.Now(),
	})
	if err != nil {
		t.Fatalf("ValidateContext: %v", err)
	}

	err = svc.ValidateContext(tmpl, Context{"topic": "Distributed Systems"})
	if err == nil {
		t.Fatal("expected error for missing session_date")
	}
	if !strings.Contains(err.Error(), "session_date") {
		t.Errorf("error %q does not name the missing placeholder", err)
	}
}

func TestValidateContextRejectsUnsupportedKind(t *testing.T) {
	svc := NewTemplateService(newTemplateDBForTest(t))
	tmpl := &templateModel.EmailTemplate{
		Name:        "bad",
		Subject:     "{{payload}}",
		HTMLContent: "x",
	}

	err := svc.ValidateContext(tmpl, Context{"payload": []string{"not", "scalar"}})
	if err == nil {
		t.Fatal("expected error for non-scalar context value")
	}
}

func TestRenderSubstitutesContextAndRecipient(t *testing.T) {
	svc := NewTemplateService(newTemplateDBForTest(t))
	tmpl := &templateModel.EmailTemplate{
		Name:        "reminder",
		Subject:     "{{topic}} on {{session_date}}",
		HTMLContent: "<p>Dear {{name}}, {{topic}} starts at {{session_time}}. Seats: {{seats}}</p>",
	}

	sessionDate := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	rendered, err := svc.Render(tmpl, Context{
		"topic":        "Go Concurrency",
		"session_date": sessionDate,
		"session_time": "2:00 PM",
		"seats":        30,
	}, map[string]string{"name": "Priya Sharma"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	wantSubject := "Go Concurrency on March 10, 2026, Tuesday"
	if rendered.Subject != wantSubject {
		t.Errorf("subject = %q, want %q", rendered.Subject, wantSubject)
	}
	for _, fragment := range []string{"Dear Priya Sharma", "2:00 PM", "Seats: 30"} {
		if !strings.Contains(rendered.Body, fragment) {
			t.Errorf("body missing %q: %s", fragment, rendered.Body)
		}
	}
}

func TestRenderFailsOnUnresolvedPlaceholder(t *testing.T) {
	svc := NewTemplateService(newTemplateDBForTest(t))
	tmpl := &templateModel.EmailTemplate{
		Name:        "partial",
		Subject:     "Hi {{name}}",
		HTMLContent: "<p>{{mystery}}</p>",
	}

	_, err := svc.Render(tmpl, Context{}, map[string]string{"name": "A"})
	if err == nil {
		t.Fatal("expected error for unresolved placeholder")
	}
	if !strings.Contains(err.Error(), "mystery") {
		t.Errorf("error %q does not name the unresolved placeholder", err)
	}
}
