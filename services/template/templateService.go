package template

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	templateModel "eduops-notify/models/template"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service stores templates and renders them against a typed context.
type Service struct {
	DB *gorm.DB
}

func NewTemplateService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

// WithTx returns a copy of the service bound to the given transaction.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{DB: tx}
}

// Rendered is the outcome of rendering a template for one recipient.
type Rendered struct {
	Subject string
	Body    string
}

// Context carries the placeholder values for one render. Values are
// restricted to strings, numbers and dates; anything else is rejected
// before a transport call is attempted.
type Context map[string]interface{}

// Recipient keys injected automatically for every campaign recipient.
var builtinKeys = map[string]bool{
	"name":       true,
	"first_name": true,
	"last_name":  true,
	"email":      true,
}

// CreateTemplate persists a new email template.
func (s *Service) CreateTemplate(name, subject, htmlContent, category, createdBy string) (*templateModel.EmailTemplate, error) {
	if category == "" {
		category = "general"
	}

	tmpl := &templateModel.EmailTemplate{
		ID:          uuid.NewString(),
		Name:        name,
		Subject:     subject,
		HTMLContent: htmlContent,
		Category:    category,
		CreatedBy:   createdBy,
		IsActive:    true,
	}

	if err := s.DB.Create(tmpl).Error; err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}
	return tmpl, nil
}

// GetTemplate fetches an active template by id.
func (s *Service) GetTemplate(id string) (*templateModel.EmailTemplate, error) {
	var tmpl templateModel.EmailTemplate
	err := s.DB.Where("id = ? AND is_active = ?", id, true).First(&tmpl).Error
	if err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// GetTemplateByName fetches an active template by its unique name.
func (s *Service) GetTemplateByName(name string) (*templateModel.EmailTemplate, error) {
	var tmpl templateModel.EmailTemplate
	err := s.DB.Where("name = ? AND is_active = ?", name, true).First(&tmpl).Error
	if err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// GetAllTemplates lists active templates, newest first.
func (s *Service) GetAllTemplates() ([]templateModel.EmailTemplate, error) {
	var templates []templateModel.EmailTemplate
	err := s.DB.Where("is_active = ?", true).Order("created_at DESC").Find(&templates).Error
	return templates, err
}

// ValidateContext checks the shared campaign context against the
// template's declared placeholders. Built-in recipient keys are
// supplied at render time and do not need to appear in the context.
func (s *Service) ValidateContext(tmpl *templateModel.EmailTemplate, ctx Context) error {
	for _, key := range tmpl.Placeholders() {
		if builtinKeys[key] {
			continue
		}
		value, ok := ctx[key]
		if !ok {
			return fmt.Errorf("template %q declares placeholder {{%s}} but the context has no such field", tmpl.Name, key)
		}
		if _, err := formatValue(key, value); err != nil {
			return err
		}
	}
	return nil
}

// Render substitutes the context and recipient fields into the
// template's subject and body.
func (s *Service) Render(tmpl *templateModel.EmailTemplate, ctx Context, recipient map[string]string) (*Rendered, error) {
	values := make(map[string]string, len(ctx)+len(recipient))
	for key, raw := range ctx {
		formatted, err := formatValue(key, raw)
		if err != nil {
			return nil, err
		}
		values[key] = formatted
	}
	for key, v := range recipient {
		values[key] = v
	}

	subject, err := substitute(tmpl.Subject, values)
	if err != nil {
		return nil, fmt.Errorf("render subject of template %q: %w", tmpl.Name, err)
	}
	body, err := substitute(tmpl.HTMLContent, values)
	if err != nil {
		return nil, fmt.Errorf("render body of template %q: %w", tmpl.Name, err)
	}

	return &Rendered{Subject: subject, Body: body}, nil
}

// formatValue converts one context value into its display string.
// Only strings, numbers and dates are accepted.
func formatValue(key string, value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10), nil
		}
		return strconv.FormatFloat(v, 'f', 2, 64), nil
	case time.Time:
		return v.Format("January 2, 2006, Monday"), nil
	default:
		return "", fmt.Errorf("context field %q has unsupported kind %T (allowed: string, number, date)", key, value)
	}
}

// substitute replaces every {{key}} marker with its value. Markers
// without a value are an error: a half-rendered email must never reach
// the transport.
func substitute(text string, values map[string]string) (string, error) {
	var missing []string
	result := templateModel.ReplacePlaceholders(text, func(key string) (string, bool) {
		v, ok := values[key]
		if !ok {
			missing = append(missing, key)
		}
		return v, ok
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing values for placeholders: %s", strings.Join(missing, ", "))
	}
	return result, nil
}
