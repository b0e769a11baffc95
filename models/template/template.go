package template

import (
	"regexp"
	"time"
)

// EmailTemplate is a stored message template. Subject and HTMLContent
// may contain {{placeholder}} markers that are substituted per
// recipient at render time.
type EmailTemplate struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null;unique" json:"name"`
	Subject     string    `gorm:"type:varchar(500);not null" json:"subject"`
	HTMLContent string    `gorm:"type:text;not null" json:"html_content"`
	Category    string    `gorm:"type:varchar(100);default:'general'" json:"category"`
	CreatedBy   string    `gorm:"type:varchar(255)" json:"created_by"`
	IsActive    bool      `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Placeholders returns the distinct placeholder keys declared by the
// template's subject and body, in order of first appearance.
func (t *EmailTemplate) Placeholders() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, text := range []string{t.Subject, t.HTMLContent} {
		for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				keys = append(keys, m[1])
			}
		}
	}
	return keys
}

// ReplacePlaceholders rewrites every {{key}} marker in text using the
// lookup function. Markers the lookup does not resolve are left
// untouched so the caller can report them.
func ReplacePlaceholders(text string, lookup func(key string) (string, bool)) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(marker string) string {
		key := placeholderPattern.FindStringSubmatch(marker)[1]
		if v, ok := lookup(key); ok {
			return v
		}
		return marker
	})
}
