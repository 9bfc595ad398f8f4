package template

import (
	"bytes"
	"fmt"
	htmlTemplate "html/template"
	"regexp"
	"strings"
	textTemplate "text/template"

	"github.com/reachforge/outreachd/internal/candidate"
	"github.com/reachforge/outreachd/internal/role"
)

// placeholderRe matches the bare {{first_name}} placeholder dialect used by
// template authors; normalize rewrites it to dotted map lookups before
// parsing with the stdlib engines.
var placeholderRe = regexp.MustCompile(`\{\{\s*([a-z_]+)\s*\}\}`)

// Engine renders outreach templates with candidate personalization data
type Engine struct{}

// NewEngine creates a new template engine
func NewEngine() *Engine {
	return &Engine{}
}

// Data builds the personalization fields for a candidate and role
func Data(c *candidate.Candidate, r *role.Role) map[string]interface{} {
	data := map[string]interface{}{
		"first_name":      c.FirstName,
		"last_name":       c.LastName,
		"current_role":    c.CurrentJobTitle,
		"current_company": c.CurrentEmployer,
	}
	if r != nil {
		data["job_title"] = r.JobTitle
		data["company_name"] = r.CompanyName
	}
	return data
}

// Render renders a template with the provided data. The plain-text body is
// also rendered through html/template (with newlines as <br>) to produce an
// escaped HTML variant.
func (e *Engine) Render(tmpl *Template, data map[string]interface{}) (*RenderResult, error) {
	result := &RenderResult{}

	subject, err := e.renderText("subject", tmpl.Subject, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render subject: %w", err)
	}
	result.Subject = subject

	text, err := e.renderText("body", tmpl.BodyText, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render body: %w", err)
	}
	result.Text = text

	html, err := e.renderHTML("body_html", tmpl.BodyText, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render html body: %w", err)
	}
	result.HTML = strings.ReplaceAll(html, "\n", "<br>\n")

	return result, nil
}

// Validate checks template syntax without executing it
func (e *Engine) Validate(tmpl *Template) error {
	if _, err := textTemplate.New("subject").Parse(normalize(tmpl.Subject)); err != nil {
		return fmt.Errorf("invalid subject template: %w", err)
	}
	if _, err := textTemplate.New("body").Parse(normalize(tmpl.BodyText)); err != nil {
		return fmt.Errorf("invalid body template: %w", err)
	}
	return nil
}

func normalize(tmplStr string) string {
	return placeholderRe.ReplaceAllString(tmplStr, "{{.$1}}")
}

func (e *Engine) renderText(name, tmplStr string, data map[string]interface{}) (string, error) {
	t, err := textTemplate.New(name).Parse(normalize(tmplStr))
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (e *Engine) renderHTML(name, tmplStr string, data map[string]interface{}) (string, error) {
	t, err := htmlTemplate.New(name).Parse(normalize(tmplStr))
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
