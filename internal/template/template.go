package template

import (
	"time"
)

// Steps is the number of touches in an outreach sequence
const Steps = 3

// Template is one step of a role's outreach sequence. Editing a template
// affects only touches that have not been sent yet.
type Template struct {
	RoleID    string    `json:"role_id"`
	Step      int       `json:"step"` // 1..Steps
	Subject   string    `json:"subject"`
	BodyText  string    `json:"body_text"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RenderResult contains rendered template output
type RenderResult struct {
	Subject string `json:"subject"`
	Text    string `json:"body_text"`
	HTML    string `json:"body_html,omitempty"`
}
