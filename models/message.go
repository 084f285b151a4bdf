package models

import (
	"time"

	"github.com/dyike/chat2vis/consts"
	"github.com/dyike/chat2vis/internal/chart"
)

// Turn is one message in a session transcript. Content, Code and Chart are
// the payload; at least one of them is set.
type Turn struct {
	Role      string        `json:"role"`
	Content   string        `json:"content,omitempty"`
	Code      string        `json:"code,omitempty"`
	Chart     *chart.Figure `json:"chart,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Answer is the structured result of one exchange.
type Answer struct {
	Content string        `json:"content,omitempty"`
	Code    string        `json:"code,omitempty"`
	Chart   *chart.Figure `json:"chart,omitempty"`
}

func (a *Answer) Empty() bool {
	return a == nil || (a.Content == "" && a.Code == "" && a.Chart == nil)
}

// Turn converts the answer into an assistant turn.
func (a *Answer) Turn(at time.Time) Turn {
	t := Turn{Role: consts.RoleAssistant, CreatedAt: at}
	if a != nil {
		t.Content = a.Content
		t.Code = a.Code
		t.Chart = a.Chart
	}
	return t
}
