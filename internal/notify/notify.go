// Package notify publishes page-saved notifications for downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"time"
)

// PageSaved is the payload published after a page aggregate commits.
type PageSaved struct {
	ProjectID      string    `json:"projectId"`
	PageID         string    `json:"pageId"`
	PageName       string    `json:"pageName"`
	IsModification bool      `json:"isModification"`
	PreviewURL     string    `json:"previewUrl"`
	Timestamp      time.Time `json:"timestamp"`
}

// Publisher sends notifications. Implementations must be safe for concurrent use.
type Publisher interface {
	PublishPageSaved(ctx context.Context, evt PageSaved) error
	Close() error
}

// Noop drops every notification.
type Noop struct{}

func (Noop) PublishPageSaved(context.Context, PageSaved) error { return nil }
func (Noop) Close() error                                      { return nil }

func encode(evt PageSaved, now func() time.Time) ([]byte, error) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = now().UTC()
	}
	return json.Marshal(evt)
}
