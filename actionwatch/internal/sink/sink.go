// Package sink delivers mount instructions and rejection reports to
// downstream consumers.
package sink

import (
	"context"

	"github.com/hazyhaar/actionwatch/action"
)

// Instruction describes one completed mount. A consumer holding a live page
// replays it by locating MountXPath (or RefXPath plus Position) and setting
// the wrapper's markup to WrapperHTML.
type Instruction struct {
	ID          string             `json:"id"`
	MountID     string             `json:"mount_id"`
	PageURL     string             `json:"page_url"`
	OriginalURL string             `json:"original_url"`
	ActionURL   string             `json:"action_url"`
	Branch      string             `json:"branch"`
	State       string             `json:"state"`
	Message     bool               `json:"message"`
	MountXPath  string             `json:"mount_xpath"`
	RefXPath    string             `json:"ref_xpath"`
	Position    string             `json:"position"`
	Replaced    []string           `json:"replaced,omitempty"`
	Reused      bool               `json:"reused,omitempty"`
	WrapperHTML string             `json:"wrapper_html"`
	Descriptor  *action.Descriptor `json:"descriptor,omitempty"`
	Timestamp   int64              `json:"ts"` // unix ms
}

// Rejection reports a candidate that was dropped after extraction.
type Rejection struct {
	ID        string `json:"id"`
	PageURL   string `json:"page_url"`
	URL       string `json:"url"`
	Class     string `json:"class"`
	Stage     string `json:"stage,omitempty"`
	Error     string `json:"error"`
	Timestamp int64  `json:"ts"`
}

// Sink receives pipeline output.
type Sink interface {
	Send(ctx context.Context, ins Instruction) error
	SendRejection(ctx context.Context, rej Rejection) error
	Close() error
}

// envelope wraps output for serialisation with a type tag.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
