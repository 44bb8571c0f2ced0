package actionwatch

import (
	"errors"
	"fmt"

	"github.com/hazyhaar/actionwatch/resolve"
)

// Per-candidate outcome classes. None of them escapes a dispatch; they are
// reported through Callbacks.OnReject and the sinks.
var (
	ErrNotApplicable     = errors.New("actionwatch: not applicable")
	ErrSecurityRejected  = errors.New("actionwatch: security rejected")
	ErrResolutionFailed  = errors.New("actionwatch: resolution failed")
	ErrFetchFailed       = errors.New("actionwatch: fetch failed")
	ErrUnsupportedAction = errors.New("actionwatch: unsupported action")
)

// Setup contract errors.
var (
	ErrNoDocument = errors.New("actionwatch: nil document")
	ErrNoAdapter  = errors.New("actionwatch: nil action adapter")
	ErrNoRoot     = errors.New("actionwatch: observation root not found")
	ErrStarted    = errors.New("actionwatch: already started")
)

// Stages reached after resolution.
const (
	StageExtract     = "extract"
	StageActionFetch = "action-fetch"
	StageSupported   = "supported"
	StageRender      = "render"
	StageMount       = "mount"
)

// Rejection is the detail of a dropped candidate.
type Rejection struct {
	Class error  // one of the Err* classes above
	Stage string // resolve stage or one of the Stage* constants
	URL   string // the candidate's href
	Err   error
}

func (r *Rejection) Error() string {
	if r.Err == nil {
		return fmt.Sprintf("%v: %s: %s", r.Class, r.Stage, r.URL)
	}
	return fmt.Sprintf("%v: %s: %s: %v", r.Class, r.Stage, r.URL, r.Err)
}

// Unwrap exposes both the class and the cause to errors.Is.
func (r *Rejection) Unwrap() []error {
	if r.Err == nil {
		return []error{r.Class}
	}
	return []error{r.Class, r.Err}
}

func rejectOutcome(out resolve.Outcome) *Rejection {
	class := ErrResolutionFailed
	switch {
	case errors.Is(out.Err, resolve.ErrSecurity):
		class = ErrSecurityRejected
	case errors.Is(out.Err, resolve.ErrFetch):
		class = ErrFetchFailed
	}
	return &Rejection{Class: class, Stage: string(out.Stage), URL: out.SourceURL, Err: out.Err}
}
