package resolve

import (
	"errors"
	"fmt"

	"github.com/hazyhaar/actionwatch/security"
)

// Sentinel causes carried by rejected outcomes.
var (
	ErrSecurity   = errors.New("resolve: security checkpoint failed")
	ErrResolution = errors.New("resolve: resolution failed")
	ErrFetch      = errors.New("resolve: fetch failed")
)

// Kind tags an Outcome.
type Kind int

const (
	Rejected Kind = iota
	Interstitial
	Website
	DirectAction
)

func (k Kind) String() string {
	switch k {
	case Interstitial:
		return "interstitial"
	case Website:
		return "website"
	case DirectAction:
		return "direct-action"
	default:
		return "rejected"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Stage names the resolution step an outcome stopped at.
type Stage string

const (
	StageParse             Stage = "parse"
	StageUnshorten         Stage = "unshorten"
	StageInterstitialCheck Stage = "interstitial-check"
	StageDecode            Stage = "decode"
	StageWebsiteCheck      Stage = "website-check"
	StageManifestFetch     Stage = "manifest-fetch"
	StageManifestMap       Stage = "manifest-map"
	StageActionCheck       Stage = "action-check"
)

// Outcome is the result of resolving one link. Exactly one of the branch
// kinds is set on success; Rejected outcomes carry the stage and cause.
type Outcome struct {
	Kind        Kind                `json:"kind"`
	SourceURL   string              `json:"source_url"`
	ResolvedURL string              `json:"resolved_url,omitempty"` // after unshortening
	ActionURL   string              `json:"action_url,omitempty"`
	ManifestURL string              `json:"manifest_url,omitempty"`
	State       security.TrustState `json:"state,omitempty"` // actions checkpoint
	Stage       Stage               `json:"stage,omitempty"`
	Err         error               `json:"-"`
}

// OK reports whether the outcome is a resolved action endpoint.
func (o Outcome) OK() bool { return o.Kind != Rejected }

// Error renders the rejection cause, or "".
func (o Outcome) Error() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

func reject(src string, stage Stage, cause error, format string, args ...any) Outcome {
	return Outcome{
		Kind:      Rejected,
		SourceURL: src,
		Stage:     stage,
		Err:       fmt.Errorf("%w: %s: %s", cause, stage, fmt.Sprintf(format, args...)),
	}
}

func rejectErr(src string, stage Stage, cause, err error) Outcome {
	return Outcome{
		Kind:      Rejected,
		SourceURL: src,
		Stage:     stage,
		Err:       fmt.Errorf("%w: %s: %w", cause, stage, err),
	}
}
