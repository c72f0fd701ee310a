package task

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SourceKind identifies how a task came into existence.
type SourceKind string

const (
	// SourceManual marks tasks the user created by hand.
	SourceManual SourceKind = "manual"
	// SourceTranscription marks tasks extracted from audio transcripts.
	// The producing pipeline is carried in Source.Variant.
	SourceTranscription SourceKind = "transcription"
	// SourceScreenshot marks tasks extracted from screen captures.
	SourceScreenshot SourceKind = "screenshot"
)

// Source is a closed tagged variant for task origin. On the wire it is a
// single string: "manual", "screenshot", or "transcription:<variant>".
type Source struct {
	Kind    SourceKind
	Variant string
}

// Manual is the source for user-created tasks.
var Manual = Source{Kind: SourceManual}

// ParseSource parses the wire form of a source string.
func ParseSource(s string) (Source, error) {
	if kind, variant, ok := strings.Cut(s, ":"); ok {
		if SourceKind(kind) != SourceTranscription {
			return Source{}, fmt.Errorf("invalid source %q", s)
		}
		return Source{Kind: SourceTranscription, Variant: variant}, nil
	}
	switch SourceKind(s) {
	case SourceManual, SourceScreenshot, SourceTranscription:
		return Source{Kind: SourceKind(s)}, nil
	}
	return Source{}, fmt.Errorf("invalid source %q", s)
}

// Valid reports whether the source kind is one of the known variants.
func (s Source) Valid() bool {
	switch s.Kind {
	case SourceManual, SourceTranscription, SourceScreenshot:
		return true
	}
	return false
}

// IsAI reports whether the task was produced by an automated pipeline.
// Only AI-originated tasks are subject to the visibility overlay.
func (s Source) IsAI() bool {
	switch s.Kind {
	case SourceManual:
		return false
	case SourceTranscription, SourceScreenshot:
		return true
	}
	return false
}

// String returns the wire form.
func (s Source) String() string {
	if s.Kind == SourceTranscription && s.Variant != "" {
		return string(s.Kind) + ":" + s.Variant
	}
	return string(s.Kind)
}

// MarshalJSON encodes the source as its wire string.
func (s Source) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the wire string form.
func (s *Source) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSource(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
