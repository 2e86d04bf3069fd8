package engine

import (
	"fmt"
	"strings"

	"github.com/MeKo-Tech/marginalia/internal/annotation"
	"github.com/MeKo-Tech/marginalia/internal/drawing"
)

// CommitMode decides what happens to a finished highlight stroke.
type CommitMode string

const (
	// CommitImmediate stores every stroke as its own annotation.
	CommitImmediate CommitMode = "immediate"
	// CommitPending stages strokes until a comment groups them.
	CommitPending CommitMode = "pending"
)

// ParseCommitMode validates a commit mode name.
func ParseCommitMode(s string) (CommitMode, error) {
	switch m := CommitMode(strings.ToLower(strings.TrimSpace(s))); m {
	case CommitImmediate, CommitPending:
		return m, nil
	}
	return "", fmt.Errorf("unknown commit mode %q", s)
}

// FreehandCommentQuote is the quote attached to comments created from a
// freehand stroke.
const FreehandCommentQuote = "Freehand sketch"

// ToolState is the active tool configuration.
type ToolState struct {
	Tool       drawing.Tool          `json:"tool"`
	Color      string                `json:"color"`
	Stroke     drawing.StrokeOptions `json:"stroke"`
	CommitMode CommitMode            `json:"commitMode"`
	// FreehandComments also anchors a workspace comment to every freehand stroke.
	FreehandComments bool `json:"freehandComments"`
	// FreehandCommentText is the content of those comments; empty uses the quote.
	FreehandCommentText string `json:"freehandCommentText,omitempty"`
}

// DefaultToolState selects the pointer tool with the default color and brush.
func DefaultToolState() ToolState {
	return ToolState{
		Tool:       drawing.ToolSelect,
		Color:      annotation.DefaultColor,
		Stroke:     drawing.DefaultStrokeOptions(),
		CommitMode: CommitImmediate,
	}
}

// Tools returns the active tool configuration.
func (s *Session) Tools() ToolState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tools
}

// SetTools replaces the tool configuration. An in-progress stroke keeps
// the options it started with.
func (s *Session) SetTools(t ToolState) error {
	if _, ok := drawing.ParseTool(string(t.Tool)); !ok {
		return fmt.Errorf("unknown tool %q", t.Tool)
	}
	if t.CommitMode == "" {
		t.CommitMode = CommitImmediate
	}
	if _, err := ParseCommitMode(string(t.CommitMode)); err != nil {
		return err
	}
	if t.Color == "" {
		t.Color = annotation.DefaultColor
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools = t
	return nil
}

// SetTool switches the active tool.
func (s *Session) SetTool(tool drawing.Tool) error {
	if _, ok := drawing.ParseTool(string(tool)); !ok {
		return fmt.Errorf("unknown tool %q", tool)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools.Tool = tool
	return nil
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }
