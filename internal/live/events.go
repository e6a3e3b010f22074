package live

import (
	"context"

	"backend-runtracker/internal/runs"
	"backend-runtracker/internal/tracker"
)

const (
	EventSnapshot = "snapshot"
	EventCue      = "cue"
	EventRunSaved = "run_saved"
)

// Event is what websocket followers of a session receive.
type Event struct {
	Type     string                 `json:"type"`
	Snapshot *tracker.Snapshot      `json:"snapshot,omitempty"`
	Ghost    *tracker.GhostPosition `json:"ghost,omitempty"`
	Text     string                 `json:"text,omitempty"`
	Run      *runs.Run              `json:"run,omitempty"`
}

// Broadcaster publishes events to the followers of a user.
type Broadcaster interface {
	BroadcastJSON(userID string, v any) error
}

// hubVoice speaks by pushing cue events to the user's followers.
type hubVoice struct {
	hub    Broadcaster
	userID string
}

func (v hubVoice) Say(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return v.hub.BroadcastJSON(v.userID, Event{Type: EventCue, Text: text})
}
