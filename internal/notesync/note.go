package notesync

import (
	"encoding/json"
	"time"
)

// Note is one persisted note belonging to exactly one owner. The id is
// client-assigned at creation and immutable; the owner never changes after
// creation.
type Note struct {
	ID            string    `json:"id"`
	Owner         string    `json:"owner"`
	Kind          string    `json:"kind"`
	Payload       any       `json:"payload"`
	Transcription *string   `json:"transcription,omitempty"`
	Completed     bool      `json:"completed"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ClientNote is one entry of a sync batch as submitted by a client. It may
// reference an id the store already holds (update) or a new one (create).
type ClientNote struct {
	ID            string  `json:"id"`
	Kind          string  `json:"kind"`
	Payload       any     `json:"payload"`
	Transcription *string `json:"transcription,omitempty"`
	Completed     bool    `json:"completed"`
}

// cloneNote deep-copies a note, including its arbitrary payload, via a JSON
// round trip so callers cannot alias backend-held state.
func cloneNote(n Note) (Note, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return Note{}, err
	}
	var clone Note
	if err := json.Unmarshal(data, &clone); err != nil {
		return Note{}, err
	}
	return clone, nil
}
