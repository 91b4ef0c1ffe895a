package notesync

import "time"

// Reconcile merges an incoming client batch against the notes currently
// stored for an owner and returns the write set, one produced note per batch
// entry, in batch order. Updates are unconditional overwrites: whichever sync
// commits last wins, with no timestamp comparison or field-level merge.
//
// storedNotes must already be restricted to the owner; Reconcile never
// inspects ownership beyond stamping it onto created notes. It is a pure
// function and cannot fail on a batch that passed ParseBatch.
func Reconcile(owner string, batch []ClientNote, storedNotes []Note, now time.Time) []Note {
	byID := make(map[string]Note, len(storedNotes))
	for _, n := range storedNotes {
		byID[n.ID] = n
	}

	out := make([]Note, 0, len(batch))
	for _, c := range batch {
		if prev, ok := byID[c.ID]; ok {
			next := prev
			next.Kind = c.Kind
			next.Payload = c.Payload
			next.Transcription = c.Transcription
			next.Completed = c.Completed
			next.UpdatedAt = now
			// Feeding the produced note back into the map makes a duplicated
			// id within one batch resolve to the later entry while keeping a
			// single CreatedAt.
			byID[c.ID] = next
			out = append(out, next)
			continue
		}
		created := Note{
			ID:            c.ID,
			Owner:         owner,
			Kind:          c.Kind,
			Payload:       c.Payload,
			Transcription: c.Transcription,
			Completed:     c.Completed,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		byID[c.ID] = created
		out = append(out, created)
	}
	return out
}
