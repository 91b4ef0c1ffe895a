package notesync

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBatchAcceptsWellFormedInput(t *testing.T) {
	raw := []byte(`[
		{"id": "n1", "kind": "text", "payload": "hi", "completed": false},
		{"id": "n2", "kind": "voice", "payload": {"url": "a.ogg"}, "transcription": "hello", "completed": true},
		{"id": "n3", "kind": "text", "payload": null, "transcription": null}
	]`)

	batch, err := ParseBatch(raw)

	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, "n1", batch[0].ID)
	require.NotNil(t, batch[1].Transcription)
	assert.Equal(t, "hello", *batch[1].Transcription)
	assert.False(t, batch[2].Completed, "completed defaults to false")
	assert.Nil(t, batch[2].Transcription)
}

func TestParseBatchRejectsMissingID(t *testing.T) {
	_, err := ParseBatch([]byte(`[{"kind": "text", "payload": "hi"}]`))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseBatchRejectsBlankID(t *testing.T) {
	_, err := ParseBatch([]byte(`[{"id": "   ", "kind": "text", "payload": "hi"}]`))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseBatchRejectsMissingKind(t *testing.T) {
	_, err := ParseBatch([]byte(`[{"id": "n1", "payload": "hi"}]`))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseBatchRejectsNonArrayBody(t *testing.T) {
	_, err := ParseBatch([]byte(`{"id": "n1"}`))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseBatchRejectsInvalidJSON(t *testing.T) {
	_, err := ParseBatch([]byte(`[{"id": `))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseBatchRejectsNonBooleanCompleted(t *testing.T) {
	_, err := ParseBatch([]byte(`[{"id": "n1", "kind": "text", "payload": "hi", "completed": "yes"}]`))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseBatchHasNoEntryCountCeiling(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < 1500; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"id": "n%d", "kind": "text", "payload": %d}`, i, i)
	}
	sb.WriteString("]")

	batch, err := ParseBatch([]byte(sb.String()))

	require.NoError(t, err)
	assert.Len(t, batch, 1500)
}

func TestParseBatchAllowsEmptyArray(t *testing.T) {
	batch, err := ParseBatch([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, batch)
}
