package notesync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// batchSchemaJSON is the shape gate for incoming sync batches. The payload
// value itself is deliberately unconstrained; only its presence is required.
// Batch size is bounded by the HTTP body limit, not by an entry count here.
const batchSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "array",
	"items": {
		"type": "object",
		"required": ["id", "kind", "payload"],
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"kind": {"type": "string", "minLength": 1},
			"transcription": {"type": ["string", "null"]},
			"completed": {"type": "boolean"}
		}
	}
}`

const batchSchemaURL = "syncd://notes/batch.schema.json"

var (
	batchSchemaOnce sync.Once
	batchSchema     *jsonschema.Schema
	batchSchemaErr  error
)

func compiledBatchSchema() (*jsonschema.Schema, error) {
	batchSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(batchSchemaJSON))
		if err != nil {
			batchSchemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(batchSchemaURL, doc); err != nil {
			batchSchemaErr = err
			return
		}
		batchSchema, batchSchemaErr = compiler.Compile(batchSchemaURL)
	})
	return batchSchema, batchSchemaErr
}

// ParseBatch decodes and validates a raw JSON sync batch. Any malformed input
// yields ErrInvalidInput before the store is touched; reconciliation itself is
// total over batches that pass this gate.
func ParseBatch(raw []byte) ([]ClientNote, error) {
	schema, err := compiledBatchSchema()
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: body is not valid json", ErrInvalidInput)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	var batch []ClientNote
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	for i := range batch {
		batch[i].ID = strings.TrimSpace(batch[i].ID)
		if batch[i].ID == "" {
			return nil, fmt.Errorf("%w: batch entry %d has a blank id", ErrInvalidInput, i)
		}
	}
	return batch, nil
}
