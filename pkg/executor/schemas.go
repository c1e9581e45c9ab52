package executor

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/weftlabs/substrate/pkg/contracts"
)

// Payload schemas for the closed operation set. Validation runs before any
// mutation: a batch with one bad payload aborts whole.
var opSchemaSources = map[contracts.OperationType]string{
	contracts.OpCreateBlock: `{
		"type": "object",
		"properties": {
			"title": {"type": "string"},
			"body": {"type": "string"},
			"state": {"type": "string", "enum": ["PROPOSED", "ACCEPTED"]}
		},
		"required": ["body"],
		"additionalProperties": true
	}`,
	contracts.OpReviseBlock: `{
		"type": "object",
		"properties": {
			"block_id": {"type": "string", "minLength": 1},
			"body": {"type": "string"}
		},
		"required": ["block_id", "body"],
		"additionalProperties": true
	}`,
	contracts.OpArchiveBlock: `{
		"type": "object",
		"properties": {
			"block_id": {"type": "string", "minLength": 1}
		},
		"required": ["block_id"],
		"additionalProperties": true
	}`,
	contracts.OpCreateContextItem: `{
		"type": "object",
		"properties": {
			"label": {"type": "string", "minLength": 1},
			"kind": {"type": "string"},
			"content": {"type": "string"}
		},
		"required": ["label"],
		"additionalProperties": true
	}`,
	contracts.OpEditContextItem: `{
		"type": "object",
		"properties": {
			"context_item_id": {"type": "string", "minLength": 1},
			"label": {"type": "string"},
			"content": {"type": "string"}
		},
		"required": ["context_item_id"],
		"additionalProperties": true
	}`,
	contracts.OpCreateRawDump: `{
		"type": "object",
		"properties": {
			"body": {"type": "string", "minLength": 1},
			"source": {"type": "string"}
		},
		"required": ["body"],
		"additionalProperties": true
	}`,
}

func compileOpSchemas() (map[contracts.OperationType]*jsonschema.Schema, error) {
	compiled := make(map[contracts.OperationType]*jsonschema.Schema, len(opSchemaSources))
	for opType, source := range opSchemaSources {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := fmt.Sprintf("https://substrate.schemas.local/ops/%s.schema.json", opType)
		if err := c.AddResource(url, strings.NewReader(source)); err != nil {
			return nil, fmt.Errorf("op schema load failed for %s: %w", opType, err)
		}
		schema, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("op schema compile failed for %s: %w", opType, err)
		}
		compiled[opType] = schema
	}
	return compiled, nil
}
