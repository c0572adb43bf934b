package config

import (
	"encoding/json"
	"fmt"

	"github.com/hdds-team/hdds-sub002/pkg/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// configSchema constrains the on-disk JSON config shape. Grounded on the
// teacher's validate.go idiom (jsonschema.CompileString + sch.Validate),
// re-themed from the HPC cluster-config schema to the DDS Config record.
const configSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"domain_id": { "type": "integer", "minimum": 0, "maximum": 232 },
		"participant_id": { "type": ["integer", "null"], "minimum": 0, "maximum": 119 },
		"transport": {
			"type": "string",
			"enum": ["udp_multicast", "intra_process", "udp_unicast", "tcp", "quic"]
		},
		"static_peers": {
			"type": "array",
			"items": { "type": "string" }
		},
		"qos": {
			"type": "object",
			"properties": {
				"reliability": { "type": "string", "enum": ["reliable", "best_effort"] },
				"durability": { "type": "string", "enum": ["volatile", "transient_local"] },
				"history": { "type": "string", "enum": ["keep_last", "keep_all"] },
				"depth": { "type": "integer", "minimum": 0 }
			}
		},
		"congestion": {
			"type": "object",
			"properties": {
				"enabled": { "type": "boolean" },
				"min_bps": { "type": "number", "minimum": 0 },
				"max_bps": { "type": "number", "minimum": 0 },
				"ecn_mode": { "type": "string", "enum": ["opportunistic", "mandatory"] }
			}
		},
		"bridge": {
			"type": "object",
			"properties": {
				"enabled": { "type": "boolean" },
				"address": { "type": "string" },
				"subject_prefix": { "type": "string" }
			}
		}
	}
}`

var compiledSchema *jsonschema.Schema

func init() {
	sch, err := jsonschema.CompileString("config.schema.json", configSchema)
	if err != nil {
		log.Fatalf("config: schema compile failed: %v", err)
	}
	compiledSchema = sch
}

// Validate checks raw (a JSON document) against configSchema.
func Validate(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("config: invalid json: %w", err)
	}
	if err := compiledSchema.Validate(v); err != nil {
		return fmt.Errorf("config: schema validation failed: %w", err)
	}
	return nil
}
