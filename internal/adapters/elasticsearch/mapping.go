package elasticsearch

import (
	"encoding/json"
	"fmt"
)

// ContentMapping defines the Elasticsearch mapping for content records.
// Record properties are mapped dynamically; string properties become text
// with a keyword sub field.
const ContentMapping = `{
  "dynamic_templates": [
    {
      "property_strings": {
        "path_match": "properties.*",
        "match_mapping_type": "string",
        "mapping": {
          "type": "text",
          "fields": {
            "keyword": {
              "type": "keyword",
              "ignore_above": 256
            }
          }
        }
      }
    }
  ],
  "properties": {
    "identifier": {
      "type": "keyword"
    },
    "workspace": {
      "type": "keyword"
    },
    "path": {
      "type": "keyword"
    },
    "nodeType": {
      "type": "keyword"
    },
    "dimensions": {
      "type": "object",
      "dynamic": true
    },
    "dimensionsHash": {
      "type": "keyword"
    },
    "hidden": {
      "type": "boolean"
    },
    "properties": {
      "type": "object",
      "dynamic": true
    }
  }
}`

// Template returns the body used to create a new index generation and the
// body used to update the mapping of an existing one.
func Template(shards, replicas int) (create string, mapping string, err error) {
	var mappings map[string]any
	if err := json.Unmarshal([]byte(ContentMapping), &mappings); err != nil {
		return "", "", fmt.Errorf("failed to parse content mapping: %w", err)
	}

	body := map[string]any{
		"settings": map[string]any{
			"number_of_shards":   shards,
			"number_of_replicas": replicas,
			"analysis": map[string]any{
				"analyzer": map[string]any{
					"default": map[string]any{
						"type": "standard",
					},
				},
			},
		},
		"mappings": mappings,
	}

	createJSON, err := json.Marshal(body)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal index template: %w", err)
	}
	return string(createJSON), ContentMapping, nil
}
