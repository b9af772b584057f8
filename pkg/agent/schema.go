package agent

import (
	"github.com/xeipuuv/gojsonschema"
)

// createConfigSchema guards the create-agent payload before it leaves
// the process. The platform rejects malformed configs too, but only
// after a round trip.
const createConfigSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["agentType", "agentSettings", "generationInfo"],
  "properties": {
    "agentType": {
      "type": "string",
      "enum": ["customer", "internal"]
    },
    "saveAgent": {
      "type": "boolean"
    },
    "agentSettings": {
      "type": "object",
      "required": ["agentName"],
      "properties": {
        "agentName": {
          "type": "string",
          "minLength": 1,
          "maxLength": 255
        },
        "agentApiName": {
          "type": "string",
          "pattern": "^[A-Za-z][A-Za-z0-9_]*$"
        },
        "userId": {
          "type": "string"
        },
        "enrichLogs": {
          "type": "boolean"
        },
        "tone": {
          "type": "string",
          "enum": ["formal", "casual", "neutral"]
        },
        "language": {
          "type": "string"
        }
      }
    },
    "generationInfo": {
      "type": "object",
      "required": ["role", "companyName", "companyDescription"],
      "properties": {
        "role": {
          "type": "string",
          "minLength": 1
        },
        "companyName": {
          "type": "string",
          "minLength": 1
        },
        "companyDescription": {
          "type": "string",
          "minLength": 1
        },
        "companyWebsite": {
          "type": "string"
        },
        "preDefinedTopics": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["name"],
            "properties": {
              "name": {"type": "string"},
              "description": {"type": "string"}
            }
          }
        }
      }
    },
    "maxNumOfTopics": {
      "type": "integer",
      "minimum": 1,
      "maximum": 30
    }
  }
}`

var createSchemaLoader = gojsonschema.NewStringLoader(createConfigSchema)

// validateCreateConfig validates the serialized config, collecting
// every schema violation into one ConfigValidationError.
func validateCreateConfig(data []byte) error {
	result, err := gojsonschema.Validate(createSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return err
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			problems = append(problems, resultErr.String())
		}
		return &ConfigValidationError{Problems: problems}
	}

	return nil
}
