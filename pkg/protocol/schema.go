package protocol

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// httpRequestSchema constrains inbound http_request payloads before they are
// handed to the execution bridge. A violating payload is treated the same as
// an unparseable frame.
const httpRequestSchema = `{
	"type": "object",
	"required": ["method", "url"],
	"properties": {
		"method": {"type": "string", "minLength": 1},
		"url": {"type": "string", "minLength": 1},
		"headers": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		},
		"body": {"type": "string"}
	}
}`

var compiledHTTPRequestSchema = func() *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(httpRequestSchema))
	if err != nil {
		panic(fmt.Sprintf("protocol: invalid http_request schema: %v", err))
	}
	return schema
}()

func validateHTTPRequest(payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("missing payload")
	}

	result, err := compiledHTTPRequestSchema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("payload validation: %w", err)
	}

	if !result.Valid() {
		first := result.Errors()[0]
		return fmt.Errorf("invalid payload: %s", first.String())
	}

	return nil
}
