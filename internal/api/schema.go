package api

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"scriptreel/internal/services"
)

//go:embed start_request.schema.json
var startRequestSchema []byte

var startSchema = gojsonschema.NewBytesLoader(startRequestSchema)

// DecodeStartRequest validates body against the start request schema and
// decodes it. Schema violations are reported together as one validation
// error.
func DecodeStartRequest(body []byte) (StartRequest, error) {
	result, err := gojsonschema.Validate(startSchema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return StartRequest{}, services.Wrap(services.ErrValidation, "api", "decode start request", "body is not valid JSON", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return StartRequest{}, services.Wrap(services.ErrValidation, "api", "decode start request",
			fmt.Sprintf("request does not match schema: %s", strings.Join(problems, "; ")), nil)
	}
	var req StartRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return StartRequest{}, services.Wrap(services.ErrValidation, "api", "decode start request", "decode body", err)
	}
	return req, nil
}
