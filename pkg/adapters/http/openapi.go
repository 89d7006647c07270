package http

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var rawSpec []byte

var (
	docOnce sync.Once
	doc     *openapi3.T
	docErr  error
)

// GetSwagger loads and validates the embedded OpenAPI document.
// The document is parsed once and shared.
func GetSwagger() (*openapi3.T, error) {
	docOnce.Do(func() {
		loader := openapi3.NewLoader()
		doc, docErr = loader.LoadFromData(rawSpec)
		if docErr != nil {
			docErr = fmt.Errorf("load openapi document: %w", docErr)
			return
		}
		if err := doc.Validate(context.Background()); err != nil {
			docErr = fmt.Errorf("invalid openapi document: %w", err)
		}
	})
	return doc, docErr
}

// decodeBody checks raw against the named component schema and decodes it into dst.
// An empty body is treated as an empty object.
func decodeBody(schemaName string, raw []byte, dst any) error {
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	swagger, err := GetSwagger()
	if err != nil {
		return err
	}
	ref, ok := swagger.Components.Schemas[schemaName]
	if !ok || ref.Value == nil {
		return fmt.Errorf("unknown schema %q", schemaName)
	}
	if err := ref.Value.VisitJSON(generic); err != nil {
		return err
	}

	return json.Unmarshal(raw, dst)
}
