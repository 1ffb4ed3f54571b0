package httpapi

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

type schemas struct {
	provision *gojsonschema.Schema
	urls      *gojsonschema.Schema
}

func loadSchemas() (*schemas, error) {
	provision, err := compileSchema("schemas/uuid.json")
	if err != nil {
		return nil, err
	}
	urls, err := compileSchema("schemas/urls.json")
	if err != nil {
		return nil, err
	}
	return &schemas{provision: provision, urls: urls}, nil
}

func compileSchema(name string) (*gojsonschema.Schema, error) {
	raw, err := schemaFS.ReadFile(name)
	if err != nil {
		return nil, err
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return s, nil
}

// validate returns the list of violations; a body that is not JSON at all is
// reported as a single violation.
func validate(s *gojsonschema.Schema, body []byte) []string {
	result, err := s.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return []string{"invalid json: " + err.Error()}
	}
	if result.Valid() {
		return nil
	}
	out := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		out = append(out, strings.TrimPrefix(e.String(), "(root): "))
	}
	return out
}
