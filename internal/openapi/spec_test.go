package openapi

import (
	"encoding/json"
	"testing"
)

func TestJSONListsGatewayRoutes(t *testing.T) {
	t.Parallel()

	raw, err := JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var doc struct {
		OpenAPI string                 `json:"openapi"`
		Paths   map[string]interface{} `json:"paths"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("document is not JSON: %v", err)
	}
	if doc.OpenAPI == "" {
		t.Fatalf("missing openapi version")
	}
	for _, path := range []string{"/prompt", "/session/{id}/files", "/github/sync", "/events", "/graphql"} {
		if _, ok := doc.Paths[path]; !ok {
			t.Errorf("missing path %s", path)
		}
	}
}
