// Package api embeds the HTTP API description served at /openapi.yaml.
package api

import _ "embed"

// OpenAPISpec is the OpenAPI 3.0 document for the quipubase surface.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
