// Package api embeds the HTTP API contract.
package api

import _ "embed"

// OpenAPI is the OpenAPI 3 document describing the HTTP API
//
//go:embed openapi.yaml
var OpenAPI []byte
