// Package api provides OpenAPI/Swagger documentation for the ResearchFlow API.
//
// This package contains the OpenAPI 3.0 specification and related documentation
// for the ResearchFlow HTTP API.
//
// # API Overview
//
// ResearchFlow provides a RESTful API for:
//   - Submitting research sessions and tracking their lifecycle
//   - Streaming per-stage progress over server-sent events
//   - Deciding supervised-mode checkpoints
//   - Fetching the completed report
//   - Health monitoring and metrics
//
// # Authentication
//
// Most API endpoints require authentication via the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// # OpenAPI Specification
//
// The OpenAPI specification is available at:
//   - /swagger/doc.json (when swag is used)
//
// # Generating Documentation
//
// To generate Swagger documentation using swag:
//
//	swag init -g cmd/researchflow/main.go -o api --parseDependency --parseInternal
package api
