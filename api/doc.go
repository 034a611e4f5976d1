// Package api wires the agentcmd HTTP handlers onto a ServeMux.
//
// # Endpoints
//
//	GET    /health, /healthz          liveness
//	GET    /ready, /readyz            readiness (database, redis, extensions)
//	GET    /version                   build information
//	GET    /api/v1/commands           loaded commands, ?agent= filters by agent
//	GET    /api/v1/commands/{name}    one command and its parameter schema
//	POST   /api/v1/commands/execute   dispatch a command
//	GET    /api/v1/extensions         loaded extensions and load errors
//	POST   /api/v1/extensions/reload  rescan extensions
//	GET    /api/v1/agents             agents with a stored configuration
//	GET    /api/v1/agents/{agent}/commands
//	PUT    /api/v1/agents/{agent}/commands
//	PUT    /api/v1/agents/{agent}/commands/{command}
//	DELETE /api/v1/agents/{agent}
//	GET    /api/v1/prompts            prompt names
//	POST   /api/v1/prompts            create a prompt
//	GET    /api/v1/prompts/{name}     ?model= selects a model-specific prompt
//	PUT    /api/v1/prompts/{name}
//	DELETE /api/v1/prompts/{name}
//
// # Authentication
//
// When API keys are configured, /api/v1 routes require the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// Responses share the envelope defined by handlers.Response.
package api
