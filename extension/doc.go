// Package extension discovers extensions, describes their commands and
// dispatches invocations.
//
// The pipeline has four parts:
//
//   - Describe derives a command's parameter schema from its declaration,
//     either an explicit []types.Param or the fields of a typed argument
//     struct (see Typed).
//   - Loader builds a Snapshot from the compiled Catalog (extensions that
//     call Register from init) and from Lua scripts in a directory. A broken
//     extension becomes a LoadError in the snapshot; it never aborts a scan.
//   - Registry holds the current Snapshot behind an atomic pointer and
//     answers lookups, enablement filtering and reloads.
//   - Dispatcher resolves a friendly name, reconciles arguments against the
//     schema, instantiates the owning extension fresh and runs the handler
//     under a deadline. Failures come back as types.Result values.
//
// Usage:
//
//	loader := extension.NewLoader(extension.WithDir("extensions"), extension.WithSettings(settings))
//	registry := extension.NewRegistry(loader)
//	if err := registry.Reload(ctx); err != nil { ... }
//	dispatcher := extension.NewDispatcher(registry)
//	res := dispatcher.Execute(ctx, "Search Web", map[string]any{"query": "weather"})
package extension
