// Package builtin contains extensions compiled into the binary. Importing it
// for side effects registers them with extension.DefaultCatalog:
//
//	import _ "github.com/BaSui01/agentcmd/extension/builtin"
package builtin
