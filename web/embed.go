// Package web carries the compiled frontend bundle. The build pipeline
// writes the production assets into frontend/dist before `go build`.
package web

import "embed"

//go:embed frontend/dist
var FrontendFS embed.FS
