// Package static holds pages and fragments of the web site.
package static

import "embed"

//go:embed *.html *.css *.js can/*.html
var FS embed.FS
