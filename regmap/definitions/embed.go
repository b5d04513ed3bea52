// Package definitions holds register maps of supported CAN IP variants in JSON format.
package definitions

import "embed"

// FS contains one `<variant>_<block>.json` file per supported variant sub-block.
//
//go:embed *.json
var FS embed.FS
