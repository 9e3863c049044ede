package web

import "embed"

// Static holds the chat page and its assets.
//
//go:embed static
var Static embed.FS
