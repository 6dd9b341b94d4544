// Package web provides the embedded static assets for the player page.
package web

import "embed"

// StaticFS contains the embedded static assets served at the site root.
//
//go:embed all:static
var StaticFS embed.FS
