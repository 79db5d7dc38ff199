// Package ui embeds the static landing page served at / by the HTTP server.
package ui

import "embed"

// Dist holds index.html, favicon.svg and assets/. The page reads
// /api/v1/projects and posts to /api/v1/contact; it has no build step.
//
//go:embed all:dist
var Dist embed.FS
