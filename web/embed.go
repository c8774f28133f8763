// Package web provides embedded static assets and templates for the playback card UI.
package web

import (
	"embed"
	"io/fs"
)

// TemplatesFS contains the embedded HTML templates.
//
//go:embed all:templates
var TemplatesFS embed.FS

// StaticFS contains the embedded static assets (CSS, JS, placeholder art).
//
//go:embed all:static
var StaticFS embed.FS

// Templates returns the templates directory as a filesystem root.
func Templates() fs.FS {
	return mustSub(TemplatesFS, "templates")
}

// Static returns the static directory as a filesystem root.
func Static() fs.FS {
	return mustSub(StaticFS, "static")
}

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
