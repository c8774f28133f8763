package web

import (
	"io/fs"
	"testing"
)

func TestEmbeddedFiles(t *testing.T) {
	for _, name := range []string{"layouts/base.html", "pages/home.html", "partials/song_card.html"} {
		if _, err := fs.Stat(Templates(), name); err != nil {
			t.Errorf("template %s: %v", name, err)
		}
	}
	for _, name := range []string{"style.css", "player.js", "default-album-art.svg"} {
		if _, err := fs.Stat(Static(), name); err != nil {
			t.Errorf("static %s: %v", name, err)
		}
	}
}
