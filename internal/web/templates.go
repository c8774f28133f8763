package web

import (
	"html/template"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/justestif/song-roulette/internal/enrich"
)

// Templates manages HTML template rendering.
type Templates struct {
	templates map[string]*template.Template
	partials  map[string]*template.Template
	funcs     template.FuncMap
}

// NewTemplates creates a new template manager by loading templates from the given filesystem.
func NewTemplates(templatesFS fs.FS) (*Templates, error) {
	t := &Templates{
		templates: make(map[string]*template.Template),
		partials:  make(map[string]*template.Template),
		funcs:     defaultFuncs(),
	}

	if err := t.load(templatesFS); err != nil {
		return nil, err
	}

	return t, nil
}

// Render renders a page template with the given data.
func (t *Templates) Render(w io.Writer, page string, data any) error {
	tmpl, ok := t.templates[page]
	if !ok {
		return errors.Newf("template %q not found", page)
	}

	// Execute the "base" template which includes the page content
	return tmpl.ExecuteTemplate(w, "base", data)
}

// RenderPartial renders a partial template (without base layout) with the given data.
func (t *Templates) RenderPartial(w io.Writer, partial string, data any) error {
	tmpl, ok := t.partials[partial]
	if !ok {
		return errors.Newf("partial %q not found", partial)
	}
	return tmpl.ExecuteTemplate(w, partial, data)
}

// load parses all templates from the filesystem.
func (t *Templates) load(templatesFS fs.FS) error {
	layouts, err := fs.Glob(templatesFS, "layouts/*.html")
	if err != nil {
		return errors.Wrap(err, "finding layouts")
	}

	partials, err := fs.Glob(templatesFS, "partials/*.html")
	if err != nil {
		return errors.Wrap(err, "finding partials")
	}

	pages, err := fs.Glob(templatesFS, "pages/*.html")
	if err != nil {
		return errors.Wrap(err, "finding pages")
	}

	// Common files to include with every page
	commonFiles := append(layouts, partials...)

	for _, page := range pages {
		name := templateName(page)
		files := append([]string{page}, commonFiles...)

		tmpl, err := template.New(name).Funcs(t.funcs).ParseFS(templatesFS, files...)
		if err != nil {
			return errors.Wrapf(err, "parsing template %s", name)
		}
		t.templates[name] = tmpl
	}

	// Partials are also served standalone as card fragments
	for _, partial := range partials {
		name := templateName(partial)

		tmpl, err := template.New(name).Funcs(t.funcs).ParseFS(templatesFS, partial)
		if err != nil {
			return errors.Wrapf(err, "parsing partial %s", name)
		}
		t.partials[name] = tmpl
	}

	return nil
}

func templateName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".html")
}

// defaultFuncs returns the default template functions.
func defaultFuncs() template.FuncMap {
	return template.FuncMap{
		// deref returns the pointed-to string, or "" for nil.
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},

		// card wraps a song for the song_card partial.
		"card": func(song *enrich.EnrichedSong) CardData {
			return CardData{Song: song}
		},
	}
}

// PageData contains common data passed to all page templates.
type PageData struct {
	Title       string
	Flash       *FlashMessage
	CurrentPath string
}

// FlashMessage represents a temporary notification message.
type FlashMessage struct {
	Type    string // "success", "error"
	Message string
}

// HomePageData contains data for the home page template.
type HomePageData struct {
	PageData
	Song *enrich.EnrichedSong
	// Error is the public message shown instead of a card.
	Error string
	// PlayerAuthorized is set when the visitor has a valid Spotify user token.
	PlayerAuthorized bool
}

// CardData contains data for the song card partial.
type CardData struct {
	Song *enrich.EnrichedSong
}
