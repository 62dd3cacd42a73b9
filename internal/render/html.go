package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

const layoutFile = "templates/layout.html"

type pageSet struct {
	site  Site
	pages map[string]*template.Template
}

type pageData struct {
	Site Site
	*View
}

func parsePages(site Site) (*pageSet, error) {
	funcs := template.FuncMap{
		"datetime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.In(site.Location).Format("Mon Jan 2, 2006 3:04 PM")
		},
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.In(site.Location).Format("2006-01-02")
		},
		"clock": func(t time.Time) string {
			return t.In(site.Location).Format("3:04 PM")
		},
		"eventPath": func(id int64) string { return fmt.Sprintf("/events/%d", id) },
		"venuePath": func(id int64) string { return fmt.Sprintf("/venues/%d", id) },
		"join":      strings.Join,
	}

	files, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	ps := &pageSet{site: site, pages: make(map[string]*template.Template)}
	for _, file := range files {
		if file == layoutFile {
			continue
		}
		name := strings.TrimSuffix(path.Base(file), ".html")
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(templateFS, layoutFile, file)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		ps.pages[name] = tmpl
	}
	return ps, nil
}

func (ps *pageSet) encode(w io.Writer, v *View) error {
	tmpl, ok := ps.pages[v.Page]
	if !ok {
		return fmt.Errorf("unknown page %q", v.Page)
	}
	return tmpl.ExecuteTemplate(w, "layout", pageData{Site: ps.site, View: v})
}
