package web

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"mime"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"
	"github.com/book-expert/talktwin/internal/tts"
)

//go:embed templates/index.html
var templates embed.FS

var indexTemplate = template.Must(template.ParseFS(templates, "templates/index.html"))

type pageData struct {
	Title      string
	Logo       template.URL
	Stylesheet template.CSS
	Voices     []voiceView
}

// renderPage builds the index once. Branding assets that cannot be read are
// left out and the page falls back to the browser's default look.
func renderPage(opts Options, catalog *tts.Catalog, log *logger.Logger) ([]byte, error) {
	data := pageData{Title: opts.Title}

	if opts.LogoPath != "" {
		logo, err := os.ReadFile(opts.LogoPath)
		if err != nil {
			log.Warn("Logo %s not available, rendering without it: %v", opts.LogoPath, err)
		} else {
			data.Logo = template.URL(dataURI(opts.LogoPath, logo)) // #nosec G203 -- generated from a local file
		}
	}

	if opts.StylesheetPath != "" {
		css, err := os.ReadFile(opts.StylesheetPath)
		if err != nil {
			log.Warn("Stylesheet %s not available, using plain layout: %v", opts.StylesheetPath, err)
		} else {
			data.Stylesheet = template.CSS(css) // #nosec G203 -- operator supplied stylesheet
		}
	}

	for _, voice := range catalog.Voices() {
		data.Voices = append(data.Voices, voiceView{
			ID:      voice.ID,
			Label:   tts.Label(voice),
			Default: voice.ID == tts.DefaultVoiceID,
		})
	}

	var page bytes.Buffer

	err := indexTemplate.Execute(&page, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render index page: %w", err)
	}

	return page.Bytes(), nil
}

func dataURI(path string, content []byte) string {
	mediaType := mime.TypeByExtension(filepath.Ext(path))
	if mediaType == "" {
		mediaType = "image/png"
	}

	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(content)
}
