package server

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/brojonat/zviewer/service/privacy"
	"github.com/brojonat/zviewer/service/session"
)

//go:embed templates/*.html
var templatesFS embed.FS

// TemplateRenderer holds parsed HTML templates
type TemplateRenderer struct {
	templates *template.Template
	logger    *slog.Logger
}

// NewTemplateRenderer creates a new template renderer from embedded files
func NewTemplateRenderer(logger *slog.Logger) (*TemplateRenderer, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &TemplateRenderer{
		templates: tmpl,
		logger:    logger,
	}, nil
}

// Render renders a template with the given data
func (tr *TemplateRenderer) Render(w http.ResponseWriter, name string, data interface{}) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tr.templates.ExecuteTemplate(w, name, data)
}

// indexPage is the data of index.html.
type indexPage struct {
	State     session.State
	Verdict   string
	PanelTier privacy.Tier
	Rows      []privacy.Row
	Chart     privacy.ChartSeries
}

// handleIndex renders the page for the caller's session.
// GET /
func handleIndex(renderer *TemplateRenderer, sessions *session.Registry, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := sessionStore(w, r, sessions).Snapshot()

		data := indexPage{
			State:     state,
			Verdict:   privacy.Verdict(state.Score),
			PanelTier: privacy.PanelTier(state.Score),
			Rows:      privacy.TransactionRows(state.Transactions),
			Chart:     privacy.Chart(state.ScoreState),
		}
		if err := renderer.Render(w, "index.html", data); err != nil {
			logger.ErrorContext(r.Context(), "failed to render template", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	})
}

const faviconSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 32 32">` +
	`<circle cx="16" cy="16" r="15" fill="#10b981"/>` +
	`<text x="16" y="22" font-size="18" font-family="Arial" font-weight="bold" text-anchor="middle" fill="#fff">Z</text>` +
	`</svg>`

// handleFavicon serves the page icon.
func handleFavicon() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Write([]byte(faviconSVG))
	}
}
