package http

import (
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/couchcryptid/traffic-eagle/internal/adapter/plot"
	"github.com/couchcryptid/traffic-eagle/internal/pipeline"
	"github.com/goccy/go-json"
	"github.com/starfederation/datastar-go/datastar"
)

var panelTemplate = template.Must(template.New("panel").Parse(`<div id="analysis-panel">
{{if .Placeholder}}<p class="placeholder">{{.Placeholder}}</p>{{else}}<h2>{{.Label}}</h2>
<p class="subtitle">{{.Period.Label}} accidents, {{.Mode}}{{if .Year}}, {{.Year}}{{end}}</p>
{{if .Model}}<p class="model">{{.Model}}</p>{{end}}
{{if .Notice}}<p class="notice">{{.Notice}}</p>{{end}}{{end}}
</div>`))

func (s *Server) handleYears(w http.ResponseWriter, _ *http.Request) {
	res, err := s.svc.Years()
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	ev, err := parseRatesQuery(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	res, err := s.svc.SelectYear(r.Context(), ev)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) (pipeline.AnalysisResult, bool) {
	req, err := parseAnalysisQuery(r)
	if err != nil {
		writeError(w, s.logger, err)
		return pipeline.AnalysisResult{}, false
	}
	res, err := s.svc.Analyze(r.Context(), req)
	if err != nil {
		writeError(w, s.logger, err)
		return pipeline.AnalysisResult{}, false
	}
	return res, true
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	res, ok := s.analyze(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleChart renders the analysis as a PNG. Results without a drawable
// series (placeholder, failed decomposition) answer 204.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	res, ok := s.analyze(w, r)
	if !ok {
		return
	}
	img, err := plot.RenderPNG(res)
	if errors.Is(err, plot.ErrNothingToDraw) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(img) //nolint:errcheck // client may have gone away
}

// handleAnalysisSSE patches the panel header and pushes the series as the
// "analysis" signal for the dashboard's chart.
func (s *Server) handleAnalysisSSE(w http.ResponseWriter, r *http.Request) {
	res, ok := s.analyze(w, r)
	if !ok {
		return
	}

	var html strings.Builder
	if err := panelTemplate.Execute(&html, res); err != nil {
		writeError(w, s.logger, err)
		return
	}
	signals, err := json.Marshal(map[string]any{"analysis": res})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	sse := datastar.NewSSE(w, r)
	if err := sse.PatchElements(html.String()); err != nil {
		s.logger.Warn("patch analysis panel", "error", err)
		return
	}
	if err := sse.PatchSignals(signals); err != nil {
		s.logger.Warn("patch analysis signals", "error", err)
	}
}
