package debugsink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/impedance/internal/monitoring"
)

// maxChartPoints bounds the points drawn per series; longer series are strided.
const maxChartPoints = 4000

// ChartHandler renders every recorded series as an HTML line chart.
func (r *Recorder) ChartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		page := components.NewPage()
		page.PageTitle = "Impedance debug series"
		page.SetLayout(components.PageFlexLayout)

		for _, label := range r.Labels() {
			samples := r.Series(label)
			stride := len(samples)/maxChartPoints + 1
			data := make([]opts.LineData, 0, len(samples)/stride+1)
			for i := 0; i < len(samples); i += stride {
				data = append(data, opts.LineData{Value: []interface{}{samples[i].Timestamp, samples[i].Value}})
			}

			line := charts.NewLine()
			line.SetGlobalOptions(
				charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "320px"}),
				charts.WithTitleOpts(opts.Title{Title: label, Subtitle: fmt.Sprintf("points=%d stride=%d dropped=%d", len(samples), stride, r.Dropped(label))}),
				charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
				charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "t (s)", Min: "dataMin", Max: "dataMax"}),
				charts.WithYAxisOpts(opts.YAxis{Name: axisLabel(label), Min: "dataMin", Max: "dataMax"}),
				charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
			)
			line.AddSeries(label, data, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
			page.AddCharts(line)
		}

		var buf bytes.Buffer
		if err := page.Render(&buf); err != nil {
			http.Error(w, "failed to render chart", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}
}

// SeriesHandler serves the samples for ?label= as JSON.
func (r *Recorder) SeriesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		label := req.URL.Query().Get("label")
		if label == "" {
			writeJSON(w, map[string]interface{}{"labels": r.Labels()})
			return
		}
		samples := r.Series(label)
		if samples == nil {
			http.Error(w, fmt.Sprintf("unknown label %q", label), http.StatusNotFound)
			return
		}
		type point struct {
			T          float64 `json:"t"`
			V          float64 `json:"v"`
			Annotation string  `json:"annotation,omitempty"`
		}
		pts := make([]point, len(samples))
		for i, s := range samples {
			pts[i] = point{T: s.Timestamp, V: s.Value, Annotation: s.Annotation}
		}
		writeJSON(w, map[string]interface{}{"label": label, "samples": pts})
	}
}

// AttachDebugRoutes mounts the recorder's charts and series on the tsweb debug
// mux. status, when non-nil, is served as JSON under "status".
func AttachDebugRoutes(mux *http.ServeMux, r *Recorder, status func() interface{}) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("impedance-charts", "Impedance debug series charts", r.ChartHandler())
	debug.HandleSilentFunc("impedance-series", r.SeriesHandler())
	if status != nil {
		debug.HandleFunc("impedance-status", "Latest analysis result", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, status())
		})
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("debugsink: encode response: %v", err)
	}
}
