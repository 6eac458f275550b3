package status

import (
	"bytes"
	"fmt"
	"image/color"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/ratemeter/internal/httputil"
	"github.com/banshee-data/ratemeter/internal/rate"
	"github.com/banshee-data/ratemeter/internal/window"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleChart renders the window and the four rates as an HTML page.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	snap, ok := s.board.Latest()
	if !ok {
		httputil.ServiceUnavailable(w, noDataMsg)
		return
	}

	xs, ys := relativeSeries(snap.Window)
	labels := make([]string, len(xs))
	data := make([]opts.LineData, len(ys))
	for i := range xs {
		labels[i] = fmt.Sprintf("%.1f", xs[i])
		data[i] = opts.LineData{Value: ys[i]}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "ratemeter", Width: "100%", Height: "480px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Distance", Subtitle: fmt.Sprintf("samples=%d updated=%s", snap.Samples, snap.UpdatedAt.Format("15:04:05"))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Age (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Distance (mm)", Scale: opts.Bool(true)}),
	)
	line.SetXAxis(labels).AddSeries("distance", data)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "320px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Rates (nm/s)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis([]string{"short", "mid", "long", "smoothed"}).
		AddSeries("rate", []opts.BarData{
			{Value: snap.Short.Rate * 1e6},
			{Value: snap.Mid.Rate * 1e6},
			{Value: snap.Long.Rate * 1e6},
			{Value: snap.Smoothed * 1e6},
		}, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(line, bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handlePlot renders the window with each horizon's fitted line as a PNG.
func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	snap, ok := s.board.Latest()
	if !ok {
		httputil.ServiceUnavailable(w, noDataMsg)
		return
	}

	p, err := windowPlot(snap)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("plot error: %v", err))
		return
	}
	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("plot error: %v", err))
		return
	}

	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("plot error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

var fitColors = map[string]color.Color{
	"short": color.RGBA{R: 220, G: 50, B: 47, A: 255},
	"mid":   color.RGBA{R: 38, G: 139, B: 210, A: 255},
	"long":  color.RGBA{R: 133, G: 153, B: 0, A: 255},
}

func windowPlot(snap Snapshot) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Window (%d samples)", len(snap.Window))
	p.X.Label.Text = "Age (s)"
	p.Y.Label.Text = "Distance (mm)"
	p.Legend.Top = true
	p.Legend.Left = true

	xs, ys := relativeSeries(snap.Window)
	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i] = plotter.XY{X: xs[i], Y: ys[i]}
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	scatter.GlyphStyle.Radius = vg.Points(1.5)
	p.Add(scatter)
	p.Legend.Add("distance", scatter)

	fits := []struct {
		name string
		est  rate.Estimate
	}{
		{"short", snap.Short},
		{"mid", snap.Mid},
		{"long", snap.Long},
	}
	for _, f := range fits {
		seg := fitSegment(xs, ys, f.est)
		if seg == nil {
			continue
		}
		l, err := plotter.NewLine(seg)
		if err != nil {
			return nil, err
		}
		l.Color = fitColors[f.name]
		l.Width = vg.Points(1.5)
		p.Add(l)
		p.Legend.Add(fmt.Sprintf("%s %.0f nm/s", f.name, f.est.Rate*1e6), l)
	}
	return p, nil
}

// relativeSeries returns sample ages in seconds relative to the newest
// sample (so all x <= 0) alongside the distances.
func relativeSeries(samples []window.Sample) ([]float64, []float64) {
	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	if len(samples) == 0 {
		return xs, ys
	}
	newest := samples[len(samples)-1].Time
	for i, s := range samples {
		xs[i] = s.Time.Sub(newest).Seconds()
		ys[i] = s.Distance
	}
	return xs, ys
}

// fitSegment draws the least-squares line of est over the tail it was fitted
// on. The line passes through the centroid of that tail.
func fitSegment(xs, ys []float64, est rate.Estimate) plotter.XYs {
	n := est.Count
	if n < 2 || n > len(xs) {
		return nil
	}
	tx, ty := xs[len(xs)-n:], ys[len(ys)-n:]
	mx, my := stat.Mean(tx, nil), stat.Mean(ty, nil)
	at := func(x float64) float64 { return my + est.Rate*(x-mx) }
	return plotter.XYs{
		{X: tx[0], Y: at(tx[0])},
		{X: tx[n-1], Y: at(tx[n-1])},
	}
}
