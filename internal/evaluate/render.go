package evaluate

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/wolfhowl/bioacoustics/internal/errors"
)

// Output file names written by WriteOutputs
const (
	ReportFile    = "report.json"
	ConfusionCSV  = "confusion.csv"
	ConfusionPNG  = "confusion.png"
	heatmapCell   = 24
	heatmapMargin = 4
)

// RenderTable returns per-class metrics and macro averages as a table.
func RenderTable(r *Report) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle(fmt.Sprintf("%s/%s: %d samples", r.Family, r.Head, r.Samples))
	tw.AppendHeader(table.Row{"Class", "Precision", "Recall", "F1", "Support"})
	for _, m := range r.PerClass {
		tw.AppendRow(table.Row{m.Class, pct(m.Precision), pct(m.Recall), pct(m.F1), m.Support})
	}
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"macro avg", pct(r.MacroPrecision), pct(r.MacroRecall), pct(r.MacroF1), r.Samples})
	tw.AppendFooter(table.Row{"accuracy", pct(r.Accuracy), fmt.Sprintf("top-%d", r.TopK), pct(r.TopKAccuracy), ""})

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	return tw.Render()
}

// RenderConfusion returns the confusion matrix as a table, true classes
// as rows.
func RenderConfusion(r *Report) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := table.Row{"true \\ predicted"}
	for _, c := range r.Classes {
		header = append(header, c)
	}
	tw.AppendHeader(header)
	for i, row := range r.Confusion {
		cells := table.Row{r.Classes[i]}
		for _, v := range row {
			cells = append(cells, v)
		}
		tw.AppendRow(cells)
	}
	return tw.Render()
}

func pct(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

// WriteOutputs writes report.json, confusion.csv and confusion.png into dir
// and returns their paths.
func WriteOutputs(dir string, r *Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, outputError(err, dir)
	}
	writers := []struct {
		name  string
		write func(io.Writer, *Report) error
	}{
		{ReportFile, WriteJSON},
		{ConfusionCSV, WriteConfusionCSV},
		{ConfusionPNG, WriteHeatmap},
	}

	paths := make([]string, 0, len(writers))
	for _, w := range writers {
		path := filepath.Join(dir, w.name)
		f, err := os.Create(path)
		if err != nil {
			return nil, outputError(err, path)
		}
		err = w.write(f, r)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, outputError(err, path)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteConfusionCSV writes the confusion matrix with a header row and the
// true class in the first column.
func WriteConfusionCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"true\\predicted"}, r.Classes...)); err != nil {
		return err
	}
	for i, row := range r.Confusion {
		rec := make([]string, 0, len(row)+1)
		rec = append(rec, r.Classes[i])
		for _, v := range row {
			rec = append(rec, strconv.Itoa(v))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteHeatmap draws the row-normalized confusion matrix as a PNG: one
// square per cell, white for 0 through dark blue for 1.
func WriteHeatmap(w io.Writer, r *Report) error {
	n := len(r.Classes)
	side := 2*heatmapMargin + n*heatmapCell
	img := image.NewRGBA(image.Rect(0, 0, side, side))
	for y := range side {
		for x := range side {
			img.Set(x, y, color.White)
		}
	}

	for i, row := range r.Confusion {
		total := 0
		for _, v := range row {
			total += v
		}
		for j, v := range row {
			c := heat(ratio(v, total))
			x0 := heatmapMargin + j*heatmapCell
			y0 := heatmapMargin + i*heatmapCell
			for y := y0; y < y0+heatmapCell-1; y++ {
				for x := x0; x < x0+heatmapCell-1; x++ {
					img.Set(x, y, c)
				}
			}
		}
	}
	return png.Encode(w, img)
}

// heat maps v in [0, 1] from white to dark blue.
func heat(v float64) color.RGBA {
	lerp := func(from, to uint8) uint8 {
		return uint8(float64(from) + (float64(to)-float64(from))*v)
	}
	return color.RGBA{R: lerp(255, 8), G: lerp(255, 48), B: lerp(255, 107), A: 255}
}

func outputError(err error, path string) error {
	return errors.New(err).
		Component("evaluate").
		Category(errors.CategoryFileIO).
		FileContext(path, 0).
		Build()
}
