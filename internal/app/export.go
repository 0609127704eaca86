package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"pricebot/internal/market"
	"pricebot/internal/storage"
)

// Export renders a token's persisted history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if err := market.ValidateToken(opts.Token, a.Config.Tokens); err != nil {
		return err
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	history, err := a.newFileStore().LoadPriceData(ctx, opts.Token)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		a.Logger.Info().Str("token", opts.Token).Msg("no price history to export")
		fmt.Fprintf(a.Out, "📊 No price history found for %s\n", opts.Token)
		return nil
	}

	points := downsample(history, opts.MaxPoints)
	a.Logger.Info().
		Str("token", opts.Token).
		Int("total", len(history)).
		Int("exported", len(points)).
		Msg("exporting price history")

	if opts.CSVPath != "" {
		if err := a.writeCSV(opts.CSVPath, opts.Token, points); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		fmt.Fprintf(a.Out, "Wrote %d rows to %s\n", len(points), opts.CSVPath)
	}

	if opts.PNGPath != "" {
		if len(points) < 2 {
			return errors.New("at least two price points are required to draw a chart")
		}
		if err := a.writePNG(opts.PNGPath, opts.Token, points); err != nil {
			return fmt.Errorf("write png: %w", err)
		}
		fmt.Fprintf(a.Out, "Wrote chart to %s\n", opts.PNGPath)
	}

	return nil
}

func downsample(records []storage.PriceRecord, max int) []storage.PriceRecord {
	if max <= 1 || len(records) <= max {
		return records
	}

	result := make([]storage.PriceRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func (a *App) writeCSV(path, token string, records []storage.PriceRecord) error {
	if err := a.ensureDir(path); err != nil {
		return err
	}

	file, err := a.Fs.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"timestamp", "token", "price_usd"}); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{rec.Timestamp.UTC().Format(time.RFC3339), token, rec.Price.String()}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func (a *App) writePNG(path, token string, records []storage.PriceRecord) error {
	if err := a.ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(records))
	y := make([]float64, len(records))
	for i, rec := range records {
		x[i] = rec.Timestamp
		y[i] = rec.Price.InexactFloat64()
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s price (USD)", token),
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "USD",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    token,
				XValues: x,
				YValues: y,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := a.Fs.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func (a *App) ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return a.Fs.MkdirAll(dir, 0o755)
}
