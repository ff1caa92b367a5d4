package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/robin-collins/arecordd/internal/analyze"
	"github.com/robin-collins/arecordd/internal/config"
	"github.com/robin-collins/arecordd/internal/metadata"
	"github.com/robin-collins/arecordd/internal/recommend"
	"github.com/robin-collins/arecordd/internal/store"
)

var version = "1.0.0"

// CLI defines the command-line interface.
type CLI struct {
	Config   string `short:"c" default:"configs/config.yaml" help:"Path to configuration file"`
	Database string `short:"d" help:"Database path (overrides the configuration file)"`
	Version  bool   `short:"v" help:"Show version information"`

	Query     QueryCmd     `cmd:"" help:"Export telemetry samples with active tags as CSV"`
	Stats     StatsCmd     `cmd:"" help:"Show aggregate telemetry statistics"`
	Visualize VisualizeCmd `cmd:"" help:"Render the RMS timeline as a chart"`
	Cleanup   CleanupCmd   `cmd:"" help:"Delete telemetry older than a retention horizon"`
	Recommend RecommendCmd `cmd:"" help:"Suggest tuning parameters from collected telemetry"`
}

// appContext carries the opened store into command Run methods.
type appContext struct {
	store *store.Store
	now   time.Time
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("vadctl"),
		kong.Description("Analysis tools for collected audio telemetry"),
		kong.UsageOnError(),
	)

	if cli.Version {
		fmt.Printf("vadctl %s\n", version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	dbPath := cli.Database
	if dbPath == "" {
		cfg, _, err := config.Load(cli.Config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			fmt.Fprintln(os.Stderr, "Use --database to point directly at a telemetry database.")
			os.Exit(1)
		}
		dbPath = cfg.Database.Path
	}

	db, err := store.Open(dbPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := ctx.Run(&appContext{store: db, now: time.Now()}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// timeRange parses optional start/end arguments shared by several
// commands.
func timeRange(start, end string, now time.Time) (*time.Time, *time.Time, error) {
	var startT, endT *time.Time

	if start != "" {
		t, err := analyze.ParseTime(start, now)
		if err != nil {
			return nil, nil, fmt.Errorf("start: %w", err)
		}
		startT = &t
	}

	if end != "" {
		t, err := analyze.ParseTime(end, now)
		if err != nil {
			return nil, nil, fmt.Errorf("end: %w", err)
		}
		endT = &t
	}

	if startT != nil && endT != nil && endT.Before(*startT) {
		return nil, nil, fmt.Errorf("end %s is before start %s", end, start)
	}

	return startT, endT, nil
}

// QueryCmd exports samples as CSV.
type QueryCmd struct {
	Start  string `help:"Range start: RFC 3339 or relative (-2h, -30m, -1d)"`
	End    string `help:"Range end: RFC 3339 or relative"`
	Tag    string `help:"Only samples where this tag was active"`
	Limit  int    `help:"Maximum number of samples"`
	Output string `short:"o" default:"-" help:"Output file, - for stdout"`
}

func (q *QueryCmd) Run(app *appContext) error {
	start, end, err := timeRange(q.Start, q.End, app.now)
	if err != nil {
		return err
	}

	var tag metadata.TagType
	if q.Tag != "" {
		tag = metadata.TagType(q.Tag)
		if !tag.Valid() {
			return fmt.Errorf("unknown tag %q (known: %s)", q.Tag, knownTags())
		}
	}

	samples, err := app.store.MetricsWithTags(start, end)
	if err != nil {
		return err
	}

	if tag != "" {
		filtered := samples[:0]
		for i := range samples {
			for _, t := range samples[i].ActiveTags {
				if t == tag {
					filtered = append(filtered, samples[i])
					break
				}
			}
		}
		samples = filtered
	}

	if q.Limit > 0 && len(samples) > q.Limit {
		samples = samples[:q.Limit]
	}

	out := os.Stdout
	if q.Output != "-" {
		f, err := os.Create(q.Output)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := analyze.ExportCSV(out, samples); err != nil {
		return err
	}

	if q.Output != "-" {
		fmt.Printf("Exported %d samples to %s\n", len(samples), q.Output)
	}
	return nil
}

// StatsCmd prints aggregate statistics.
type StatsCmd struct{}

func (s *StatsCmd) Run(app *appContext) error {
	stats, err := app.store.Statistics()
	if err != nil {
		return err
	}

	fmt.Print(analyze.FormatStatistics(stats))
	return nil
}

// VisualizeCmd renders the RMS timeline chart.
type VisualizeCmd struct {
	Start  string `help:"Range start: RFC 3339 or relative (-2h, -30m, -1d)"`
	End    string `help:"Range end: RFC 3339 or relative"`
	Output string `short:"o" default:"vad_analysis.png" help:"Chart output file"`
}

func (v *VisualizeCmd) Run(app *appContext) error {
	start, end, err := timeRange(v.Start, v.End, app.now)
	if err != nil {
		return err
	}

	samples, err := app.store.MetricsWithTags(start, end)
	if err != nil {
		return err
	}

	if err := analyze.RenderChart(samples, v.Output); err != nil {
		return err
	}

	fmt.Printf("Chart written to %s (%d samples)\n", v.Output, len(samples))
	return nil
}

// CleanupCmd deletes old telemetry.
type CleanupCmd struct {
	OlderThan int  `required:"" help:"Delete rows older than this many days"`
	Yes       bool `help:"Skip the confirmation prompt"`
}

func (c *CleanupCmd) Run(app *appContext) error {
	if !c.Yes {
		fmt.Printf("Delete all telemetry older than %d days? [y/N]: ", c.OlderThan)
		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	metricsDeleted, eventsDeleted, err := app.store.Cleanup(c.OlderThan, app.now)
	if err != nil {
		return err
	}

	fmt.Printf("Deleted %d metric samples and %d tag events.\n", metricsDeleted, eventsDeleted)
	return nil
}

// RecommendCmd derives tuning suggestions.
type RecommendCmd struct {
	Start string `help:"Range start: RFC 3339 or relative (-2h, -30m, -1d)"`
	End   string `help:"Range end: RFC 3339 or relative"`
}

func (r *RecommendCmd) Run(app *appContext) error {
	start, end, err := timeRange(r.Start, r.End, app.now)
	if err != nil {
		return err
	}

	samples, err := app.store.MetricsWithTags(start, end)
	if err != nil {
		return err
	}

	recs := recommend.Analyze(samples)
	fmt.Print(analyze.FormatRecommendations(recs))
	return nil
}

func knownTags() string {
	names := make([]string, 0, len(metadata.TagTypes))
	for _, t := range metadata.TagTypes {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}
