package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	greenview "github.com/greenview-analytics/greenview"
	"github.com/greenview-analytics/greenview/internal/metrics"
	"github.com/greenview-analytics/greenview/internal/utils"
	"github.com/greenview-analytics/greenview/pkg/coordinates"
)

func main() {
	var configPath, coordText, coordFile, lngCol, latCol string
	var accessKey, reportPath, format, logMode, metricsAddr string

	flag.StringVar(&configPath, "config", "", "path to YAML config file (optional)")
	flag.StringVar(&coordText, "coords", "", "inline coordinates, e.g. \"116.404,39.915;121.473,31.230\"")
	flag.StringVar(&coordFile, "file", "", "coordinate file: .txt (one pair per line), .csv or .xlsx")
	flag.StringVar(&lngCol, "lngcol", "lon", "longitude column name for tabular input")
	flag.StringVar(&latCol, "latcol", "lat", "latitude column name for tabular input")
	flag.StringVar(&accessKey, "ak", "", "imagery provider access key (overrides config)")
	flag.StringVar(&reportPath, "out", "", "report output path (overrides config)")
	flag.StringVar(&format, "format", "", "report format: xlsx|csv (overrides config)")
	flag.StringVar(&logMode, "logmode", "dev", "log mode: dev or release")
	flag.StringVar(&metricsAddr, "metrics", "", "address to serve Prometheus metrics on, e.g. :9090 (disabled when empty)")
	flag.Parse()

	if coordText == "" && coordFile == "" {
		log.Fatalf("usage: %s -coords \"lng,lat;...\" | -file coords.txt|.csv|.xlsx [-config config.yaml] [-ak KEY]",
			filepath.Base(os.Args[0]))
	}

	logger, err := utils.NewLogger(logMode)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg := greenview.DefaultConfig()
	if configPath != "" {
		cfg, err = greenview.LoadConfig(configPath)
		if err != nil {
			logger.Fatal("failed to load config", zap.Error(err))
		}
	}
	if accessKey != "" {
		cfg.Imagery.AccessKey = accessKey
	}
	if reportPath != "" {
		cfg.Output.ReportPath = reportPath
	}
	if format != "" {
		cfg.Output.Format = format
	}
	if cfg.Imagery.AccessKey == "" {
		logger.Fatal("imagery access key is required (set -ak or imagery.access_key)")
	}

	set, err := loadCoordinates(coordText, coordFile, lngCol, latCol)
	if err != nil {
		logger.Fatal("failed to read coordinates", zap.Error(err))
	}
	for _, e := range set.Errors {
		logger.Warn("coordinate rejected", zap.String("reason", e.Error()))
	}
	if set.Len() == 0 {
		logger.Fatal("no valid coordinates in input",
			zap.Int("rejected", len(set.Errors)))
	}
	logger.Info("coordinates accepted",
		zap.Int("accepted", set.Len()),
		zap.Int("rejected", len(set.Errors)))

	pipeline, err := greenview.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build pipeline", zap.Error(err))
	}

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			logger.Info("serving metrics", zap.String("addr", metricsAddr))
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := pipeline.NewSession(ctx, set.Coordinates)
	if err != nil {
		logger.Fatal("failed to create session", zap.Error(err))
	}

	// Drain progress events for console feedback; the pipeline never blocks
	// on this consumer.
	go func() {
		for ev := range sess.Progress() {
			fmt.Printf("[%d/%d] %s: %s\n", ev.Index+1, ev.Total, ev.Stage, ev.Status)
		}
	}()

	if err := sess.Run(ctx); err != nil {
		logger.Fatal("session failed", zap.Error(err))
	}
	if err := pipeline.ExportReport(sess.Store()); err != nil {
		logger.Fatal("report export failed", zap.Error(err))
	}

	summary := sess.Store().Summarize()
	fmt.Printf("\ndone: %d succeeded, %d failed", summary.Succeeded, summary.Failed)
	if summary.Succeeded > 0 {
		fmt.Printf(", mean GVI %.2f%%", summary.MeanGVI)
	}
	fmt.Printf("\nreport: %s\n", cfg.Output.ReportPath)
}

// loadCoordinates normalizes the three input variants (inline text, line
// file, tabular file) into one coordinate set.
func loadCoordinates(coordText, coordFile, lngCol, latCol string) (*coordinates.Set, error) {
	if coordText != "" {
		// Inline input uses ';' between pairs for shell friendliness.
		return coordinates.ParseText(strings.ReplaceAll(coordText, ";", "\n")), nil
	}

	switch strings.ToLower(filepath.Ext(coordFile)) {
	case ".xlsx":
		return coordinates.ParseXLSX(coordFile, lngCol, latCol)
	case ".csv":
		f, err := os.Open(coordFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return coordinates.ParseCSV(f, lngCol, latCol)
	default:
		data, err := os.ReadFile(coordFile)
		if err != nil {
			return nil, err
		}
		return coordinates.ParseText(string(data)), nil
	}
}
