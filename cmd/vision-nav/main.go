package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	visionnav "github.com/menta2k/vision-nav"
	"github.com/menta2k/vision-nav/internal/api"
	"github.com/menta2k/vision-nav/internal/config"
	"github.com/menta2k/vision-nav/internal/monitoring"
	"github.com/menta2k/vision-nav/internal/utils"
	"github.com/menta2k/vision-nav/pkg/types"
)

// fileReport is printed for every image processed with -detect
type fileReport struct {
	File       string            `json:"file"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	Detections []types.Detection `json:"detections"`
	Annotated  string            `json:"annotated,omitempty"`
	Error      string            `json:"error,omitempty"`
}

func main() {
	var configPath, listen, backend, url, model, logLevel, logFormat string
	var detect, outDir, outFmt, writeConfig string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default "+config.GetConfigPath()+" when present)")
	flag.StringVar(&listen, "listen", "", "HTTP listen address (default :5000)")
	flag.StringVar(&backend, "backend", "", "detection backend: yolo, ollama or llamacpp")
	flag.StringVar(&url, "url", "", "backend URL (defaults: yolo=http://localhost:5001, ollama=http://localhost:11434, llamacpp=http://localhost:8080)")
	flag.StringVar(&model, "model", "", "model name passed to the backend")
	flag.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flag.StringVar(&logFormat, "log-format", "", "log format: text or json")

	flag.StringVar(&detect, "detect", "", "run detection on an image file or directory, print JSON and exit")
	flag.StringVar(&outDir, "out", "", "with -detect: write annotated overlays to this directory")
	flag.StringVar(&outFmt, "outfmt", "jpg", "annotated overlay format: jpg|png|webp")
	flag.StringVar(&writeConfig, "write-config", "", "write the effective configuration to a file and exit")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")

	flag.Parse()

	if showVersion {
		fmt.Println("vision-nav", visionnav.GetVersion())
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		log.Fatal(err)
	}

	// Explicit flags win over file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Server.Listen = listen
		case "backend":
			cfg.Detection.Backend = backend
		case "url":
			cfg.Detection.URL = url
		case "model":
			cfg.Detection.Model = model
		case "log-level":
			cfg.Logging.Level = logLevel
		case "log-format":
			cfg.Logging.Format = logFormat
		}
	})

	if err := monitoring.Configure(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		log.Fatal(err)
	}

	if writeConfig != "" {
		if err := cfg.SaveToFile(writeConfig); err != nil {
			log.Fatal(err)
		}
		monitoring.Logf("wrote %s", writeConfig)
		return
	}

	assistant, err := visionnav.NewFromConfig(cfg)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if detect != "" {
		if err := runDetect(ctx, assistant, detect, outDir, outFmt); err != nil {
			log.Fatal(err)
		}
		return
	}

	info := assistant.ModelInfo()
	monitoring.Logf("vision-nav %s using %s backend (model %s)", visionnav.Version, info.Backend, info.Model)
	if err := assistant.Ping(ctx); err != nil {
		monitoring.Logger.Warnf("detection backend not reachable yet: %v", err)
	}

	if err := api.NewServer(assistant, cfg.Server).Run(ctx); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	if def := config.GetConfigPath(); utils.FileExists(def) {
		return config.LoadFromFile(def)
	}
	return config.Default(), nil
}

func runDetect(ctx context.Context, a *visionnav.Assistant, path, outDir, outFmt string) error {
	var files []string
	switch {
	case utils.DirExists(path):
		var err error
		if files, err = utils.ListImageFiles(path); err != nil {
			return err
		}
	case utils.FileExists(path) && utils.IsImageFile(path):
		files = []string{path}
	default:
		return fmt.Errorf("%s is not an image file or directory", path)
	}

	if outDir != "" {
		if err := utils.EnsureDir(outDir); err != nil {
			return err
		}
	}

	reports := make([]fileReport, 0, len(files))
	for _, f := range files {
		reports = append(reports, detectFile(ctx, a, f, outDir, outFmt))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}

func detectFile(ctx context.Context, a *visionnav.Assistant, path, outDir, outFmt string) fileReport {
	rep := fileReport{File: path, Detections: []types.Detection{}}

	data, err := os.ReadFile(path)
	if err != nil {
		rep.Error = err.Error()
		return rep
	}
	img, _, err := a.Processor().Decode(data)
	if err != nil {
		rep.Error = err.Error()
		return rep
	}

	report, err := a.DetectImage(ctx, img)
	if err != nil {
		rep.Error = err.Error()
		return rep
	}
	rep.Width, rep.Height, rep.Detections = report.ImageWidth, report.ImageHeight, report.Detections

	for _, d := range report.Detections {
		monitoring.Logger.WithFields(logrus.Fields{
			"file":       filepath.Base(path),
			"label":      d.Label,
			"distance":   d.Distance,
			"direction":  d.Direction,
			"priority":   d.Priority,
			"confidence": d.Confidence,
		}).Info("detection")
	}

	if outDir != "" {
		overlay := a.Processor().CreateDebugOverlay(img, report.Detections)
		encoded, err := a.Processor().Encode(overlay, outFmt, 90)
		if err != nil {
			monitoring.Logger.Errorf("overlay for %s failed: %v", path, err)
			return rep
		}
		out := utils.GenerateOutputFilename(path, outDir, "", "_annotated", outFmt)
		if err := os.WriteFile(out, encoded, 0o644); err != nil {
			monitoring.Logger.Errorf("save %s failed: %v", out, err)
			return rep
		}
		rep.Annotated = out
	}
	return rep
}
