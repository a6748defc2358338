package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/itohio/mechtester/pkg/chamber"
	"github.com/itohio/mechtester/pkg/config"
	"github.com/itohio/mechtester/pkg/logger"
	"github.com/itohio/mechtester/pkg/report"
	"github.com/itohio/mechtester/pkg/session"
	"github.com/itohio/mechtester/pkg/telemetry"
	"go.uber.org/zap"
)

func main() {
	var (
		portFlag   = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag   = flag.Bool("mock", false, "Use simulated chamber instead of serial port")
		nameFlag   = flag.String("name", "", "Test name override")
		levelFlag  = flag.String("log-level", "", "Diagnostic log level override (debug, info, warn, error)")
		listFlag   = flag.Bool("list", false, "List serial ports and exit")
	)
	flag.Parse()

	if *listFlag {
		listPorts()
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *nameFlag != "" {
		cfg.Session.Name = *nameFlag
	}
	if *levelFlag != "" {
		cfg.Logging.Level = *levelFlag
	}
	if *mockFlag {
		cfg.Mock.Enabled = true
	}

	lg := logger.New(cfg.Logging.Level)
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Errorw("test failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, lg *zap.SugaredLogger) error {
	var dev chamber.Device
	if cfg.Mock.Enabled {
		lg.Info("using simulated chamber")
		dev = chamber.NewMock(&cfg.Mock, lg.Named("mock"))
	} else {
		lg.Infow("using serial chamber", "port", cfg.Serial.Port, "baud", cfg.Serial.BaudRate)
		dev = chamber.New(cfg.Serial.Port, cfg.Serial.BaudRate, chamber.DefaultBufferSize, lg.Named("serial"))
	}

	opts := session.OptionsFromConfig(cfg)
	opts.Log = lg
	s, err := session.New(ctx, dev, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Shutdown(cfg.Script.DryoutFans); err != nil {
			lg.Warnw("shutdown", "err", err)
		}
	}()

	s.OnReading(printReading)

	if err := runScript(ctx, s, cfg.Script); err != nil {
		return err
	}

	if cfg.Report.Enabled {
		return writeReports(s, cfg.Report, lg)
	}
	return nil
}

func printReading(r telemetry.Reading) {
	var b strings.Builder
	fmt.Fprintf(&b, "%8.2fs ", r.Elapsed)
	for _, t := range r.Temperatures {
		fmt.Fprintf(&b, " %6.2f°C", t)
	}
	fmt.Fprintf(&b, "  %5.1f%%RH", r.Humidity)
	fmt.Println(b.String())
}

func writeReports(s *session.Session, cfg config.ReportConfig, lg *zap.SugaredLogger) error {
	base := strings.TrimSuffix(s.LogPath(), ".log")
	if base == "" {
		return nil
	}

	summaryPath := base + "_summary.yaml"
	if err := writeFile(summaryPath, func(f *os.File) error {
		return report.WriteYAML(f, report.Build(s))
	}); err != nil {
		return err
	}

	csvPath := base + "_telemetry.csv"
	if err := writeFile(csvPath, func(f *os.File) error {
		return report.WriteCSV(f, s, cfg.MaxPoints)
	}); err != nil {
		return err
	}

	lg.Infow("saved reports", "summary", summaryPath, "telemetry", csvPath)
	return nil
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func listPorts() {
	ports, err := chamber.Ports()
	if err != nil {
		log.Fatalf("Failed to list serial ports: %v", err)
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return
	}
	for _, port := range ports {
		if port.Description != "" && port.Description != port.Name {
			fmt.Printf("%s (%s)\n", port.Name, port.Description)
		} else {
			fmt.Println(port.Name)
		}
	}
}
