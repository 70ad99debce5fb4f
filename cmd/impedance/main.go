// Command impedance runs the respiratory analysis pipeline over a recorded
// capture or a live serial front-end and logs each analysis pass.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	ossignal "os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/banshee-data/impedance/internal/config"
	"github.com/banshee-data/impedance/internal/debugsink"
	"github.com/banshee-data/impedance/internal/monitoring"
	"github.com/banshee-data/impedance/internal/pipeline"
	"github.com/banshee-data/impedance/internal/security"
	"github.com/banshee-data/impedance/internal/serialmux"
	"github.com/banshee-data/impedance/internal/signal"
	"github.com/banshee-data/impedance/internal/source"
	"github.com/banshee-data/impedance/internal/version"
)

var (
	replayPath  = flag.String("replay", "", "Replay samples from a CSV capture (timestamp,value[,annotation])")
	savePath    = flag.String("save", "", "Record every incoming sample to this CSV file")
	serialPort  = flag.String("serial", "", "Read live samples from this serial device")
	baudRate    = flag.Int("baud", 0, "Serial baud rate (overrides the config file)")
	configPath  = flag.String("config", "", "Path to an analysis config JSON file")
	debugListen = flag.String("debug-listen", "", "Serve debug charts and status on this address, e.g. localhost:8081")
	plotDir     = flag.String("plots", "", "Write PNG plots of the debug series to this directory on exit")
	verbose     = flag.Bool("verbose", false, "Log every analysis pass")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if err := validateFlags(*replayPath, *serialPort); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}
	if err := validateOutputs(*savePath, *plotDir); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}
	monitoring.SetVerbose(*verbose)

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// validateFlags requires exactly one sample source.
func validateFlags(replay, serialDev string) error {
	switch {
	case replay == "" && serialDev == "":
		return errors.New("one of -replay or -serial is required")
	case replay != "" && serialDev != "":
		return errors.New("-replay and -serial are mutually exclusive")
	}
	return nil
}

// validateOutputs keeps captures and plots under the working directory or the
// system temp dir.
func validateOutputs(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := security.ValidateExportPath(p); err != nil {
			return fmt.Errorf("invalid output path: %w", err)
		}
	}
	return nil
}

func loadConfig(path string) (*config.AnalysisConfig, error) {
	if path == "" {
		return config.DefaultAnalysisConfig(), nil
	}
	return config.LoadAnalysisConfig(path)
}

func run() error {
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	rec, err := debugsink.NewRecorder(cfg.GetDebugRetention().Seconds())
	if err != nil {
		return err
	}
	proc, err := pipeline.NewProcessor(cfg.PipelineConfig(), rec)
	if err != nil {
		return err
	}
	log.Printf("%s: processor %s", version.String(), proc.ID())

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	httpMux := http.NewServeMux()

	var src source.Source
	if *replayPath != "" {
		replay, err := source.NewCSVReplay(*replayPath)
		if err != nil {
			return err
		}
		replay.Speed = cfg.GetReplaySpeed()
		src = replay
	} else {
		opts := cfg.GetSerial()
		if *baudRate > 0 {
			opts.BaudRate = *baudRate
		}
		mux, err := serialmux.NewRealSerialMux(*serialPort, opts)
		if err != nil {
			return fmt.Errorf("failed to open serial front-end: %w", err)
		}
		defer mux.Close()
		if err := mux.Initialize(cfg.SerialInitCommands...); err != nil {
			return fmt.Errorf("failed to initialise device: %w", err)
		}
		mux.AttachAdminRoutes(httpMux)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("failed to monitor serial port: %v", err)
			}
			// unblocks the serial source
			mux.Close()
			log.Print("monitor routine terminated")
		}()
		src = source.NewSerial(mux)
	}

	raw := make(chan signal.Sample, 256)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := src.Run(ctx, raw); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("sample source stopped: %v", err)
		}
	}()

	var samples <-chan signal.Sample = raw
	if *savePath != "" {
		capture, err := source.CreateCSVRecorder(*savePath)
		if err != nil {
			return err
		}
		defer capture.Close()
		samples = source.Tee(ctx, raw, capture)
	}

	var latest atomic.Pointer[pipeline.Result]
	if *debugListen != "" {
		debugsink.AttachDebugRoutes(httpMux, rec, func() interface{} {
			if r := latest.Load(); r != nil {
				return statusOf(*r)
			}
			return map[string]string{"state": "waiting"}
		})
		server := &http.Server{Addr: *debugListen, Handler: httpMux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("debug server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("debug server shutdown error: %v", err)
			}
		}()
		log.Printf("debug routes on http://%s/debug/", *debugListen)
	}

	err = pipeline.Run(ctx, proc, samples, func(r pipeline.Result) {
		latest.Store(&r)
		logResult(r)
	})
	stop()
	wg.Wait()

	if *plotDir != "" {
		if _, perr := rec.SavePlots(*plotDir); perr != nil {
			log.Printf("failed to save plots: %v", perr)
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("pipeline stopped: %w", err)
	}
	log.Printf("Graceful shutdown complete")
	return nil
}

type status struct {
	Timestamp        float64 `json:"timestamp"`
	State            string  `json:"state"`
	Outcome          string  `json:"outcome"`
	BreathsPerMinute float64 `json:"breaths_per_minute"`
	VAE              int     `json:"vae"`
	SQI              int     `json:"sqi"`
	Alarm            bool    `json:"alarm"`
	Cycles           int     `json:"cycles"`
}

func statusOf(r pipeline.Result) status {
	return status{
		Timestamp:        r.Timestamp,
		State:            r.State.String(),
		Outcome:          r.Detection.Outcome.String(),
		BreathsPerMinute: r.Detection.BreathsPerMinute(),
		VAE:              r.Score.VAE,
		SQI:              r.Score.SQI,
		Alarm:            r.Score.Alarm,
		Cycles:           r.HistoryLen,
	}
}

func logResult(r pipeline.Result) {
	if !r.Detection.IsRespiratory() {
		log.Printf("t=%.1fs %s (mean %.1f Ω)", r.Timestamp, r.Detection.Outcome, r.Detection.Mean)
		return
	}
	log.Printf("t=%.1fs RR=%.1f/min VAE=%d SQI=%d cycles=%d+%d",
		r.Timestamp, r.Detection.BreathsPerMinute(), r.Score.VAE, r.Score.SQI,
		r.HistoryLen-len(r.NewCycles), len(r.NewCycles))
}
