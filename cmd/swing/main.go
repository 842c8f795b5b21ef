package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/swing.report/internal/api"
	"github.com/banshee-data/swing.report/internal/config"
	"github.com/banshee-data/swing.report/internal/db"
	"github.com/banshee-data/swing.report/internal/health"
	"github.com/banshee-data/swing.report/internal/ingest"
	"github.com/banshee-data/swing.report/internal/serialmux"
	"github.com/banshee-data/swing.report/internal/swing"
	"github.com/banshee-data/swing.report/internal/units"
	"github.com/banshee-data/swing.report/internal/version"
)

var (
	listen        = flag.String("listen", ":8080", "HTTP listen address")
	dbPath        = flag.String("db-path", "swing_data.db", "path to the sqlite database")
	configPath    = flag.String("config", "", "analysis config JSON (defaults apply when empty)")
	port          = flag.String("port", "/dev/ttyUSB0", "receiver hub serial port (ignored in dev mode)")
	baud          = flag.Int("baud", serialmux.DefaultBaudRate, "receiver hub baud rate")
	disableSerial = flag.Bool("disable-serial", false, "run without a receiver hub; readings arrive over HTTP or MQTT only")
	devMode       = flag.Bool("dev", false, "feed the server with simulated or replayed hub lines instead of a serial port")
	fixtures      = flag.String("fixtures", "", "in dev mode, replay hub lines from this file instead of simulating swings")
	devInterval   = flag.Duration("dev-interval", 5*time.Millisecond, "in dev mode, delay between generated lines")
	mqttBroker    = flag.String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883 (disabled when empty)")
	mqttTopic     = flag.String("mqtt-topic", ingest.DefaultMQTTTopic, "MQTT topic filter for sensor packets")
	grpcListen    = flag.String("grpc-listen", ":50051", "gRPC health listen address (disabled when empty)")
	timezone      = flag.String("timezone", "", "default session timezone, overrides the config")
	versionFlag   = flag.Bool("version", false, "print the version and exit")
)

// loadConfig reads the analysis config and applies flag overrides.
func loadConfig(path, tz string) (*config.AnalysisConfig, error) {
	cfg := config.DefaultAnalysisConfig()
	if path != "" {
		loaded, err := config.LoadAnalysisConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if tz != "" {
		if !units.IsTimezoneValid(tz) {
			return nil, fmt.Errorf("invalid timezone %q", tz)
		}
		cfg.Timezone = &tz
	}
	return cfg, nil
}

// readFixtures returns the non-empty lines of a hub capture.
func readFixtures(path string) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixtures file: %w", err)
	}
	var lines [][]byte
	for _, line := range bytes.Split(data, []byte("\n")) {
		if line = bytes.TrimSpace(line); len(line) > 0 {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("fixtures file %s has no lines", path)
	}
	return lines, nil
}

// openHub picks the receiver hub implementation for the flags. The real
// port is wrapped in a SerialPortManager so it can be reloaded over the
// API.
func openHub(cfg *config.AnalysisConfig) (serialmux.SerialMuxInterface, error) {
	switch {
	case *disableSerial:
		return serialmux.NewDisabledSerialMux(), nil
	case *devMode && *fixtures != "":
		lines, err := readFixtures(*fixtures)
		if err != nil {
			return nil, err
		}
		return serialmux.NewReplaySerialMux(lines, *devInterval), nil
	case *devMode:
		sim := ingest.NewSynthetic(cfg.GetLocation())
		return serialmux.NewGeneratorSerialMux(*devInterval, sim.Line), nil
	}

	opts := serialmux.PortOptions{BaudRate: *baud}
	factory := func(path string, opts serialmux.PortOptions) (serialmux.SerialMuxInterface, error) {
		m, err := serialmux.NewRealSerialMux(path, opts)
		if err != nil {
			return nil, err
		}
		m.Location = cfg.GetLocation()
		m.SampleRateHz = int(cfg.GetSampleRateHz())
		return m, nil
	}
	initial, err := factory(*port, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open receiver hub on %s: %w", *port, err)
	}
	normalized, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	snapshot := api.SerialConfigSnapshot{PortPath: *port, Source: "flag", Options: normalized}
	return api.NewSerialPortManager(initial, snapshot, factory), nil
}

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.String())
		return
	}
	if *listen == "" {
		log.Fatal("listen address is required")
	}
	log.Printf("swing report %s", version.String())

	cfg, err := loadConfig(*configPath, *timezone)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()

	hub, err := openHub(cfg)
	if err != nil {
		log.Fatalf("failed to create hub mux: %v", err)
	}
	defer hub.Close()
	if err := hub.Initialize(); err != nil {
		log.Fatalf("failed to initialize receiver hub: %v", err)
	}

	analyzer := swing.NewAnalyzer(cfg.AnalyzerOptions())
	worker := db.NewAnalysisWorker(database, analyzer, cfg.GetAnalysisInterval())

	store := ingest.Store{DB: database}
	ingester := ingest.New(store, store)
	ingester.Decoder = ingest.Decoder{AccUnit: cfg.GetAccUnit(), GyroUnit: cfg.GetGyroUnit()}
	ingester.RolloverThreshold = cfg.GetRolloverThreshold()

	hubState := serialmux.NewHubState()
	server := api.NewServer(hub, database, worker, ingester)
	server.Timezone = cfg.GetTimezone()
	server.HubState = hubState
	if err := server.LoadDevices(context.Background()); err != nil {
		log.Printf("failed to load registered devices: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker.Start(ctx)
	defer worker.Stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hub.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor receiver hub: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ingester.RunSerial(ctx, hub, hubState); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("serial ingest stopped: %v", err)
		}
		log.Print("serial ingest routine terminated")
	}()

	if *mqttBroker != "" {
		sub := ingest.NewMQTTSubscriber(*mqttBroker, ingester)
		sub.Topic = *mqttTopic
		if err := sub.Start(ctx); err != nil {
			log.Fatalf("failed to start MQTT subscriber: %v", err)
		}
		defer sub.Stop()
	}

	if *grpcListen != "" {
		hs := health.NewServer(10 * time.Second)
		hs.AddCheck("db", func(ctx context.Context) error { return database.PingContext(ctx) })
		hs.AddCheck("hub", func(context.Context) error {
			if mgr, ok := hub.(*api.SerialPortManager); ok && mgr.CurrentMux() == nil {
				return errors.New("receiver hub unavailable")
			}
			return nil
		})
		go func() {
			<-ctx.Done()
			hs.Stop()
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := hs.ListenAndServe(ctx, *grpcListen); err != nil {
				log.Printf("gRPC health server: %v", err)
			}
			log.Print("health routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := server.ServeMux()
		hub.AttachAdminRoutes(mux)
		database.AttachAdminRoutes(mux)

		srv := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")
		server.Live.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := srv.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("graceful shutdown complete")
}
