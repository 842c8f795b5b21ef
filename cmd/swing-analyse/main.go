// Command swing-analyse runs the swing analysis over an exported CSV of
// sensor packets and writes plots, peak pairing tables and the report.
package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/swing.report/internal/config"
	"github.com/banshee-data/swing.report/internal/ingest"
	"github.com/banshee-data/swing.report/internal/monitor"
	"github.com/banshee-data/swing.report/internal/security"
	"github.com/banshee-data/swing.report/internal/swing"
	"github.com/banshee-data/swing.report/internal/units"
)

// Output file names inside the output directory.
const (
	accPlotFile    = "acc_magnitudes.png"
	gyroPlotFile   = "gyro_magnitudes.png"
	pairReportFile = "peak_pair_report.csv"
	summaryFile    = "peak_summary.csv"
	reportFile     = "report.json"
)

// Config holds the command line options.
type Config struct {
	InputFile  string
	OutputDir  string
	ConfigPath string
	Timezone   string
	SessionID  string
	Locale     string
}

// Result lists what a run produced.
type Result struct {
	Readings int
	Skipped  int
	Roles    []swing.SensorRole
	Files    []string
	Report   *swing.AnalysisReport
	// AnalysisError is set when the fallback report was written.
	AnalysisError error
}

// pairRow is one line of the peak pair report.
type pairRow struct {
	Role     swing.SensorRole
	AccPeak  int
	AccValue float64
	swing.PeakPair
	GyroValue float64
}

func main() {
	cfg := parseFlags()
	if cfg.InputFile == "" {
		fmt.Fprintln(os.Stderr, "Error: input CSV is required")
		flag.Usage()
		os.Exit(1)
	}

	res, err := run(cfg)
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}
	printSummary(res)
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.InputFile, "input", "", "CSV with sensor_type, timestamp and data columns (required)")
	flag.StringVar(&cfg.OutputDir, "output", "sensor_analysis_outputs", "Output directory, under the working or temp directory")
	flag.StringVar(&cfg.ConfigPath, "config", "", "Analysis config JSON (defaults apply when empty)")
	flag.StringVar(&cfg.Timezone, "timezone", "", "Timezone of packed HHMMSSmmm timestamps, overrides the config")
	flag.StringVar(&cfg.SessionID, "session", "", "Session id stamped on the report (defaults to the input file name)")
	flag.StringVar(&cfg.Locale, "locale", "", "Report language, zh or en, overrides the config")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -input capture.csv [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Offline swing analysis of an exported sensor capture. Each CSV row holds one\n")
		fmt.Fprintf(os.Stderr, "packet; the data column is JSON with acc, gyro and angle vectors. When the\n")
		fmt.Fprintf(os.Stderr, "sensor_type or timestamp columns are missing they are read from the JSON.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nOutputs: %s, %s, %s, %s, %s\n",
			accPlotFile, gyroPlotFile, pairReportFile, summaryFile, reportFile)
	}

	flag.Parse()
	return cfg
}

func loadConfig(cfg Config) (*config.AnalysisConfig, error) {
	ac := config.DefaultAnalysisConfig()
	if cfg.ConfigPath != "" {
		loaded, err := config.LoadAnalysisConfig(cfg.ConfigPath)
		if err != nil {
			return nil, err
		}
		ac = loaded
	}
	if cfg.Timezone != "" {
		if !units.IsTimezoneValid(cfg.Timezone) {
			return nil, fmt.Errorf("invalid timezone %q", cfg.Timezone)
		}
		tz := cfg.Timezone
		ac.Timezone = &tz
	}
	if cfg.Locale != "" {
		locale := cfg.Locale
		ac.Locale = &locale
		if err := ac.Validate(); err != nil {
			return nil, err
		}
	}
	return ac, nil
}

func run(cfg Config) (*Result, error) {
	if err := security.ValidateExportPath(cfg.OutputDir); err != nil {
		return nil, fmt.Errorf("invalid output directory: %w", err)
	}
	ac, err := loadConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	f, err := os.Open(cfg.InputFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := ingest.Decoder{AccUnit: ac.GetAccUnit(), GyroUnit: ac.GetGyroUnit()}
	readings, skipped, err := readReadings(f, dec)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", cfg.InputFile, err)
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	id := cfg.SessionID
	if id == "" {
		base := filepath.Base(cfg.InputFile)
		id = security.SanitizeFilename(strings.TrimSuffix(base, filepath.Ext(base)))
	}
	session := swing.Session{ID: id, Location: ac.GetLocation(), Readings: readings}
	opts := ac.AnalyzerOptions()
	analyzer := swing.NewAnalyzer(opts)

	res := &Result{Readings: len(readings), Skipped: skipped}
	res.Report, res.AnalysisError = analyzer.AnalyzeSessionWithFallback(session)

	alignment, err := analyzer.Align(session)
	if err != nil && !errors.Is(err, swing.ErrNoSensorData) {
		return nil, err
	}
	fs := opts.Delay.SampleRate
	if fs <= 0 {
		fs = swing.DefaultSampleRate
	}
	dist := swing.PhaseDistance(fs)

	for _, role := range swing.Roles {
		if as, ok := alignment.Series[role]; ok && as.Len() > 0 {
			res.Roles = append(res.Roles, role)
		}
	}
	if len(res.Roles) > 0 {
		for _, out := range []struct {
			name string
			q    monitor.Quantity
		}{{accPlotFile, monitor.Acc}, {gyroPlotFile, monitor.Gyro}} {
			path := filepath.Join(cfg.OutputDir, out.name)
			if err := monitor.SavePNG(path, alignment, out.q, dist); err != nil {
				return nil, fmt.Errorf("failed to plot %s magnitudes: %w", out.q, err)
			}
			res.Files = append(res.Files, path)
		}
	}

	rows, summaries := pairPeaks(alignment, res.Roles, dist)
	pairPath := filepath.Join(cfg.OutputDir, pairReportFile)
	if err := writePairReport(pairPath, rows); err != nil {
		return nil, fmt.Errorf("failed to write pair report: %w", err)
	}
	summaryPath := filepath.Join(cfg.OutputDir, summaryFile)
	if err := writeSummary(summaryPath, res.Roles, summaries); err != nil {
		return nil, fmt.Errorf("failed to write peak summary: %w", err)
	}
	reportPath := filepath.Join(cfg.OutputDir, reportFile)
	data, err := json.MarshalIndent(res.Report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("JSON marshal: %w", err)
	}
	if err := os.WriteFile(reportPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write JSON: %w", err)
	}
	res.Files = append(res.Files, pairPath, summaryPath, reportPath)
	return res, nil
}

// readReadings decodes one reading per CSV row. The header must name a
// data column; sensor_type and timestamp columns are optional and win
// over the same keys inside the JSON. Rows that fail to decode are
// counted and skipped.
func readReadings(r io.Reader, dec ingest.Decoder) ([]swing.SensorReading, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, 0, errors.New("empty CSV")
		}
		return nil, 0, err
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	dataCol, ok := col["data"]
	if !ok {
		return nil, 0, fmt.Errorf("missing data column in header %v", header)
	}
	field := func(rec []string, name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	var (
		readings []swing.SensorReading
		skipped  int
		line     = 1
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, 0, err
		}
		if dataCol >= len(rec) || strings.TrimSpace(rec[dataCol]) == "" {
			skipped++
			continue
		}
		data := []byte(rec[dataCol])

		env, err := dec.Decode(withDefaults(data, field(rec, "sensor_type"), field(rec, "timestamp")))
		if err != nil {
			log.Printf("line %d: skipped: %v", line, err)
			skipped++
			continue
		}
		readings = append(readings, env.Reading)
	}
	if len(readings) == 0 {
		return nil, skipped, swing.ErrNoSensorData
	}
	return readings, skipped, nil
}

// withDefaults overlays the CSV sensor_type and timestamp columns onto the
// JSON packet. The packet is returned unchanged when it is not an object.
func withDefaults(data []byte, sensorType, timestamp string) []byte {
	if sensorType == "" && timestamp == "" {
		return data
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return data
	}
	if sensorType != "" {
		obj["sensor_type"], _ = json.Marshal(sensorType)
	}
	if timestamp != "" {
		obj["timestamp"], _ = json.Marshal(timestamp)
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return data
	}
	return out
}

// pairPeaks pairs every accelerometer peak of each role with the nearest
// gyroscope peak on the aligned time axis.
func pairPeaks(a swing.Alignment, roles []swing.SensorRole, minDistance int) ([]pairRow, map[swing.SensorRole]swing.PairSummary) {
	var rows []pairRow
	summaries := make(map[swing.SensorRole]swing.PairSummary, len(roles))
	for _, role := range roles {
		as := a.Series[role]
		accPeaks := swing.DetectPeaks(as.AccMagnitudes, nil, minDistance)
		gyroPeaks := swing.DetectPeaks(as.GyroMagnitudes, nil, minDistance)
		pairs := swing.PairPeaks(swing.PeakTimes(as.Times, accPeaks), swing.PeakTimes(as.Times, gyroPeaks))
		summaries[role] = swing.SummarizePairs(pairs)

		for _, p := range pairs {
			row := pairRow{Role: role, AccPeak: accPeaks.Indices[p.A], AccValue: as.AccMagnitudes[accPeaks.Indices[p.A]], PeakPair: p}
			if p.Matched {
				row.GyroValue = as.GyroMagnitudes[gyroPeaks.Indices[p.B]]
			}
			rows = append(rows, row)
		}
	}
	return rows, summaries
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func writePairReport(path string, rows []pairRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"sensor_type", "acc_peak_idx", "acc_peak_time", "acc_peak_value",
		"gyro_peak_time", "gyro_peak_value", "time_diff_acc_minus_gyro_s",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		gyroTime, gyroValue, dt := "", "", ""
		if r.Matched {
			gyroTime, gyroValue, dt = formatFloat(r.BTime), formatFloat(r.GyroValue), formatFloat(r.DT)
		}
		row := []string{
			string(r.Role),
			strconv.Itoa(r.AccPeak),
			formatFloat(r.ATime),
			formatFloat(r.AccValue),
			gyroTime,
			gyroValue,
			dt,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func writeSummary(path string, roles []swing.SensorRole, summaries map[swing.SensorRole]swing.PairSummary) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"sensor_type", "n_pairs", "mean_dt_s", "median_dt_s"}); err != nil {
		return err
	}
	for _, role := range roles {
		s := summaries[role]
		mean, median := "", ""
		if s.MeanDT != nil {
			mean = formatFloat(*s.MeanDT)
		}
		if s.MedianDT != nil {
			median = formatFloat(*s.MedianDT)
		}
		if err := w.Write([]string{string(role), strconv.Itoa(s.Pairs), mean, median}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func printSummary(res *Result) {
	fmt.Println("=============================================")
	fmt.Printf("Readings: %d (%d skipped)\n", res.Readings, res.Skipped)
	fmt.Printf("Roles:    %v\n", res.Roles)
	if res.AnalysisError != nil {
		fmt.Printf("Analysis failed, fallback report written: %v\n", res.AnalysisError)
	} else {
		d := res.Report.PhaseDelay
		fmt.Printf("Delays:   waist->shoulder %.3fs, shoulder->wrist %.3fs\n", d.WaistToShoulder, d.ShoulderToWrist)
		fmt.Printf("Energy:   %.2f\n", res.Report.EnergyRatio)
	}
	for _, f := range res.Files {
		fmt.Printf("Wrote %s\n", f)
	}
	fmt.Println("=============================================")
}
