package main

import (
	"encoding/csv"
	"encoding/json"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/swing.report/internal/ingest"
	"github.com/banshee-data/swing.report/internal/swing"
	"github.com/banshee-data/swing.report/internal/units"
)

// writeCapture writes a CSV of waist and wrist packets sampled at 200 Hz
// for three seconds. Gyro and acc magnitudes peak twice a second, the
// accelerometer 20ms after the gyroscope.
func writeCapture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := csv.NewWriter(f)
	require.NoError(t, w.Write([]string{"sensor_type", "timestamp", "data"}))
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := range 600 {
		at := start.Add(time.Duration(i) * 5 * time.Millisecond)
		sec := float64(i) / 200
		for _, role := range []string{"waist", "wrist"} {
			data, err := json.Marshal(map[string]any{
				"acc":   []float64{0, 0, 4 * math.Sin(2*math.Pi*(sec-0.02))},
				"gyro":  []float64{0, 0, 300 * math.Sin(2*math.Pi*sec)},
				"angle": []float64{30 * math.Sin(2*math.Pi*sec), 10, 5},
			})
			require.NoError(t, err)
			require.NoError(t, w.Write([]string{role, swing.EncodePacked(at), string(data)}))
		}
	}
	w.Flush()
	require.NoError(t, w.Error())
	return path
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRun(t *testing.T) {
	out := filepath.Join(t.TempDir(), "outputs")
	res, err := run(Config{InputFile: writeCapture(t), OutputDir: out, Locale: "en"})
	require.NoError(t, err)

	assert.Equal(t, 1200, res.Readings)
	assert.Zero(t, res.Skipped)
	assert.NoError(t, res.AnalysisError)
	assert.Equal(t, []swing.SensorRole{swing.RoleWaist, swing.RoleWrist}, res.Roles)
	require.NotNil(t, res.Report)
	assert.Equal(t, "capture", res.Report.SessionID)
	assert.False(t, res.Report.Fallback)

	for _, name := range []string{accPlotFile, gyroPlotFile} {
		f, err := os.Open(filepath.Join(out, name))
		require.NoError(t, err, name)
		_, err = png.Decode(f)
		f.Close()
		assert.NoError(t, err, name)
	}

	summary := readCSV(t, filepath.Join(out, summaryFile))
	require.Len(t, summary, 3)
	assert.Equal(t, []string{"sensor_type", "n_pairs", "mean_dt_s", "median_dt_s"}, summary[0])
	assert.Equal(t, "waist", summary[1][0])
	assert.Equal(t, "wrist", summary[2][0])
	assert.NotEqual(t, "0", summary[1][1])

	pairs := readCSV(t, filepath.Join(out, pairReportFile))
	require.Greater(t, len(pairs), 1)
	assert.Equal(t, "time_diff_acc_minus_gyro_s", pairs[0][6])
	rowsPerRole := map[string]int{}
	for _, row := range pairs[1:] {
		assert.Contains(t, []string{"waist", "wrist"}, row[0])
		rowsPerRole[row[0]]++
		if row[4] == "" {
			continue
		}
		accTime, err := strconv.ParseFloat(row[2], 64)
		require.NoError(t, err)
		gyroTime, err := strconv.ParseFloat(row[4], 64)
		require.NoError(t, err)
		dt, err := strconv.ParseFloat(row[6], 64)
		require.NoError(t, err)
		assert.InDelta(t, accTime-gyroTime, dt, 2e-4, "dt is acc minus gyro")
	}
	assert.Equal(t, strconv.Itoa(rowsPerRole["waist"]), summary[1][1], "n_pairs counts every acc peak")
	assert.Equal(t, strconv.Itoa(rowsPerRole["wrist"]), summary[2][1])

	data, err := os.ReadFile(filepath.Join(out, reportFile))
	require.NoError(t, err)
	var report swing.AnalysisReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, res.Report.ID, report.ID)
}

func TestRunUnresolvedTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("sensor_type,timestamp,data\n"+
		`waist,garbage,"{""acc"":[0,0,1],""gyro"":[0,0,1],""angle"":[0,0,0]}"`+"\n"), 0o600))
	out := filepath.Join(t.TempDir(), "outputs")

	res, err := run(Config{InputFile: path, OutputDir: out, SessionID: "s-1"})
	require.NoError(t, err)
	require.NotNil(t, res.Report)
	assert.Equal(t, "s-1", res.Report.SessionID)
	assert.Empty(t, res.Roles)

	_, err = os.Stat(filepath.Join(out, accPlotFile))
	assert.True(t, os.IsNotExist(err), "no plot without aligned data")
	assert.Len(t, readCSV(t, filepath.Join(out, summaryFile)), 1)
	_, err = os.Stat(filepath.Join(out, reportFile))
	assert.NoError(t, err)
}

func TestRunErrors(t *testing.T) {
	input := writeCapture(t)

	_, err := run(Config{InputFile: input, OutputDir: "/etc/swing"})
	assert.ErrorContains(t, err, "invalid output directory")

	out := filepath.Join(t.TempDir(), "outputs")
	_, err = run(Config{InputFile: input, OutputDir: out, Timezone: "Nowhere/City"})
	assert.ErrorContains(t, err, "invalid timezone")

	_, err = run(Config{InputFile: input, OutputDir: out, Locale: "fr"})
	assert.Error(t, err)

	_, err = run(Config{InputFile: filepath.Join(t.TempDir(), "missing.csv"), OutputDir: out})
	assert.Error(t, err)
}

func TestReadReadings(t *testing.T) {
	in := strings.Join([]string{
		"timestamp,data,sensor_type",
		`120000000,"{""acc"":[0,0,1],""gyro"":[1,2,3],""angle"":[0,0,0]}",Waist`,
		`,"{""sensor_type"":""wrist"",""timestamp"":""120000005"",""acc"":[0,0,1],""gyro"":[0,0,0],""angle"":[0,0,0]}",`,
		`120000010,"{""acc"":[0,0,1]}",waist`,
		`120000015,"{""acc"":[0,0,1],""gyro"":[0,0,0],""angle"":[0,0,0]}",elbow`,
		`120000020,,waist`,
	}, "\n")

	readings, skipped, err := readReadings(strings.NewReader(in), ingest.Decoder{})
	require.NoError(t, err)
	assert.Equal(t, 3, skipped)
	require.Len(t, readings, 2)
	assert.Equal(t, swing.RoleWaist, readings[0].Role)
	assert.Equal(t, swing.RawTimestamp("120000000"), readings[0].Timestamp)
	assert.Equal(t, swing.Vec3{1, 2, 3}, readings[0].Gyro)
	assert.Equal(t, swing.RoleWrist, readings[1].Role)
	assert.Equal(t, swing.RawTimestamp("120000005"), readings[1].Timestamp)
}

func TestReadReadingsUnits(t *testing.T) {
	in := "sensor_type,timestamp,data\n" +
		`waist,120000000,"{""acc"":[0,0,9.80665],""gyro"":[0,0,3.141592653589793],""angle"":[0,0,0]}"` + "\n"

	readings, _, err := readReadings(strings.NewReader(in), ingest.Decoder{AccUnit: units.MPS2, GyroUnit: units.RADS})
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.InDelta(t, 1.0, readings[0].Acc[2], 1e-9)
	assert.InDelta(t, 180.0, readings[0].Gyro[2], 1e-9)
}

func TestReadReadingsErrors(t *testing.T) {
	_, _, err := readReadings(strings.NewReader(""), ingest.Decoder{})
	assert.EqualError(t, err, "empty CSV")

	_, _, err = readReadings(strings.NewReader("sensor_type,timestamp\nwaist,1\n"), ingest.Decoder{})
	assert.ErrorContains(t, err, "missing data column")

	_, _, err = readReadings(strings.NewReader("data\nnot json\n"), ingest.Decoder{})
	assert.ErrorIs(t, err, swing.ErrNoSensorData)
}

func TestWithDefaults(t *testing.T) {
	assert.Equal(t, `x`, string(withDefaults([]byte(`x`), "waist", "")))
	assert.Equal(t, `{"a":1}`, string(withDefaults([]byte(`{"a":1}`), "", "")))

	var got map[string]any
	require.NoError(t, json.Unmarshal(withDefaults([]byte(`{"sensor_type":"wrist","a":1}`), "waist", "120000000"), &got))
	assert.Equal(t, map[string]any{"sensor_type": "waist", "timestamp": "120000000", "a": 1.0}, got)
}
