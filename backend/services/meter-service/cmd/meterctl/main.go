package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"meterflow/backend/libs/logging"
	"meterflow/backend/services/meter-service/internal/export"
	"meterflow/backend/services/meter-service/internal/models"
	"meterflow/backend/services/meter-service/internal/parser"
	"meterflow/backend/services/meter-service/internal/series"
)

type options struct {
	sdatPaths multiString
	eslPaths  multiString
	backend   string
	start     string
	end       string
	format    string
	out       string
	tz        string
	encoding  string
	meterIDs  string
}

func main() {
	var opts options
	flag.Var(&opts.sdatPaths, "sdat", "Path to SDAT interval export (can be specified multiple times)")
	flag.Var(&opts.eslPaths, "esl", "Path to ESL register export (can be specified multiple times)")
	flag.StringVar(&opts.backend, "backend", "", "Path to a backend meters JSON payload (replaces -sdat/-esl)")
	flag.StringVar(&opts.start, "start", "", "First day to keep (YYYY-MM-DD or timestamp)")
	flag.StringVar(&opts.end, "end", "", "Last day to keep (YYYY-MM-DD or timestamp)")
	flag.StringVar(&opts.format, "format", "json", "Output format: json, csv or xlsx")
	flag.StringVar(&opts.out, "out", "-", "Output file, - for stdout")
	flag.StringVar(&opts.tz, "tz", "Europe/Zurich", "Timezone for zone-less timestamps and day boundaries")
	flag.StringVar(&opts.encoding, "encoding", parser.EncodingUTF8, "Input encoding: utf-8, windows-1252 or iso-8859-1")
	flag.StringVar(&opts.meterIDs, "meters", strings.Join(parser.DefaultMeterIDs, ","), "Comma separated SDAT meter ids to keep")
	flag.Parse()

	if opts.backend == "" && len(opts.sdatPaths) == 0 && len(opts.eslPaths) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger, err := logging.NewLogger(logging.WithOutput("stderr"), logging.WithConsoleEncoding())
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(opts, logger); err != nil {
		logger.Error("meterctl failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(opts options, logger *zap.Logger) error {
	loc, err := time.LoadLocation(opts.tz)
	if err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}
	format, err := export.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	records, err := loadRecords(opts, loc)
	if err != nil {
		return err
	}
	total := len(records)
	records = series.FilterByRange(records, opts.start, opts.end, loc)
	logger.Info("series ready", zap.Int("records", total), zap.Int("in_range", len(records)))

	return writeOutput(opts.out, format, records)
}

func loadRecords(opts options, loc *time.Location) ([]models.MergedRecord, error) {
	if opts.backend != "" {
		data, err := os.ReadFile(opts.backend)
		if err != nil {
			return nil, fmt.Errorf("read backend payload: %w", err)
		}
		var resp models.MeterResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("decode backend payload: %w", err)
		}
		return series.Flatten(&resp, loc), nil
	}

	sdatFiles, err := readInputs(opts.sdatPaths, opts.encoding)
	if err != nil {
		return nil, err
	}
	eslFiles, err := readInputs(opts.eslPaths, opts.encoding)
	if err != nil {
		return nil, err
	}

	p := parser.New(loc, splitIDs(opts.meterIDs)...)
	intervals, err := p.ParseIntervalInputs(sdatFiles)
	if err != nil {
		return nil, err
	}
	registers, err := p.ParseRegisterInputs(eslFiles)
	if err != nil {
		return nil, err
	}
	return series.Reconcile(intervals, registers, loc)
}

func readInputs(paths []string, encoding string) ([]parser.Input, error) {
	inputs := make([]parser.Input, 0, len(paths))
	for _, path := range paths {
		text, err := parser.ReadFile(path, encoding)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		inputs = append(inputs, parser.Input{Name: path, Text: text})
	}
	return inputs, nil
}

func writeOutput(path string, format export.Format, records []models.MergedRecord) (err error) {
	var w io.Writer = os.Stdout
	if path != "" && path != "-" {
		f, cerr := os.Create(path)
		if cerr != nil {
			return fmt.Errorf("create output: %w", cerr)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		w = f
	}
	bw := bufio.NewWriter(w)
	if err := export.Write(bw, format, records); err != nil {
		return err
	}
	return bw.Flush()
}

func splitIDs(s string) []string {
	var ids []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}

type multiString []string

func (m *multiString) String() string {
	return strings.Join(*m, ",")
}

func (m *multiString) Set(value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New("empty path")
	}
	*m = append(*m, value)
	return nil
}
