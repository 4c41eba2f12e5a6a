package parser

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"meterflow/backend/services/meter-service/internal/models"
	"meterflow/backend/services/meter-service/internal/series"
)

const delimiter = ","

// DefaultMeterIDs are the two metering channels kept from SDAT exports.
var DefaultMeterIDs = []string{"735", "742"}

var (
	ErrFieldCount = errors.New("unexpected field count")
	ErrTimestamp  = errors.New("invalid timestamp")
	ErrValue      = errors.New("invalid numeric value")
)

// ParseError identifies the offending line of a source text.
// File is set when the text came from a named input; Line counts within that input.
type ParseError struct {
	Source string
	File   string
	Line   int
	Text   string
	Err    error
}

func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("parse %s file %q line %d %q: %v", e.Source, e.File, e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("parse %s line %d %q: %v", e.Source, e.Line, e.Text, e.Err)
}

// Input is one source text together with the name it is reported under.
type Input struct {
	Name string
	Text string
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parser turns SDAT and ESL texts into typed rows.
type Parser struct {
	allowed map[string]struct{}
	loc     *time.Location
}

// New returns a parser validating timestamps in loc and keeping only the given meter ids.
// Without ids, DefaultMeterIDs apply.
func New(loc *time.Location, meterIDs ...string) *Parser {
	if loc == nil {
		loc = time.Local
	}
	if len(meterIDs) == 0 {
		meterIDs = DefaultMeterIDs
	}
	allowed := make(map[string]struct{}, len(meterIDs))
	for _, id := range meterIDs {
		allowed[strings.TrimSpace(id)] = struct{}{}
	}
	return &Parser{allowed: allowed, loc: loc}
}

// ParseIntervalRows parses SDAT text with default settings.
func ParseIntervalRows(text string) ([]models.RawIntervalRow, error) {
	return New(nil).ParseIntervalRows(text)
}

// ParseRegisterRows parses ESL text with default settings.
func ParseRegisterRows(text string) ([]models.RawRegisterRow, error) {
	return New(nil).ParseRegisterRows(text)
}

// ParseIntervalInputs parses every input on its own and appends the rows in input order.
func (p *Parser) ParseIntervalInputs(inputs []Input) ([]models.RawIntervalRow, error) {
	out := []models.RawIntervalRow{}
	for _, in := range inputs {
		rows, err := p.ParseIntervalRows(in.Text)
		if err != nil {
			return nil, withFile(err, in.Name)
		}
		out = append(out, rows...)
	}
	return out, nil
}

// ParseRegisterInputs parses every input on its own and appends the rows in input order.
func (p *Parser) ParseRegisterInputs(inputs []Input) ([]models.RawRegisterRow, error) {
	out := []models.RawRegisterRow{}
	for _, in := range inputs {
		rows, err := p.ParseRegisterRows(in.Text)
		if err != nil {
			return nil, withFile(err, in.Name)
		}
		out = append(out, rows...)
	}
	return out, nil
}

// ParseIntervalRows reads lines of "timestamp,meterId,value".
// Lines for meter ids outside the allow-list are skipped before any validation.
func (p *Parser) ParseIntervalRows(text string) ([]models.RawIntervalRow, error) {
	out := []models.RawIntervalRow{}
	err := eachLine(text, func(lineNo int, line string) error {
		fields := splitFields(line)
		if len(fields) >= 2 {
			if _, ok := p.allowed[fields[1]]; !ok {
				return nil
			}
		}
		if len(fields) != 3 {
			return &ParseError{Source: "sdat", Line: lineNo, Text: line, Err: fmt.Errorf("%w: got %d want 3", ErrFieldCount, len(fields))}
		}
		if err := p.checkTimestamp(fields[0]); err != nil {
			return &ParseError{Source: "sdat", Line: lineNo, Text: line, Err: err}
		}
		value, err := parseValue(fields[2])
		if err != nil {
			return &ParseError{Source: "sdat", Line: lineNo, Text: line, Err: err}
		}
		out = append(out, models.RawIntervalRow{Timestamp: fields[0], MeterID: fields[1], Value: value})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ParseRegisterRows reads lines of "timestamp,value".
func (p *Parser) ParseRegisterRows(text string) ([]models.RawRegisterRow, error) {
	out := []models.RawRegisterRow{}
	err := eachLine(text, func(lineNo int, line string) error {
		fields := splitFields(line)
		if len(fields) != 2 {
			return &ParseError{Source: "esl", Line: lineNo, Text: line, Err: fmt.Errorf("%w: got %d want 2", ErrFieldCount, len(fields))}
		}
		if err := p.checkTimestamp(fields[0]); err != nil {
			return &ParseError{Source: "esl", Line: lineNo, Text: line, Err: err}
		}
		value, err := parseValue(fields[1])
		if err != nil {
			return &ParseError{Source: "esl", Line: lineNo, Text: line, Err: err}
		}
		out = append(out, models.RawRegisterRow{Timestamp: fields[0], Value: value})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Parser) checkTimestamp(ts string) error {
	if _, ok := series.ParseTimestamp(ts, p.loc); !ok {
		return fmt.Errorf("%w: %q", ErrTimestamp, ts)
	}
	return nil
}

func withFile(err error, name string) error {
	var perr *ParseError
	if errors.As(err, &perr) {
		perr.File = name
	}
	return err
}

// eachLine calls fn for every non-blank line with its 1-based number.
func eachLine(text string, fn func(lineNo int, line string) error) error {
	text = strings.TrimPrefix(text, "\ufeff")
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := fn(i+1, line); err != nil {
			return err
		}
	}
	return nil
}

func splitFields(line string) []string {
	fields := strings.Split(line, delimiter)
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

// parseValue rejects anything that is not a finite float, including "NaN" and "Inf".
func parseValue(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrValue, s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q is not finite", ErrValue, s)
	}
	return v, nil
}
