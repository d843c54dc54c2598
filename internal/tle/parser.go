package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/star/orbitrack/internal/metrics"
)

// lineLength is the fixed width of both element lines.
const lineLength = 69

// ParseError describes an element block that was dropped during parsing.
type ParseError struct {
	Line   int // index of the block's name line among non-blank lines
	Name   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("tle block at line %d (%q): %s", e.Line, e.Name, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse reads 3-line NORAD TLE format from r and returns parsed entries.
// Malformed or incomplete blocks are dropped with a warning log; only a read
// failure on r is returned as an error.
func Parse(r io.Reader, logger *slog.Logger) ([]OrbitalElements, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var entries []OrbitalElements
	drop := func(perr *ParseError) {
		metrics.IncCatalogDropped(perr.Reason)
		logger.Warn("dropping TLE entry", "line_index", perr.Line, "name", perr.Name, "error", perr)
	}

	i := 0
	for i+2 < len(lines) {
		name := strings.TrimSpace(lines[i])
		line1 := lines[i+1]
		line2 := lines[i+2]

		// Resynchronize on the next name line when the triplet is misaligned.
		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			drop(&ParseError{Line: i, Name: name, Reason: "misaligned block"})
			i++
			continue
		}

		el, err := parseBlock(name, line1, line2)
		if err != nil {
			drop(&ParseError{Line: i, Name: name, Reason: "invalid element lines", Err: err})
			i += 3
			continue
		}
		entries = append(entries, el)
		i += 3
	}

	if rest := len(lines) - i; rest > 0 && rest < 3 {
		drop(&ParseError{Line: i, Name: strings.TrimSpace(lines[i]), Reason: "incomplete block"})
	}

	return entries, nil
}

func parseBlock(name, line1, line2 string) (OrbitalElements, error) {
	if err := ValidateLines(line1, line2); err != nil {
		return OrbitalElements{}, err
	}

	noradID, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil {
		return OrbitalElements{}, fmt.Errorf("invalid catalog number %q: %w", line1[2:7], err)
	}

	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return OrbitalElements{}, err
	}

	if name == "" {
		name = strconv.Itoa(noradID)
	}
	return OrbitalElements{
		NORADID: noradID,
		Name:    name,
		Epoch:   epoch,
		Line1:   line1,
		Line2:   line2,
	}, nil
}

// ValidateLines checks the fixed-width layout of a TLE line pair: widths,
// line numbers, matching catalog numbers and every numeric field the SGP4
// initializers read. SGP4 libraries tend to abort the process on unparseable
// fields, so this must pass before a record is built.
func ValidateLines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != lineLength {
		return fmt.Errorf("line1 length %d, expected %d", len(line1), lineLength)
	}
	if len(line2) != lineLength {
		return fmt.Errorf("line2 length %d, expected %d", len(line2), lineLength)
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	if strings.TrimSpace(line1[2:7]) != strings.TrimSpace(line2[2:7]) {
		return fmt.Errorf("catalog number mismatch: %q vs %q", line1[2:7], line2[2:7])
	}

	fields := []struct {
		name  string
		value string
	}{
		{"catalog number", line1[2:7]},
		{"epoch year", line1[18:20]},
		{"epoch day", line1[20:32]},
		{"mean motion derivative", line1[33:43]},
		{"mean motion second derivative", line1[44:45] + "." + line1[45:50] + "e" + line1[50:52]},
		{"bstar", line1[53:54] + "." + line1[54:59] + "e" + line1[59:61]},
		{"inclination", line2[8:16]},
		{"right ascension", line2[17:25]},
		{"eccentricity", "." + line2[26:33]},
		{"argument of perigee", line2[34:42]},
		{"mean anomaly", line2[43:51]},
		{"mean motion", line2[52:63]},
	}
	for _, f := range fields {
		v := strings.ReplaceAll(f.value, " ", "")
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("field %s %q: %w", f.name, f.value, err)
		}
	}
	return nil
}

// parseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}
	if dayOfYear < 1 || dayOfYear >= 367 {
		return time.Time{}, fmt.Errorf("epoch day %v out of range", dayOfYear)
	}

	// dayOfYear is 1-based: day 1.0 = Jan 1 00:00. Round to the millisecond
	// so the eight-digit fraction does not leak float noise into the epoch.
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	offset := time.Duration((dayOfYear - 1) * float64(24*time.Hour)).Round(time.Millisecond)
	return start.Add(offset), nil
}
