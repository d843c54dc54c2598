package tle

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const (
	issName  = "ISS (ZARYA)"
	issLine1 = "1 25544U 98067A   24036.56041667  .00016717  00000-0  30099-3 0  9996"
	issLine2 = "2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495057"

	starlinkName  = "STARLINK-1007"
	starlinkLine1 = "1 44713U 19074A   24036.56041667  .00001000  00000-0  10000-4 0  9996"
	starlinkLine2 = "2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    07"
)

func TestParseTwoEntries(t *testing.T) {
	blob := strings.Join([]string{
		issName, issLine1, issLine2,
		"",
		starlinkName, starlinkLine1, starlinkLine2,
	}, "\n")

	entries, err := Parse(strings.NewReader(blob), testLogger)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].NORADID != 25544 || entries[0].Name != issName {
		t.Errorf("entry 0 = %d %q, want 25544 %q", entries[0].NORADID, entries[0].Name, issName)
	}
	if entries[1].NORADID != 44713 {
		t.Errorf("entry 1 NORAD = %d, want 44713", entries[1].NORADID)
	}
}

func TestParseEpoch(t *testing.T) {
	entries, err := Parse(strings.NewReader(issName+"\n"+issLine1+"\n"+issLine2+"\n"), testLogger)
	if err != nil || len(entries) != 1 {
		t.Fatalf("Parse: entries=%d err=%v", len(entries), err)
	}

	want := time.Date(2024, 2, 5, 13, 27, 0, 0, time.UTC)
	if !entries[0].Epoch.Equal(want) {
		t.Errorf("epoch = %v, want %v", entries[0].Epoch, want)
	}
}

func TestParseEpochCentury(t *testing.T) {
	tests := []struct {
		in   string
		year int
	}{
		{"56001.00000000", 2056},
		{"57001.00000000", 1957},
		{"99365.50000000", 1999},
		{"00001.00000000", 2000},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseEpoch(tt.in)
			if err != nil {
				t.Fatalf("parseEpoch(%q): %v", tt.in, err)
			}
			if got.Year() != tt.year {
				t.Errorf("year = %d, want %d", got.Year(), tt.year)
			}
		})
	}

	if _, err := parseEpoch("24000.50000000"); err == nil {
		t.Error("expected error for day 0")
	}
}

func TestParseDropsMalformed(t *testing.T) {
	corrupted := strings.Replace(starlinkLine2, "53.0000", "53.0x00", 1)
	blob := strings.Join([]string{
		"GARBAGE HEADER",
		issName, issLine1, issLine2,
		starlinkName, starlinkLine1, corrupted,
		"TRAILING", issLine1,
	}, "\n")

	entries, err := Parse(strings.NewReader(blob), testLogger)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the ISS entry to survive, got %d", len(entries))
	}
	if entries[0].NORADID != 25544 {
		t.Errorf("surviving entry = %d, want 25544", entries[0].NORADID)
	}
}

func TestParseIncompleteBlock(t *testing.T) {
	entries, err := Parse(strings.NewReader(issName+"\n"+issLine1+"\n"), testLogger)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected incomplete block to be dropped, got %d entries", len(entries))
	}
}

func TestValidateLines(t *testing.T) {
	tests := []struct {
		name    string
		line1   string
		line2   string
		wantErr bool
	}{
		{"valid", issLine1, issLine2, false},
		{"short line1", issLine1[:60], issLine2, true},
		{"wrong prefix", "3" + issLine1[1:], issLine2, true},
		{"catalog mismatch", issLine1, starlinkLine2, true},
		{"bad inclination", issLine1, strings.Replace(issLine2, "51.6412", "5x.6412", 1), true},
		{"bad bstar", strings.Replace(issLine1, "30099-3", "30a99-3", 1), issLine2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLines(tt.line1, tt.line2)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLines() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	perr := &ParseError{Line: 3, Name: "X", Reason: "invalid element lines", Err: inner}
	if !errors.Is(perr, inner) {
		t.Error("ParseError should unwrap to its cause")
	}
	if !strings.Contains(perr.Error(), "line 3") {
		t.Errorf("unexpected message %q", perr.Error())
	}
}
