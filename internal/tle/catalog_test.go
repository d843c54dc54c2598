package tle

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testBlob() []byte {
	return []byte(strings.Join([]string{
		issName, issLine1, issLine2,
		starlinkName, starlinkLine1, starlinkLine2,
	}, "\n"))
}

func TestLoadCatalog(t *testing.T) {
	c := Load("test", testBlob(), testLogger)

	if c.Source != "test" {
		t.Errorf("source = %q, want test", c.Source)
	}
	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}

	ids := c.IDs()
	if ids[0] != 25544 || ids[1] != 44713 {
		t.Errorf("IDs() = %v, want insertion order [25544 44713]", ids)
	}

	el, ok := c.Get(44713)
	if !ok {
		t.Fatal("expected 44713 in catalog")
	}
	if el.Name != starlinkName {
		t.Errorf("name = %q, want %q", el.Name, starlinkName)
	}
	if _, ok := c.Get(1); ok {
		t.Error("Get(1) should be absent")
	}
}

func TestLoadFallback(t *testing.T) {
	tests := []struct {
		name string
		blob []byte
	}{
		{"nil blob", nil},
		{"blank blob", []byte("\n  \n")},
		{"no usable records", []byte("JUNK\nMORE JUNK\nEVEN MORE\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Load("test", tt.blob, testLogger)
			if c.Source != SourceFallback {
				t.Errorf("source = %q, want %q", c.Source, SourceFallback)
			}
			if c.Len() != 1 {
				t.Fatalf("fallback len = %d, want 1", c.Len())
			}
			if _, ok := c.Get(25544); !ok {
				t.Error("fallback should contain the ISS record")
			}
		})
	}
}

func TestCatalogDuplicateKeepsFirst(t *testing.T) {
	renamed := []OrbitalElements{
		{NORADID: 1, Name: "first"},
		{NORADID: 2, Name: "second"},
		{NORADID: 1, Name: "again"},
	}
	c := NewCatalog("test", renamed, testLogger)
	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	el, _ := c.Get(1)
	if el.Name != "first" {
		t.Errorf("duplicate id kept %q, want first occurrence", el.Name)
	}
}

func TestCatalogSubset(t *testing.T) {
	c := Load("test", testBlob(), testLogger)

	sub := c.Subset([]int{44713, 99999, 25544})
	if len(sub) != 2 {
		t.Fatalf("subset len = %d, want 2", len(sub))
	}
	if sub[0].NORADID != 25544 {
		t.Errorf("subset should follow catalog order, got %d first", sub[0].NORADID)
	}
	if got := len(c.Subset(nil)); got != 2 {
		t.Errorf("nil subset len = %d, want whole catalog", got)
	}

	var none *Catalog
	if got := none.Subset([]int{25544}); got != nil {
		t.Errorf("nil catalog subset = %v, want nil", got)
	}
	if got := none.Subset(nil); got != nil {
		t.Errorf("nil catalog whole subset = %v, want nil", got)
	}
}

func TestStoreSwapReportsRemoved(t *testing.T) {
	full := Load("full", testBlob(), testLogger)
	store := NewStore(full)

	only := Load("iss", []byte(issName+"\n"+issLine1+"\n"+issLine2), testLogger)
	removed := store.Swap(only)

	if len(removed) != 1 || removed[0] != 44713 {
		t.Errorf("removed = %v, want [44713]", removed)
	}
	if store.Get() != only {
		t.Error("store should hold the new catalog")
	}
	if age := store.AgeSeconds(); age < 0 {
		t.Errorf("age = %v, want >= 0", age)
	}
}

func TestLoadCatalogPrecedence(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(filepath.Join(dir, "cache"), 2)

	ts := time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)
	if err := cache.Write(testBlob(), ts); err != nil {
		t.Fatalf("cache write: %v", err)
	}

	fromCache := LoadCatalog("", cache, testLogger)
	if fromCache.Source != "cache" || fromCache.Len() != 2 {
		t.Errorf("cache load: source=%q len=%d", fromCache.Source, fromCache.Len())
	}
	if !fromCache.LoadedAt.Equal(ts) {
		t.Errorf("LoadedAt = %v, want cache timestamp %v", fromCache.LoadedAt, ts)
	}

	file := filepath.Join(dir, "single.txt")
	if err := os.WriteFile(file, []byte(issName+"\n"+issLine1+"\n"+issLine2+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	fromFile := LoadCatalog(file, cache, testLogger)
	if fromFile.Len() != 1 {
		t.Errorf("explicit file should win, got %d entries", fromFile.Len())
	}
	if again := LoadCatalog("", cache, testLogger); again.Len() != 1 {
		t.Errorf("file was not snapshotted into the cache, cache load has %d entries", again.Len())
	}

	none := LoadCatalog("", NewCache(filepath.Join(dir, "empty"), 2), testLogger)
	if none.Source != SourceFallback {
		t.Errorf("missing sources should fall back, got %q", none.Source)
	}
}

func TestLoadCatalogUnusableFileFallsToCache(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(filepath.Join(dir, "cache"), 2)
	ts := time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)
	if err := cache.Write(testBlob(), ts); err != nil {
		t.Fatalf("cache write: %v", err)
	}

	tests := []struct {
		name    string
		content string
	}{
		{"garbage", "not a tle\n"},
		{"empty", ""},
		{"bad checksums", issName + "\n" + issLine1[:68] + "0\n" + issLine2[:68] + "0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := filepath.Join(dir, tt.name+".txt")
			if err := os.WriteFile(file, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			c := LoadCatalog(file, cache, testLogger)
			if c.Source != "cache" || c.Len() != 2 {
				t.Errorf("source=%q len=%d, want the cached catalog", c.Source, c.Len())
			}
		})
	}

	snaps, err := cache.snapshots()
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 {
		t.Errorf("unusable file was snapshotted: %d snapshots, want 1", len(snaps))
	}
}

func TestCachePrune(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(dir, 2)
	if _, _, err := cache.LoadLatest(); !errors.Is(err, ErrCacheEmpty) {
		t.Fatalf("empty cache err = %v, want ErrCacheEmpty", err)
	}

	for _, name := range []string{"notes.txt", "tle_abc.txt", "tle_1.txt.bak"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	base := time.Unix(1700000000, 0)
	for i := range 4 {
		if err := cache.Write([]byte{byte('a' + i)}, base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	snaps, err := cache.snapshots()
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 2 {
		t.Fatalf("snapshots after prune = %d, want 2", len(snaps))
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Errorf("foreign file was touched: %v", err)
	}

	data, ts, err := cache.LoadLatest()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "d" || !ts.Equal(base.Add(3*time.Hour)) {
		t.Errorf("LoadLatest = %q at %v", data, ts)
	}
}

func TestEpochRangeInclude(t *testing.T) {
	base := time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)
	var r EpochRange
	for _, d := range []int{3, -2, 7, 0} {
		r.Include(base.AddDate(0, 0, d))
	}
	if !r.Min.Equal(base.AddDate(0, 0, -2)) || !r.Max.Equal(base.AddDate(0, 0, 7)) {
		t.Errorf("range = [%v, %v]", r.Min, r.Max)
	}
	if r.Span() != 9*24*time.Hour {
		t.Errorf("span = %v, want 216h", r.Span())
	}

	el := OrbitalElements{Epoch: base}
	if got := el.AgeAt(base.Add(-36 * time.Hour)); got != -1.5 {
		t.Errorf("AgeAt = %v, want -1.5", got)
	}
}
