package rates

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/etnz/vtrade"
	"github.com/shopspring/decimal"
)

// Entry is a single quoted pair in a rates file.
type Entry struct {
	Rate      decimal.Decimal
	UpdatedAt time.Time
}

// File is the content of a rates.json file:
//
//	{
//	  "EUR_USD": {"rate": 1.0786, "updated_at": "2025-10-09T10:30:00"},
//	  "source": "CoinGecko",
//	  "last_refresh": "2025-10-09T10:35:00"
//	}
//
// A pair key "FROM_TO" holds the amount of TO per unit of FROM.
// File is safe for concurrent use.
type File struct {
	mu          sync.RWMutex
	pairs       map[string]Entry
	source      string
	lastRefresh time.Time
}

// NewFile returns an empty rates file.
func NewFile() *File {
	return &File{pairs: make(map[string]Entry)}
}

func key(from, to vtrade.Code) string { return string(from) + "_" + string(to) }

// splitKey returns the codes of a pair key.
func splitKey(k string) (from, to vtrade.Code, ok bool) {
	f, t, ok := strings.Cut(k, "_")
	if !ok || f == "" || t == "" {
		return "", "", false
	}
	return vtrade.Code(f), vtrade.Code(t), true
}

// Get returns the entry quoted for from→to, without any derivation.
func (f *File) Get(from, to vtrade.Code) (Entry, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.pairs[key(from, to)]
	return e, ok
}

// Set quotes rate for from→to.
func (f *File) Set(from, to vtrade.Code, rate decimal.Decimal, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pairs[key(from, to)] = Entry{Rate: rate, UpdatedAt: at}
}

// Pairs returns the quoted pair keys, sorted.
func (f *File) Pairs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Sorted(maps.Keys(f.pairs))
}

// Source returns the name of the source of the last refresh.
func (f *File) Source() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.source
}

// LastRefresh returns the time of the last refresh, zero if unknown.
func (f *File) LastRefresh() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastRefresh
}

// Refreshed records a refresh by source at t.
func (f *File) Refreshed(source string, t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.source = source
	f.lastRefresh = t
}

// timestamps are written without zone, like "2025-10-09T10:30:00".
const timeLayout = "2006-01-02T15:04:05"

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.UTC)
}

type jsonEntry struct {
	Rate      json.Number `json:"rate"`
	UpdatedAt string      `json:"updated_at"`
}

// MarshalJSON implements the json.Marshaler interface for File.
func (f *File) MarshalJSON() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	obj := make(map[string]any, len(f.pairs)+2)
	for k, e := range f.pairs {
		obj[k] = jsonEntry{Rate: json.Number(e.Rate.String()), UpdatedAt: e.UpdatedAt.UTC().Format(timeLayout)}
	}
	obj["source"] = f.source
	if !f.lastRefresh.IsZero() {
		obj["last_refresh"] = f.lastRefresh.UTC().Format(timeLayout)
	}
	return json.Marshal(obj)
}

// UnmarshalJSON implements the json.Unmarshaler interface for File.
// Keys that are not pairs of catalog currencies are rejected.
func (f *File) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	pairs := make(map[string]Entry, len(obj))
	var source string
	var last time.Time
	for k, raw := range obj {
		switch k {
		case "source":
			if err := json.Unmarshal(raw, &source); err != nil {
				return fmt.Errorf("invalid source: %w", err)
			}
			continue
		case "last_refresh":
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("invalid last_refresh: %w", err)
			}
			t, err := parseTime(s)
			if err != nil {
				return fmt.Errorf("invalid last_refresh: %w", err)
			}
			last = t
			continue
		}
		from, to, ok := splitKey(k)
		if !ok || !from.IsValid() || !to.IsValid() {
			return fmt.Errorf("invalid pair %q", k)
		}
		var je jsonEntry
		if err := json.Unmarshal(raw, &je); err != nil {
			return fmt.Errorf("invalid pair %q: %w", k, err)
		}
		rate, err := decimal.NewFromString(string(je.Rate))
		if err != nil {
			return fmt.Errorf("invalid rate for %q: %w", k, err)
		}
		at, err := parseTime(je.UpdatedAt)
		if err != nil {
			return fmt.Errorf("invalid updated_at for %q: %w", k, err)
		}
		pairs[k] = Entry{Rate: rate, UpdatedAt: at}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pairs, f.source, f.lastRefresh = pairs, source, last
	return nil
}

// Load reads a rates file. A missing file is reported as ErrNoRates.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoRates, path)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read rates: %w", err)
	}
	f := NewFile()
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("cannot parse rates %s: %w", path, err)
	}
	return f, nil
}

// LoadOrEmpty reads a rates file, or returns an empty one if it does not exist.
func LoadOrEmpty(path string) (*File, error) {
	f, err := Load(path)
	if errors.Is(err, ErrNoRates) {
		return NewFile(), nil
	}
	return f, err
}

// Save writes f to path atomically.
func (f *File) Save(path string) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	return writeFile(path, buf.Bytes())
}

// writeFile replaces path with data through a temporary file in the same directory.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
