package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/natefinch/atomic"

	"github.com/bryan-cox/tempoledger/internal/model"
)

// CommonGroup holds holidays that apply to every state of a country.
const CommonGroup = "common"

// Holiday is one named organization holiday.
type Holiday struct {
	Date string `json:"date"`
	Name string `json:"name"`
}

// HolidayDocument is the organization holiday file, keyed by
// country, then year, then group ("common" or a state code).
type HolidayDocument struct {
	Version  string                                   `json:"version"`
	Holidays map[string]map[string]map[string][]Holiday `json:"holidays"`
}

// HasYear reports whether the document has any data for the country and year.
func (d *HolidayDocument) HasYear(country string, year int) bool {
	if d == nil {
		return false
	}
	_, ok := d.Holidays[country][strconv.Itoa(year)]
	return ok
}

// HasGroup reports whether the document has a holiday group for the country and year.
func (d *HolidayDocument) HasGroup(country string, year int, group string) bool {
	if d == nil {
		return false
	}
	_, ok := d.Holidays[country][strconv.Itoa(year)][group]
	return ok
}

// OrgHolidays is a flattened date to name lookup built from a HolidayDocument.
type OrgHolidays struct {
	doc    *HolidayDocument
	byDate map[string]string
}

// NewOrgHolidays flattens the common and state holidays of the country for
// every year in the document, so past dates and the year-end boundary
// classify the same way as the current year.
func NewOrgHolidays(doc *HolidayDocument, country, state string) *OrgHolidays {
	o := &OrgHolidays{doc: doc, byDate: make(map[string]string)}
	if doc == nil {
		return o
	}
	for _, groups := range doc.Holidays[country] {
		for _, h := range groups[CommonGroup] {
			o.byDate[h.Date] = h.Name
		}
		if state != "" {
			for _, h := range groups[state] {
				o.byDate[h.Date] = h.Name
			}
		}
	}
	slog.Debug("org holidays parsed", "country", country, "state", state, "count", len(o.byDate))
	return o
}

// Lookup returns the org holiday name on date.
func (o *OrgHolidays) Lookup(date time.Time) (string, bool) {
	if o == nil {
		return "", false
	}
	name, ok := o.byDate[model.FormatDate(date)]
	return name, ok
}

// Document returns the source document, which may be nil.
func (o *OrgHolidays) Document() *HolidayDocument {
	if o == nil {
		return nil
	}
	return o.doc
}

// Len returns the number of flattened holidays.
func (o *OrgHolidays) Len() int {
	if o == nil {
		return 0
	}
	return len(o.byDate)
}

// HolidaySource fetches the org holiday document and keeps a local cache.
type HolidaySource struct {
	URL       string
	CachePath string
	Client    *http.Client
}

// NewHolidaySource returns a source with a 10 second HTTP timeout.
func NewHolidaySource(url, cachePath string) *HolidaySource {
	return &HolidaySource{
		URL:       url,
		CachePath: cachePath,
		Client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Load refreshes the cache from URL when the remote version differs, then
// returns the cached document. Failures degrade to the cache, then to an
// empty document. The bool reports whether the cache was rewritten.
func (s *HolidaySource) Load(ctx context.Context) (*HolidayDocument, bool) {
	cached, err := s.readCache()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not read org holidays cache", "path", s.CachePath, "error", err)
	}

	if s.URL == "" {
		return orEmptyDocument(cached), false
	}

	remote, err := s.fetch(ctx)
	if err != nil {
		slog.Warn("could not fetch remote org holidays", "url", s.URL, "error", err)
		return orEmptyDocument(cached), false
	}

	localVersion := ""
	if cached != nil {
		localVersion = cached.Version
	}
	if cached != nil && remote.Version == localVersion {
		slog.Debug("org holidays up to date", "version", localVersion)
		return orEmptyDocument(cached), false
	}

	if err := s.writeCache(remote); err != nil {
		slog.Warn("could not write org holidays cache", "path", s.CachePath, "error", err)
	} else {
		slog.Info("org holidays updated", "from", localVersion, "to", remote.Version)
	}
	return remote, true
}

func orEmptyDocument(doc *HolidayDocument) *HolidayDocument {
	if doc == nil {
		return &HolidayDocument{}
	}
	return doc
}

func (s *HolidaySource) fetch(ctx context.Context) (*HolidayDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch org holidays: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("org holidays source returned status %d", resp.StatusCode)
	}

	var doc HolidayDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode org holidays: %w", err)
	}
	return &doc, nil
}

func (s *HolidaySource) readCache() (*HolidayDocument, error) {
	if s.CachePath == "" {
		return nil, fs.ErrNotExist
	}
	data, err := os.ReadFile(s.CachePath)
	if err != nil {
		return nil, err
	}
	var doc HolidayDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse org holidays cache: %w", err)
	}
	return &doc, nil
}

func (s *HolidaySource) writeCache(doc *HolidayDocument) error {
	if s.CachePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(s.CachePath, bytes.NewReader(data))
}
