package services

import (
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"superstore-dashboard/internal/models"
)

const cacheVersion = "v2"

type snapshot struct {
	Records      []models.Record
	LastModified time.Time
}

// Dataset owns the full, unfiltered record set loaded at startup.
type Dataset struct {
	mu               sync.RWMutex
	records          []models.Record
	maxYear          int
	regions          []string
	years            []int
	loadErr          error
	csvPath          string
	cacheDir         string
	loadedAt         time.Time
	recordsProcessed atomic.Int64
	logger           *slog.Logger
}

func NewDataset() *Dataset {
	return &Dataset{
		records: []models.Record{},
		logger:  slog.Default(),
	}
}

// SetCacheDir enables the parsed-record cache; an empty dir disables it.
func (d *Dataset) SetCacheDir(dir string) {
	d.cacheDir = dir
}

func (d *Dataset) SetRecords(records []models.Record) {
	if records == nil {
		records = []models.Record{}
	}

	maxYear := MaxYear(records)
	regions := distinctRegions(records)
	years := distinctYears(records)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = records
	d.maxYear = maxYear
	d.regions = regions
	d.years = years
	d.loadErr = nil
	d.loadedAt = time.Now()
	d.recordsProcessed.Store(int64(len(records)))
}

// LoadFromCSV replaces the record set with the file's contents. On failure
// the dataset is left empty and the error is kept for the display layer.
func (d *Dataset) LoadFromCSV(ctx context.Context, filename string) error {
	d.csvPath = filename

	if cached, err := d.loadFromCache(filename); err == nil {
		fileInfo, err := os.Stat(filename)
		if err == nil && fileInfo.ModTime().Before(cached.LastModified) {
			d.SetRecords(cached.Records)
			d.logger.Info("loaded from cache", "records", len(cached.Records))
			return nil
		}
	}

	start := time.Now()
	d.logger.Info("processing CSV file", "filename", filename)

	records, err := d.readCSV(ctx, filename)
	if err != nil {
		d.fail(err)
		return fmt.Errorf("process csv: %w", err)
	}
	d.SetRecords(records)

	if err := d.saveToCache(filename); err != nil {
		d.logger.Warn("failed to save cache", "error", err)
	}

	duration := time.Since(start)
	count := d.recordsProcessed.Load()
	d.logger.Info("csv processing complete",
		"records", count,
		"duration", duration,
		"rate", fmt.Sprintf("%.0f records/sec", float64(count)/duration.Seconds()))

	return nil
}

func (d *Dataset) readCSV(ctx context.Context, filename string) ([]models.Record, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	return ParseCSV(ctx, file)
}

func (d *Dataset) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = []models.Record{}
	d.maxYear = 0
	d.regions = nil
	d.years = nil
	d.loadErr = err
	d.recordsProcessed.Store(0)
}

// Records returns the full record set. Callers must not modify it.
func (d *Dataset) Records() []models.Record {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.records
}

// MaxYear is the latest valid year in the full record set, 0 if none.
func (d *Dataset) MaxYear() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.maxYear
}

func (d *Dataset) Regions() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.regions
}

// Years lists the distinct valid years, newest first.
func (d *Dataset) Years() []int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.years
}

func (d *Dataset) LoadError() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loadErr
}

func (d *Dataset) Stats() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := map[string]any{
		"record_count": len(d.records),
		"loaded_at":    d.loadedAt,
		"source":       d.csvPath,
		"max_year":     d.maxYear,
		"regions":      len(d.regions),
		"years":        len(d.years),
	}
	if d.loadErr != nil {
		stats["load_error"] = d.loadErr.Error()
	}
	return stats
}

func distinctRegions(records []models.Record) []string {
	seen := make(map[string]bool)
	var regions []string
	for _, r := range records {
		if r.Region != "" && !seen[r.Region] {
			seen[r.Region] = true
			regions = append(regions, r.Region)
		}
	}
	slices.Sort(regions)
	return regions
}

func distinctYears(records []models.Record) []int {
	seen := make(map[int]bool)
	var years []int
	for _, r := range records {
		if !r.Date.Valid() {
			continue
		}
		if y := r.Date.Year(); !seen[y] {
			seen[y] = true
			years = append(years, y)
		}
	}
	slices.Sort(years)
	slices.Reverse(years)
	return years
}

// Cache management
func (d *Dataset) getCacheFilename(csvPath string) string {
	name := strings.ReplaceAll(filepath.ToSlash(csvPath), "/", "_")
	return filepath.Join(d.cacheDir, fmt.Sprintf("%s_%s.gob", name, cacheVersion))
}

func (d *Dataset) saveToCache(csvPath string) error {
	if d.cacheDir == "" {
		return nil
	}
	if err := os.MkdirAll(d.cacheDir, 0755); err != nil {
		return err
	}

	file, err := os.Create(d.getCacheFilename(csvPath))
	if err != nil {
		return err
	}
	defer file.Close()

	d.mu.RLock()
	snap := snapshot{Records: d.records, LastModified: time.Now()}
	d.mu.RUnlock()

	return gob.NewEncoder(file).Encode(snap)
}

func (d *Dataset) loadFromCache(csvPath string) (*snapshot, error) {
	if d.cacheDir == "" {
		return nil, os.ErrNotExist
	}

	file, err := os.Open(d.getCacheFilename(csvPath))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var snap snapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
