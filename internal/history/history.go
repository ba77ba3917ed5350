// Package history persists completed scan reports. Only terminal reports
// are stored; a scan in flight never touches disk, so every scan starts
// from a clean slate.
package history

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/PentesterFlow/OpenSQLi/internal/output"
)

var bucketReports = []byte("reports")

// Store is a bbolt-backed report archive.
type Store struct {
	db   *bolt.DB
	path string
}

// Open opens (or creates) the history database.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketReports)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init history db: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Save archives a finished report. The key sorts chronologically.
func (s *Store) Save(report *output.Report) (string, error) {
	id := report.StartTime.UTC().Format(time.RFC3339Nano) + " " + report.Target

	data, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReports).Put([]byte(id), data)
	})
	if err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	return id, nil
}

// Entry is a report summary for listings.
type Entry struct {
	ID        string            `json:"id"`
	Target    string            `json:"target"`
	Status    output.ScanStatus `json:"status"`
	StartTime time.Time         `json:"start_time"`
	Duration  string            `json:"duration"`
	Findings  int               `json:"findings"`
}

// List returns summaries of all stored reports, newest first.
func (s *Store) List() ([]Entry, error) {
	var entries []Entry

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReports).ForEach(func(k, v []byte) error {
			var report output.Report
			if err := json.Unmarshal(v, &report); err != nil {
				// Skip unreadable entries rather than failing the listing.
				return nil
			}
			entries = append(entries, Entry{
				ID:        string(k),
				Target:    report.Target,
				Status:    report.Status,
				StartTime: report.StartTime,
				Duration:  report.Duration,
				Findings:  len(report.Findings),
			})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].StartTime.After(entries[j].StartTime)
	})
	return entries, nil
}

// Get loads one stored report by ID.
func (s *Store) Get(id string) (*output.Report, error) {
	var report *output.Report

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketReports).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("no report with id %q", id)
		}
		report = &output.Report{}
		return json.Unmarshal(data, report)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Delete removes one stored report.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReports).Delete([]byte(id))
	})
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
