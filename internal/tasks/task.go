// Package tasks tracks extraction tasks: their state machine, per-table
// progress, aggregate counters, and retention-based eviction.
package tasks

import (
	"fmt"
	"time"

	"github.com/dvloznov/patent-harvester/internal/schema"
)

// State is the extraction task lifecycle state.
type State string

const (
	StateInitializing State = "initializing"
	StateSearching    State = "searching_files"
	StateExtracting   State = "extracting_tables"
	StateProcessing   State = "processing_tables"
	StateFinalizing   State = "finalizing"
	StateCompleted    State = "completed"
	StateError        State = "error"
)

// FragmentStatus is the processing status of one table fragment.
// Statuses are monotonic: pending, then processing, then exactly one
// terminal status.
type FragmentStatus string

const (
	FragmentPending    FragmentStatus = "pending"
	FragmentProcessing FragmentStatus = "processing"
	FragmentRelevant   FragmentStatus = "completed_relevant"
	FragmentIrrelevant FragmentStatus = "completed_irrelevant"
	FragmentError      FragmentStatus = "error"
)

// terminal reports whether a fragment status is final.
func (s FragmentStatus) terminal() bool {
	switch s {
	case FragmentRelevant, FragmentIrrelevant, FragmentError:
		return true
	}
	return false
}

// Counters are the aggregate progress counters maintained during
// discovery and registration.
type Counters struct {
	FilesFound     int `json:"files_found"`
	FilesProcessed int `json:"files_processed"`
	TablesFound    int `json:"tables_found"`
}

// Task is one end-to-end extraction request. All fields are guarded by
// the owning Registry's lock; callers only ever see Snapshot copies.
type Task struct {
	ID        string
	Dataset   *schema.Dataset
	CreatedAt time.Time

	state     State
	fragments map[string]FragmentStatus
	counters  Counters
	errors    []string
	result    string
	hasResult bool
	failure   string
}

// Snapshot is a consistent, immutable view of a task's progress.
type Snapshot struct {
	TaskID          string                    `json:"task_id"`
	Status          State                     `json:"status"`
	Message         string                    `json:"message"`
	Percent         float64                   `json:"percent"`
	FilesFound      int                       `json:"files_found"`
	FilesProcessed  int                       `json:"files_processed"`
	TablesFound     int                       `json:"tables_found"`
	TablesProcessed int                       `json:"tables_processed"`
	TablesRelevant  int                       `json:"tables_relevant"`
	Fragments       map[string]FragmentStatus `json:"fragments"`
	Errors          []string                  `json:"errors"`
}

// snapshot projects the task into a Snapshot. Caller holds the registry
// lock.
func (t *Task) snapshot() Snapshot {
	processed, relevant := 0, 0
	frags := make(map[string]FragmentStatus, len(t.fragments))
	for id, st := range t.fragments {
		frags[id] = st
		if st != FragmentPending {
			processed++
		}
		if st == FragmentRelevant {
			relevant++
		}
	}

	percent := 0.0
	if total := len(t.fragments); total > 0 {
		percent = float64(processed) / float64(total) * 100
	}

	snap := Snapshot{
		TaskID:          t.ID,
		Status:          t.state,
		Percent:         percent,
		FilesFound:      t.counters.FilesFound,
		FilesProcessed:  t.counters.FilesProcessed,
		TablesFound:     t.counters.TablesFound,
		TablesProcessed: processed,
		TablesRelevant:  relevant,
		Fragments:       frags,
		Errors:          append([]string(nil), t.errors...),
	}
	snap.Message = message(snap, t.failure)
	return snap
}

// message derives the human-readable status line purely from the
// snapshot; it is never stored.
func message(s Snapshot, failure string) string {
	switch s.Status {
	case StateInitializing:
		return "Initializing extraction"
	case StateSearching:
		return "Searching patent files"
	case StateExtracting:
		return fmt.Sprintf("Extracting tables from %d matching files", s.FilesFound)
	case StateProcessing:
		return fmt.Sprintf("Processing tables: %d/%d done, %d relevant",
			s.TablesProcessed, s.TablesFound, s.TablesRelevant)
	case StateFinalizing:
		return "Building result dataset"
	case StateCompleted:
		if s.FilesFound == 0 {
			return "Completed: no matching patent files"
		}
		if s.TablesFound == 0 {
			return "Completed: no tables found in matching files"
		}
		return fmt.Sprintf("Completed: %d/%d tables relevant", s.TablesRelevant, s.TablesFound)
	case StateError:
		return "Extraction failed: " + failure
	}
	return string(s.Status)
}
