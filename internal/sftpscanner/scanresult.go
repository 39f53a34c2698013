package sftpscanner

import "fmt"

// ScanResult tallies a directory scan's counters, matching
// sftp_scanner.rs's ScanResult (original_source). Add fixes the
// original's ambiguous merge (spec.md §9a): Matching accumulates
// Matching, not Encountered — see DESIGN.md Open Question 2.
type ScanResult struct {
	Encountered uint64
	Matching    uint64
	Dispatched  uint64
}

// Add merges other's counters into r.
func (r *ScanResult) Add(other ScanResult) {
	r.Encountered += other.Encountered
	r.Matching += other.Matching
	r.Dispatched += other.Dispatched
}

// String implements fmt.Stringer for log lines.
func (r ScanResult) String() string {
	return fmt.Sprintf("encountered: %d, matching: %d, dispatched: %d", r.Encountered, r.Matching, r.Dispatched)
}
