package sftpscanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanResultAddSumsMatchingIntoMatching(t *testing.T) {
	// Regression test for the fixed counter bug (spec.md §9a,
	// DESIGN.md Open Question 2): merging a subdirectory's result must
	// not let its Encountered count leak into the parent's Matching.
	parent := ScanResult{Encountered: 10, Matching: 2, Dispatched: 1}
	sub := ScanResult{Encountered: 5, Matching: 3, Dispatched: 2}

	parent.Add(sub)

	assert.Equal(t, uint64(15), parent.Encountered)
	assert.Equal(t, uint64(5), parent.Matching)
	assert.Equal(t, uint64(3), parent.Dispatched)
}
