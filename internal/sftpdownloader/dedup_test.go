package sftpdownloader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeduplicationEqualBySize(t *testing.T) {
	d := Deduplication{Enabled: true, Size: true}
	now := time.Now()
	existing := catalogFileInfo{Modified: now, Size: 120}

	assert.True(t, d.equal(existing, 120, now.Add(time.Hour), nil))
	assert.False(t, d.equal(existing, 121, now, nil))
}

func TestDeduplicationEqualByHash(t *testing.T) {
	d := Deduplication{Enabled: true, Size: true, Hash: true}
	now := time.Now()
	hash := "abc"
	existing := catalogFileInfo{Modified: now, Size: 120, Hash: &hash}

	assert.True(t, d.equal(existing, 120, now, &hash))

	other := "def"
	assert.False(t, d.equal(existing, 120, now, &other))
	assert.False(t, d.equal(existing, 120, now, nil))
}
