//go:build linux

package dirwatch

import (
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
)

func TestEventOpFilterDefaultsWhenEmpty(t *testing.T) {
	assert.Equal(t, defaultOpFilter, eventOpFilter(nil))
	assert.Equal(t, defaultOpFilter, eventOpFilter([]string{}))
}

func TestEventOpFilterMapsConfiguredNames(t *testing.T) {
	op := eventOpFilter([]string{"close_write", "moved_to"})
	assert.NotZero(t, op&fsnotify.Write)
	assert.NotZero(t, op&fsnotify.Create)
	assert.Zero(t, op&fsnotify.Rename)
}

func TestEventOpFilterFallsBackOnUnknownNames(t *testing.T) {
	assert.Equal(t, defaultOpFilter, eventOpFilter([]string{"bogus"}))
}

func TestEventOpFilterSupportsRemoveAndChmod(t *testing.T) {
	op := eventOpFilter([]string{"remove", "chmod"})
	assert.Equal(t, fsnotify.Remove|fsnotify.Chmod, op)
}
