package supervisor

import (
	"testing"

	"github.com/1Optic/cortex-dispatcher/internal/conf"
	"github.com/1Optic/cortex-dispatcher/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFilterDefaultsToAllFilter(t *testing.T) {
	f, err := buildFilter(nil)
	require.NoError(t, err)
	assert.IsType(t, core.AllFilter{}, f)
}

func TestBuildFilterAllTakesPrecedence(t *testing.T) {
	f, err := buildFilter(&conf.Filter{All: true, Regex: &conf.RegexFilter{Pattern: `.*\.csv$`}})
	require.NoError(t, err)
	assert.IsType(t, core.AllFilter{}, f)
}

func TestBuildFilterBuildsRegexFilter(t *testing.T) {
	f, err := buildFilter(&conf.Filter{Regex: &conf.RegexFilter{Pattern: `.*\.csv$`}})
	require.NoError(t, err)
	assert.True(t, f.Matches("a.csv"))
	assert.False(t, f.Matches("a.txt"))
}

func TestBuildFilterRejectsInvalidRegex(t *testing.T) {
	_, err := buildFilter(&conf.Filter{Regex: &conf.RegexFilter{Pattern: `[`}})
	assert.Error(t, err)
}

func newWiringSupervisor() *Supervisor {
	return &Supervisor{
		sources: make(map[string]*core.Source),
		targets: make(map[string]*core.Target),
	}
}

func TestBuildConnectionsWiresMatchingSourceAndTarget(t *testing.T) {
	s := newWiringSupervisor()
	s.settings = &conf.Settings{
		DirectorySources: []conf.DirectorySource{{Name: "in"}},
		DirectoryTargets: []conf.DirectoryTarget{{Name: "out"}},
		Connections:      []conf.Connection{{Source: "in", Target: "out"}},
	}
	require.NoError(t, s.buildTargets())
	require.NoError(t, s.buildSources())
	require.NoError(t, s.buildConnections())

	src := s.sources["in"]
	require.Len(t, src.Connections, 1)
	assert.Equal(t, s.targets["out"], src.Connections[0].Target)
}

func TestBuildConnectionsRejectsUnknownSource(t *testing.T) {
	s := newWiringSupervisor()
	s.settings = &conf.Settings{
		DirectoryTargets: []conf.DirectoryTarget{{Name: "out"}},
		Connections:      []conf.Connection{{Source: "missing", Target: "out"}},
	}
	require.NoError(t, s.buildTargets())
	require.NoError(t, s.buildSources())
	assert.ErrorContains(t, s.buildConnections(), `unknown source "missing"`)
}

func TestBuildConnectionsRejectsUnknownTarget(t *testing.T) {
	s := newWiringSupervisor()
	s.settings = &conf.Settings{
		DirectorySources: []conf.DirectorySource{{Name: "in"}},
		Connections:      []conf.Connection{{Source: "in", Target: "missing"}},
	}
	require.NoError(t, s.buildTargets())
	require.NoError(t, s.buildSources())
	assert.ErrorContains(t, s.buildConnections(), `unknown target "missing"`)
}
