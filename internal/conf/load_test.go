package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRequiresExactlyOneCatalogBackend(t *testing.T) {
	s := ExampleSettings()
	s.Sqlite = nil
	s.Postgresql = nil
	assert.ErrorContains(t, Validate(s), "one of postgresql.url or sqlite.path")
}

func TestValidateRejectsBothCatalogBackends(t *testing.T) {
	s := ExampleSettings()
	s.Postgresql = &Postgresql{URL: "postgres://localhost/dispatcher"}
	assert.ErrorContains(t, Validate(s), "mutually exclusive")
}

func TestValidateAcceptsExampleSettings(t *testing.T) {
	assert.NoError(t, Validate(ExampleSettings()))
}

func TestValidateRejectsConnectionToUnknownSource(t *testing.T) {
	s := ExampleSettings()
	s.Connections = []Connection{{Source: "does-not-exist", Target: "archive"}}
	assert.ErrorContains(t, Validate(s), `unknown source "does-not-exist"`)
}

func TestValidateRejectsConnectionToUnknownTarget(t *testing.T) {
	s := ExampleSettings()
	s.Connections = []Connection{{Source: "local-drop", Target: "does-not-exist"}}
	assert.ErrorContains(t, Validate(s), `unknown target "does-not-exist"`)
}
