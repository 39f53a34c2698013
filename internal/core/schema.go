package core

import _ "embed"

// Schema is the catalog DDL, embedded the way the original embedded
// its schema.sql (core/src/lib.rs, schema()/create_schema()). GORM's
// AutoMigrate drives actual table creation from the model tags in
// internal/catalog; this embed is kept for operators who want to
// inspect or hand-apply the raw DDL.
//
//go:embed schema.sql
var Schema string
