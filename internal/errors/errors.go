// Package errors implements the dispatcher's closed error taxonomy: a
// fluent builder (ported from birdnet-go's internal/errors package)
// narrowed to the seven categories named in the specification, plus a
// table of stable, grep-able codes matching the original's inline
// "[E01003]"-style log markers.
package errors

import (
	"errors"
	"fmt"
	"sync"
)

// Category is one of the seven taxonomy entries. Unlike the teacher's
// open-ended ErrorCategory, this taxonomy is closed: every dispatcher
// error is exactly one of these.
type Category string

const (
	// CategoryConnection: broker or SFTP reachable but erroring.
	CategoryConnection Category = "connection"
	// CategoryDisconnected: session died mid-operation; triggers reconnect.
	CategoryDisconnected Category = "disconnected"
	// CategoryConnectionInterrupted: reconnect aborted by shutdown.
	CategoryConnectionInterrupted Category = "connection_interrupted"
	// CategoryNoSuchFile: remote file gone; non-retryable, record cleaned.
	CategoryNoSuchFile Category = "no_such_file"
	// CategoryFile: local filesystem operation failed.
	CategoryFile Category = "file"
	// CategoryPersistence: catalog operation failed.
	CategoryPersistence Category = "persistence"
	// CategoryOther: conversions, unexpected conditions.
	CategoryOther Category = "other"
)

// Code is a stable, grep-able identifier attached to an error for log
// correlation, mirroring the original's "[E01003]" markers.
type Code string

const (
	CodeSFTPOpenFailed       Code = "E01001"
	CodeSFTPStatFailed       Code = "E01002"
	CodeDownloadFailed       Code = "E01003"
	CodeReconnectFailed      Code = "E01004"
	CodeNoSuchFile           Code = "E02001"
	CodePersistenceDelete    Code = "E02002"
	CodePersistenceInsert    Code = "E02003"
	CodePersistenceUpdate    Code = "E02004"
	CodeCommandChannelClosed Code = "E02005"
	CodeLocalFileCreate      Code = "E03001"
	CodeLocalFileRename      Code = "E03002"
	CodeLocalDirCreate       Code = "E03003"
	CodeHardlink             Code = "E03004"
	CodeConversion           Code = "E04001"
	CodeBrokerPublish        Code = "E05001"
	CodeBrokerConsume        Code = "E05002"
)

// DispatcherError is the builder's product: an underlying error plus
// the component that raised it, its category, code, and free-form
// context. It mirrors the shape of birdnet-go's EnhancedError, trimmed
// to this system's closed taxonomy.
type DispatcherError struct {
	mu        sync.RWMutex
	err       error
	component string
	category  Category
	code      Code
	context   map[string]any
}

// Error implements the error interface.
func (e *DispatcherError) Error() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.code != "" {
		return fmt.Sprintf("[%s] %s: %s", e.code, e.component, e.err)
	}
	return fmt.Sprintf("%s: %s", e.component, e.err)
}

// Unwrap allows errors.Is/As to see through to the wrapped cause.
func (e *DispatcherError) Unwrap() error { return e.err }

// Category returns the taxonomy entry this error belongs to.
func (e *DispatcherError) Category() Category {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.category
}

// Code returns the stable log code, if one was set.
func (e *DispatcherError) Code() Code {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.code
}

// Context returns a copy of the attached context map.
func (e *DispatcherError) Context() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]any, len(e.context))
	for k, v := range e.context {
		out[k] = v
	}
	return out
}

// Builder accumulates error metadata before Build() produces an
// immutable *DispatcherError, mirroring the teacher's fluent
// New(err).Component(...).Category(...).Context(...).Build() chain.
type Builder struct {
	err       error
	component string
	category  Category
	code      Code
	context   map[string]any
}

// New starts a builder wrapping err.
func New(err error) *Builder {
	return &Builder{err: err, category: CategoryOther}
}

// Newf starts a builder wrapping a formatted error.
func Newf(format string, args ...any) *Builder {
	return New(fmt.Errorf(format, args...))
}

// Component records which package raised the error.
func (b *Builder) Component(name string) *Builder {
	b.component = name
	return b
}

// Category sets the taxonomy entry.
func (b *Builder) Category(c Category) *Builder {
	b.category = c
	return b
}

// Code attaches a stable log code.
func (b *Builder) Code(c Code) *Builder {
	b.code = c
	return b
}

// Context attaches a key/value pair of diagnostic context.
func (b *Builder) Context(key string, value any) *Builder {
	if b.context == nil {
		b.context = make(map[string]any)
	}
	b.context[key] = value
	return b
}

// Build produces the immutable error.
func (b *Builder) Build() *DispatcherError {
	return &DispatcherError{
		err:       b.err,
		component: b.component,
		category:  b.category,
		code:      b.code,
		context:   b.context,
	}
}

// CategoryOf extracts the Category from err if it (or something it
// wraps) is a *DispatcherError, otherwise CategoryOther.
func CategoryOf(err error) Category {
	var de *DispatcherError
	if errors.As(err, &de) {
		return de.Category()
	}
	return CategoryOther
}

// IsDisconnected reports whether err is a Disconnected-category error,
// the signal that drives reconnect-and-retry loops.
func IsDisconnected(err error) bool {
	return CategoryOf(err) == CategoryDisconnected
}

// IsNoSuchFile reports whether err is a NoSuchFile-category error, the
// signal that a remote file vanished and its pending row was cleaned.
func IsNoSuchFile(err error) bool {
	return CategoryOf(err) == CategoryNoSuchFile
}
