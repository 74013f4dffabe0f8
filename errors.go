package minimact

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine's recoverable failure modes. Every failure
// degrades to the full-reconciliation path; none of these should ever abort
// the host process.
var (
	// ErrMiss signals that the predictor cannot safely produce patches for a
	// change batch. Callers check it with errors.Is and fall back to Diff.
	ErrMiss = errors.New("prediction miss")

	// ErrRemountRequired signals that a hot-reload template change is
	// structurally incompatible with the mounted tree and the instance must
	// be remounted instead of patched.
	ErrRemountRequired = errors.New("remount required")

	// ErrNoTemplateMap signals that no template map is registered (or loaded
	// yet) for a component type.
	ErrNoTemplateMap = errors.New("no template map for component")

	// ErrNoKeyBinding signals a loop without an identifiable per-element
	// identity. Extraction fails loudly here: positional diffing of
	// reordered loops produces incorrect patches.
	ErrNoKeyBinding = errors.New("loop has no stable key binding")
)

// MissError wraps ErrMiss with the reason the batch could not be predicted.
type MissError struct {
	Reason string
}

func (e *MissError) Error() string { return "prediction miss: " + e.Reason }

func (e *MissError) Unwrap() error { return ErrMiss }

func missf(format string, args ...any) error {
	return &MissError{Reason: fmt.Sprintf(format, args...)}
}

// PathError reports a structural path that failed to resolve against a tree.
// During patch application it is recoverable per patch: the applier skips
// the one patch, logs it and continues the batch.
type PathError struct {
	Path  Path
	Depth int
}

func (e *PathError) Error() string {
	return fmt.Sprintf("path %q does not resolve (failed at depth %d)", e.Path.String(), e.Depth)
}

// ExtractError reports a region the extractor could not process, carrying
// the structural path of the offending region.
type ExtractError struct {
	Path Path
	Err  error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract at %q: %v", e.Path.String(), e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// ExtractWarning is a non-fatal extraction diagnostic, e.g. a mutable
// attribute that could not be parameterized and therefore will never be
// hot-patched.
type ExtractWarning struct {
	Path    Path
	Message string
}

func (w ExtractWarning) String() string {
	return fmt.Sprintf("%s: %s", w.Path.String(), w.Message)
}
