package manuals

import "errors"

// Sentinel errors surfaced across component boundaries. Per-chunk and
// per-tool-call failures inside ingestion, retrieval, and answer
// composition are never propagated as errors — they are captured as
// warnings on the relevant output (see the error handling design notes
// in SPEC_FULL.md §7). These sentinels are reserved for the few cases
// that do abort a call: structural ingestion failures and invalid
// top-level configuration.
var (
	// ErrDocumentNotFound reports that a document ID does not exist. No
	// function in this module returns it.
	ErrDocumentNotFound = errors.New("manuals: document not found")

	// ErrDocumentExists is returned when trying to ingest a duplicate path.
	ErrDocumentExists = errors.New("manuals: document already exists")

	// ErrUnsupportedFormat is returned for unrecognized file formats.
	ErrUnsupportedFormat = errors.New("manuals: unsupported document format")

	// ErrParsingFailed reports that document parsing failed outright. No
	// function in this module returns or wraps it: ingest.Run reports a
	// parser failure with its own error that wraps the parser's error.
	ErrParsingFailed = errors.New("manuals: parsing failed")

	// ErrEmbeddingCoverage is returned when ingestion is configured
	// fail-fast and embedding coverage falls below the configured
	// minimum fraction.
	ErrEmbeddingCoverage = errors.New("manuals: embedding coverage below configured minimum")

	// ErrLLMUnavailable reports that the LLM provider is unreachable. No
	// function in this module returns it.
	ErrLLMUnavailable = errors.New("manuals: LLM provider unavailable")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("manuals: store is closed")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("manuals: invalid configuration")

	// ErrVisionRequired is returned when a document requires vision
	// processing but no vision provider is configured.
	ErrVisionRequired = errors.New("manuals: vision provider required for this document")

	// ErrContractViolation names a visual artifact contract violation.
	// visual.Validate does not return it: missing files and row or
	// manifest violations are reported as strings in its ValidationResult.
	ErrContractViolation = errors.New("manuals: visual artifact contract violation")
)

// AdapterError wraps a failure from an external collaborator (OCR,
// vision, embedding, LLM, reranker, tool). Component boundaries convert
// these into warning strings rather than propagating the error itself;
// AdapterError exists so callers that do want the underlying cause can
// unwrap it with errors.As.
type AdapterError struct {
	Adapter string
	Op      string
	Err     error
}

func (e *AdapterError) Error() string {
	return "manuals: " + e.Adapter + " " + e.Op + ": " + e.Err.Error()
}

func (e *AdapterError) Unwrap() error { return e.Err }

// NewAdapterError builds an AdapterError for the given adapter/op pair.
func NewAdapterError(adapter, op string, err error) *AdapterError {
	return &AdapterError{Adapter: adapter, Op: op, Err: err}
}
