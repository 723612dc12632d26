// Package tracelog implements ports.AgentTrace as a JSONL file sink
// backed by zerolog, matching the structured-logging style the rest of
// the module already uses for its own loggers (retrieval.Engine's
// zerolog.Logger field).
package tracelog

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/goreason/manuals/ports"
)

// FileTrace writes one JSON object per Log call to an underlying file.
type FileTrace struct {
	logger zerolog.Logger
	closer io.Closer
}

var _ ports.AgentTrace = (*FileTrace)(nil)

// Open builds a FileTrace appending to path. An empty path yields a
// trace that discards every event, so callers can wire tracing
// unconditionally and let the config's trace-file fields gate it.
func Open(path string) (*FileTrace, error) {
	if path == "" {
		return &FileTrace{logger: zerolog.New(io.Discard)}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileTrace{logger: zerolog.New(f).With().Timestamp().Logger(), closer: f}, nil
}

// Log implements ports.AgentTrace.
func (t *FileTrace) Log(payload map[string]any) {
	evt := t.logger.Log()
	for k, v := range payload {
		evt = evt.Interface(k, v)
	}
	evt.Send()
}

// Close releases the underlying file, if one was opened.
func (t *FileTrace) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}
