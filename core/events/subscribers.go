package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/adalundhe/skillvcs/core/versioning"
)

// LogSubscriber writes every event to a structured logger.
type LogSubscriber struct {
	logger *slog.Logger
}

func NewLogSubscriber(logger *slog.Logger) *LogSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSubscriber{logger: logger}
}

func (s *LogSubscriber) ID() string                    { return "log" }
func (s *LogSubscriber) Kinds() []versioning.EventKind { return nil }

func (s *LogSubscriber) OnEvent(event *VersionEvent) error {
	s.logger.Debug("version event",
		"id", event.ID,
		"kind", event.Kind,
		"document", event.DocumentID,
		"version", event.VersionLabel,
		"actor", event.Actor)
	return nil
}

// Journal appends events as JSON lines to a file. It is the audit trail of
// the CLI and is safe for use by a single bus.
type Journal struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

func NewJournal(fs afero.Fs, path string) *Journal {
	return &Journal{fs: fs, path: path}
}

func (j *Journal) ID() string                    { return "journal" }
func (j *Journal) Kinds() []versioning.EventKind { return nil }

func (j *Journal) OnEvent(event *VersionEvent) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.fs.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	f, err := j.fs.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append journal: %w", err)
	}
	return f.Close()
}

// ReadJournal returns every event recorded at path, oldest first.
func ReadJournal(fs afero.Fs, path string) ([]*VersionEvent, error) {
	f, err := fs.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var out []*VersionEvent
	dec := json.NewDecoder(f)
	for dec.More() {
		var ev VersionEvent
		if err := dec.Decode(&ev); err != nil {
			return out, fmt.Errorf("decode journal: %w", err)
		}
		out = append(out, &ev)
	}
	return out, nil
}

// FuncSubscriber adapts a function to Subscriber.
type FuncSubscriber struct {
	Name     string
	Filter   []versioning.EventKind
	Callback func(*VersionEvent) error
}

func (s FuncSubscriber) ID() string                        { return s.Name }
func (s FuncSubscriber) Kinds() []versioning.EventKind     { return s.Filter }
func (s FuncSubscriber) OnEvent(event *VersionEvent) error { return s.Callback(event) }
