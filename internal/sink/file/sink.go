// Package file implements a line-oriented discovery log on the local filesystem.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JakeFAU/idprobe/internal/probe"
)

// DefaultPath is the discovery log used when none is configured.
const DefaultPath = "valid_urls.log"

// Config captures the parameters for the discovery log.
type Config struct {
	// Path is the log file. It is truncated when the sink is opened.
	Path string `mapstructure:"path" yaml:"path"`
}

// Sink appends one URL per line and syncs after every write.
type Sink struct {
	mu     sync.Mutex
	path   string
	f      *os.File
	closed bool
}

// New creates (or truncates) the log file and its parent directories.
func New(cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("discovery log path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(filepath.Clean(cfg.Path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open discovery log: %w", err)
	}
	return &Sink{path: cfg.Path, f: f}, nil
}

// Append implements probe.DiscoverySink. Concurrent calls never interleave
// within a line.
func (s *Sink) Append(ctx context.Context, d probe.Discovery) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("append discovery: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("discovery log is closed")
	}
	if _, err := fmt.Fprintln(s.f, d.URL); err != nil {
		return fmt.Errorf("write discovery: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync discovery log: %w", err)
	}
	return nil
}

// Path returns the log location.
func (s *Sink) Path() string {
	return s.path
}

// Close flushes and closes the log. Repeated calls are no-ops.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("close discovery log: %w", err)
	}
	return nil
}
