package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

const defaultDebounce = 500 * time.Millisecond

// ParseConfig decodes a YAML provider catalogue.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config

	err := yaml.Unmarshal(data, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decode providers yaml: %w", err)
	}

	return cfg, nil
}

// FileSource feeds a Registry from a YAML file and reloads it on change.
type FileSource struct {
	path     string
	reg      *Registry
	debounce time.Duration
}

func NewFileSource(path string, reg *Registry) *FileSource {
	return &FileSource{path: path, reg: reg, debounce: defaultDebounce}
}

// Load reads the file once into the registry. Descriptor-level configuration
// errors are logged and do not fail the load; an unreadable or undecodable
// file does.
func (s *FileSource) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read %s: %w", s.path, err)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return err
	}

	err = s.reg.Load(cfg)
	if err != nil {
		var cerr *ConfigurationError
		if !errors.As(err, &cerr) {
			return fmt.Errorf("load registry: %w", err)
		}

		slog.Error("some providers were rejected", "path", s.path, "error", err)
	}

	return nil
}

// Watch reloads the file whenever it changes until ctx is done. The parent
// directory is watched so that editors replacing the file by rename are seen.
func (s *FileSource) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}

	dir := filepath.Dir(s.path)

	err = w.Add(dir)
	if err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go s.loop(ctx, w)

	return nil
}

func (s *FileSource) loop(ctx context.Context, w *fsnotify.Watcher) {
	defer w.Close()

	var (
		mu    sync.Mutex
		timer *time.Timer
	)

	target := filepath.Clean(s.path)

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()

			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}

			if filepath.Clean(ev.Name) != target {
				continue
			}

			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}

			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(s.debounce, func() {
				err := s.Load()
				if err != nil {
					slog.Error("provider config reload failed, keeping previous catalogue", "path", s.path, "error", err)
				}
			})
			mu.Unlock()

		case err, ok := <-w.Errors:
			if !ok {
				return
			}

			slog.Warn("provider config watcher error", "error", err)
		}
	}
}
