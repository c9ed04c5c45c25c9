package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// reloadDelay coalesces the burst of events an editor save produces.
const reloadDelay = 200 * time.Millisecond

var envRef = regexp.MustCompile(`\$\{[^}]+\}`)

// expandEnvVars substitutes ${NAME} and ${NAME:default}. A variable that is
// set but empty wins over the default.
func expandEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		name, def, _ := strings.Cut(ref[2:len(ref)-1], ":")
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return def
	})
}

// LoadFile reads a YAML file, expands env vars, and unmarshals into dest.
func LoadFile(path string, dest any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(raw))), dest); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// snapshot is one consistent generation of the three config files.
type snapshot struct {
	cfg       *Config
	models    *ModelsConfig
	providers *ProvidersConfig
}

type validator interface{ Validate() error }

// Loader holds gateway.yaml, models.yaml and providers.yaml. Readers always
// see the three files from the same successful load.
type Loader struct {
	dir     string
	current atomic.Pointer[snapshot]
	logger  *slog.Logger

	mu       sync.Mutex
	watchers []func()
}

func NewLoader(configDir string, logger *slog.Logger) *Loader {
	return &Loader{dir: configDir, logger: logger}
}

// Load reads and validates all three files. Nothing is swapped in unless
// every file parses and validates.
func (l *Loader) Load() error {
	next := &snapshot{cfg: DefaultConfig(), models: &ModelsConfig{}, providers: &ProvidersConfig{}}
	files := []struct {
		name string
		dest validator
	}{
		{"gateway.yaml", next.cfg},
		{"models.yaml", next.models},
		{"providers.yaml", next.providers},
	}
	for _, f := range files {
		if err := LoadFile(filepath.Join(l.dir, f.name), f.dest); err != nil {
			return err
		}
		if err := f.dest.Validate(); err != nil {
			return fmt.Errorf("invalid %s: %w", f.name, err)
		}
	}

	l.current.Store(next)
	l.logger.Info("configuration loaded",
		"dir", l.dir,
		"models", len(next.models.Models),
		"providers", len(next.providers.Providers),
	)
	return nil
}

// Config, Models and Providers return nil before the first successful Load.
func (l *Loader) Config() *Config {
	if s := l.current.Load(); s != nil {
		return s.cfg
	}
	return nil
}

func (l *Loader) Models() *ModelsConfig {
	if s := l.current.Load(); s != nil {
		return s.models
	}
	return nil
}

func (l *Loader) Providers() *ProvidersConfig {
	if s := l.current.Load(); s != nil {
		return s.providers
	}
	return nil
}

// OnReload registers a callback that fires after config is reloaded.
func (l *Loader) OnReload(fn func()) {
	l.mu.Lock()
	l.watchers = append(l.watchers, fn)
	l.mu.Unlock()
}

// Watch reloads on changes to *.yaml files in the config directory until ctx
// is done. Callbacks registered with OnReload run after each successful reload.
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir %s: %w", l.dir, err)
	}

	go func() {
		defer watcher.Close()
		var (
			timer   *time.Timer
			pending <-chan time.Time
		)
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Ext(event.Name) != ".yaml" {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				l.logger.Debug("config file changed", "file", event.Name, "op", event.Op.String())
				if timer == nil {
					timer = time.NewTimer(reloadDelay)
				} else {
					timer.Reset(reloadDelay)
				}
				pending = timer.C
			case <-pending:
				pending = nil
				l.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Error("fsnotify error", "error", err)
			}
		}
	}()

	return nil
}

func (l *Loader) reload() {
	if err := l.Load(); err != nil {
		l.logger.Error("config reload rejected, keeping previous configuration", "error", err)
		return
	}
	l.mu.Lock()
	watchers := slices.Clone(l.watchers)
	l.mu.Unlock()
	for _, fn := range watchers {
		fn()
	}
}
