package toml

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	StateDirKey     = "state.dir"
	LedgerPathKey   = "ledger.path"
	StrategyPathKey = "strategy.path"

	defaultStateDir  = ".xhs"
	ledgerFileName   = "ledger.toml"
	strategyFileName = "strategy.toml"
	stateFileMode    = 0o600
	stateDirMode     = 0o700
)

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

// document is one TOML state file. Repositories sharing a path share its lock.
type document struct {
	name string
	path string
	mu   *sync.RWMutex
}

func openDocument(cfg *viper.Viper, pathKey string, fileName string, name string) (document, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	path := cfg.GetString(pathKey)
	if path == "" {
		dir := cfg.GetString(StateDirKey)
		if dir == "" {
			dir = defaultStateDir
		}
		path = filepath.Join(dir, fileName)
	}

	path, err := normalizePath(path)
	if err != nil {
		return document{}, fmt.Errorf("resolve %s path: %w", name, err)
	}

	return document{name: name, path: path, mu: lockForPath(path)}, nil
}

func (d document) Path() string {
	return d.path
}

// read decodes the file into out. A missing file leaves out untouched and reports false.
func (d document) read(out any) (bool, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s file: %w", d.name, err)
	}

	if err := toml.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode %s file: %w", d.name, err)
	}

	return true, nil
}

func (d document) write(in any) error {
	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, stateDirMode); err != nil {
		return fmt.Errorf("create %s directory: %w", d.name, err)
	}

	data, err := toml.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s file: %w", d.name, err)
	}

	tempFile, err := os.CreateTemp(dir, "."+d.name+"-*.toml.tmp")
	if err != nil {
		return fmt.Errorf("create temp %s file: %w", d.name, err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp %s file: %w", d.name, err)
	}

	if err := tempFile.Chmod(stateFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp %s file: %w", d.name, err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp %s file: %w", d.name, err)
	}

	if err := os.Rename(tempName, d.path); err != nil {
		return fmt.Errorf("replace %s file: %w", d.name, err)
	}

	cleanup = false
	return nil
}

func normalizePath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}

	return parsed
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.Format(time.RFC3339Nano)
}
