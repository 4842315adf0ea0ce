package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Source supplies raw values by key.
type Source interface {
	Name() string
	Lookup(key string) (string, bool)
}

// MapSource is a Source backed by a fixed set of values.
type MapSource struct {
	name   string
	values map[string]string
}

// NewMapSource creates a named Source from values.
func NewMapSource(name string, values map[string]string) *MapSource {
	return &MapSource{name: name, values: values}
}

func (m *MapSource) Name() string { return m.name }

func (m *MapSource) Lookup(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

type envSource struct {
	lookup func(string) (string, bool)
}

// EnvSource reads the process environment.
func EnvSource() Source {
	return envSource{lookup: os.LookupEnv}
}

func (envSource) Name() string { return "environment" }

func (e envSource) Lookup(key string) (string, bool) {
	return e.lookup(key)
}

// DotEnvSource reads KEY=VALUE lines from path. A missing file yields an
// empty source.
func DotEnvSource(path string) (Source, error) {
	values := map[string]string{}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewMapSource(path, values), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open env file %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, val, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = unquote(strings.TrimSpace(val))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	return NewMapSource(path, values), nil
}

func unquote(val string) string {
	if len(val) >= 2 {
		if (val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'') {
			return val[1 : len(val)-1]
		}
	}
	return val
}
