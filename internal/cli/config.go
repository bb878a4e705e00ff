package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/goccy/go-yaml"
)

var (
	ErrConfig = errors.New("invalid config file")
)

// Flags a top-level config key does not reach. They can only be set in the
// command's own section, so "output" for the fetch commands never redirects
// an in-place insert.
var sectionOnly = map[string][]string{
	"insert": {"output"},
}

// Loads a YAML config file as a kong resolver.
//
// Top-level keys are flag names, with dashes or underscores ("skip-existing"
// or "skip_existing"). A mapping keyed by a command name holds values for that
// command only and wins over top-level keys. Flags whose environment variable
// is set are left alone. An empty file resolves nothing.
func yamlLoader(r io.Reader) (kong.Resolver, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	values := map[string]any{}
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	return kong.ResolverFunc(func(_ *kong.Context, parent *kong.Path, flag *kong.Flag) (any, error) {
		if envSet(flag.Envs) {
			return nil, nil
		}

		command := commandName(parent)
		if section, ok := values[command].(map[string]any); ok {
			if v, ok := lookup(section, flag.Name); ok {
				return v, nil
			}
		}

		if slices.Contains(sectionOnly[command], flag.Name) {
			return nil, nil
		}
		if v, ok := lookup(values, flag.Name); ok {
			return v, nil
		}
		return nil, nil
	}), nil
}

// Returns the value stored under any spelling of a flag name.
func lookup(values map[string]any, name string) (any, bool) {
	for _, key := range configKeys(name) {
		if v, ok := values[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// Returns the config keys a flag may be spelled as.
func configKeys(name string) []string {
	underscored := strings.ReplaceAll(name, "-", "_")
	if underscored == name {
		return []string{name}
	}
	return []string{name, underscored}
}

// Returns the name of the command owning the flags at path, or "" for the
// root.
func commandName(path *kong.Path) string {
	if path == nil || path.Command == nil {
		return ""
	}
	return path.Command.Name
}

// Whether any of the variables is set to a non-empty value.
func envSet(envs []string) bool {
	for _, env := range envs {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			return true
		}
	}
	return false
}
