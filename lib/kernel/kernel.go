// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kernel

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
)

// Spec is the content of kernel.json.
type Spec struct {
	Argv        []string          `json:"argv"`
	DisplayName string            `json:"display_name"`
	Language    string            `json:"language"`
	Env         map[string]string `json:"env,omitempty"`
	Metadata    Metadata          `json:"metadata"`
}

// Metadata is kernel.json's metadata object.
type Metadata struct {
	Wrangler *Ownership `json:"wrangler,omitempty"`
}

// Ownership marks a kernel as managed by wrangler.
type Ownership struct {
	Environment string `json:"environment"`
	Prefix      string `json:"prefix"`
}

// Interpreter returns argv[0], or "" for a malformed spec.
func (s *Spec) Interpreter() string {
	if len(s.Argv) == 0 {
		return ""
	}
	return s.Argv[0]
}

// Config configures a Registry.
type Config struct {
	// Dir is the Jupyter kernels directory.
	Dir string

	Logger *slog.Logger
}

// Registry manages kernel registrations in one kernels directory.
type Registry struct {
	dir    string
	logger *slog.Logger
}

// New returns a Registry.
func New(config Config) *Registry {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{dir: config.Dir, logger: logger}
}

// DefaultDir returns the per-user Jupyter kernels directory:
// $JUPYTER_DATA_DIR/kernels, else $XDG_DATA_HOME/jupyter/kernels, else
// ~/.local/share/jupyter/kernels.
func DefaultDir() string {
	if dir := os.Getenv("JUPYTER_DATA_DIR"); dir != "" {
		return filepath.Join(dir, "kernels")
	}
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "jupyter", "kernels")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "jupyter", "kernels")
}

// Dir returns the kernels directory.
func (r *Registry) Dir() string {
	return r.dir
}

// SpecFor builds the kernel.json an environment registers.
func SpecFor(spec wrangler.EnvironmentSpec, prefix string) Spec {
	var env map[string]string
	if len(spec.EnvVars) > 0 {
		env = make(map[string]string, len(spec.EnvVars))
		for key, value := range spec.EnvVars {
			env[key] = os.ExpandEnv(value)
		}
	}
	return Spec{
		Argv:        []string{filepath.Join(prefix, "bin", "python"), "-m", "ipykernel_launcher", "-f", "{connection_file}"},
		DisplayName: spec.KernelDisplayName(),
		Language:    "python",
		Env:         env,
		Metadata:    Metadata{Wrangler: &Ownership{Environment: spec.ID, Prefix: prefix}},
	}
}

// Register writes the kernel for an environment installed at prefix,
// replacing any previous registration of the same name.
func (r *Registry) Register(spec wrangler.EnvironmentSpec, prefix string) error {
	kernel := SpecFor(spec, prefix)
	data, err := json.MarshalIndent(kernel, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding kernel.json for %s: %w", spec.ID, err)
	}
	dir := filepath.Join(r.dir, spec.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating kernel directory: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, "kernel.json"), append(data, '\n')); err != nil {
		return fmt.Errorf("registering kernel %s: %w", spec.ID, err)
	}
	r.logger.Info("kernel registered", "environment", spec.ID, "display_name", kernel.DisplayName)
	return nil
}

// Unregister removes a kernel. Removing an absent kernel succeeds.
func (r *Registry) Unregister(name string) error {
	dir := filepath.Join(r.dir, name)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("unregistering kernel %s: %w", name, err)
	}
	r.logger.Info("kernel unregistered", "environment", name)
	return nil
}

// Lookup reads a registered kernel. A missing kernel returns false
// with a nil error.
func (r *Registry) Lookup(name string) (*Spec, bool, error) {
	path := filepath.Join(r.dir, name, "kernel.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var spec Spec
	if err := json.Unmarshal(jsonc.ToJSON(data), &spec); err != nil {
		return nil, false, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &spec, true, nil
}

// Registered reports whether the environment's kernel exists and
// launches the interpreter under prefix.
func (r *Registry) Registered(environmentID, prefix string) (bool, error) {
	spec, ok, err := r.Lookup(environmentID)
	if err != nil || !ok {
		return false, err
	}
	return spec.Interpreter() == filepath.Join(prefix, "bin", "python"), nil
}

// Orphans lists managed kernels whose interpreter is missing, sorted
// by name.
func (r *Registry) Orphans() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing kernels: %w", err)
	}
	var orphans []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		spec, ok, err := r.Lookup(entry.Name())
		if err != nil {
			r.logger.Warn("skipping unreadable kernel", "kernel", entry.Name(), "error", err)
			continue
		}
		if !ok || spec.Metadata.Wrangler == nil {
			continue
		}
		if _, err := os.Stat(spec.Interpreter()); os.IsNotExist(err) {
			orphans = append(orphans, entry.Name())
		}
	}
	sort.Strings(orphans)
	return orphans, nil
}

// Cleanup unregisters every orphan and returns their names.
func (r *Registry) Cleanup() ([]string, error) {
	orphans, err := r.Orphans()
	if err != nil {
		return nil, err
	}
	for _, name := range orphans {
		if err := r.Unregister(name); err != nil {
			return nil, err
		}
	}
	return orphans, nil
}

func writeFileAtomic(path string, data []byte) error {
	temp, err := os.CreateTemp(filepath.Dir(path), ".kernel.json.tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(temp.Name())
	if _, err := temp.Write(data); err != nil {
		temp.Close()
		return err
	}
	if err := temp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(temp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(temp.Name(), path)
}
