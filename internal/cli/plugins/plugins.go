// Package plugins runs external tracediff-<command> binaries for commands
// tracediff does not build in, such as trace disassemblers or emulator
// specific converters.
//
// A plugin receives the remaining arguments and the caller's stdio, plus a
// small environment contract:
//
//	TRACEDIFF_BIN         path of the invoking tracediff binary
//	TRACEDIFF_PLUGIN      plugin command name
//	TRACEDIFF_PLUGIN_DIR  per-user plugin directory
//
// Plugins that need to compare traces can run "$TRACEDIFF_BIN compare".
package plugins

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
)

// Prefix is prepended to a command name to form the plugin binary name.
const Prefix = "tracediff-"

// Environment variables set for every plugin process.
const (
	EnvBin       = "TRACEDIFF_BIN"
	EnvPlugin    = "TRACEDIFF_PLUGIN"
	EnvPluginDir = "TRACEDIFF_PLUGIN_DIR"
)

// ErrPluginNotFound is returned when no plugin binary can be located.
var ErrPluginNotFound = errors.New("plugin not found")

// searchDirs returns the directories searched before PATH: the directory of
// the tracediff binary, then the per-user plugin directory.
func searchDirs() []string {
	var dirs []string
	if execPath, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(execPath))
	}
	if dir, err := Dir(); err == nil {
		dirs = append(dirs, dir)
	}
	return dirs
}

// FindPlugin returns the path of the tracediff-<command> binary, searching
// the tracediff binary's directory, then ~/.tracediff/plugins, then PATH.
func FindPlugin(command string) (string, error) {
	name := Prefix + command

	for _, dir := range searchDirs() {
		if candidate := filepath.Join(dir, name); isExecutable(candidate) {
			return candidate, nil
		}
	}
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", ErrPluginNotFound
}

// List returns the sorted command names of all installed plugins across the
// search directories and PATH.
func List() []string {
	dirs := append(searchDirs(), filepath.SplitList(os.Getenv("PATH"))...)

	var names []string
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			name, ok := strings.CutPrefix(e.Name(), Prefix)
			if !ok || name == "" {
				continue
			}
			if isExecutable(filepath.Join(dir, e.Name())) {
				names = append(names, name)
			}
		}
	}

	slices.Sort(names)
	return slices.Compact(names)
}

// Dir returns the per-user plugin directory.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".tracediff", "plugins"), nil
}

// Invocation describes one plugin run.
type Invocation struct {
	Command string
	Path    string
	Args    []string
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
}

// Environ returns the process environment extended with the plugin contract
// variables.
func (inv *Invocation) Environ() []string {
	env := os.Environ()
	if bin, err := os.Executable(); err == nil {
		env = append(env, EnvBin+"="+bin)
	}
	env = append(env, EnvPlugin+"="+inv.Command)
	if dir, err := Dir(); err == nil {
		env = append(env, EnvPluginDir+"="+dir)
	}
	return env
}

// Execute runs the plugin and returns its exit code. Failures to start the
// plugin are reported on inv.Stderr and yield exit code 2. Cancelling ctx
// kills the plugin and returns ctx's error.
func Execute(ctx context.Context, inv *Invocation) (int, error) {
	cmd := exec.CommandContext(ctx, inv.Path, inv.Args...)
	cmd.Env = inv.Environ()
	cmd.Stdin = inv.Stdin
	cmd.Stdout = inv.Stdout
	cmd.Stderr = inv.Stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		if inv.Stderr != nil {
			_, _ = fmt.Fprintf(inv.Stderr, "Error executing plugin %s: %v\n", inv.Command, err)
		}
		return 2, nil
	}

	return 0, nil
}

// FormatNotFoundError explains how to install a missing plugin and lists the
// plugins that are installed.
func FormatNotFoundError(command string, installed []string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "unknown command %q for \"tracediff\"\n", command)
	sb.WriteString("\nIf this is a plugin, install the binary as one of:\n")
	fmt.Fprintf(&sb, "  - %s%s in the same directory as tracediff\n", Prefix, command)
	fmt.Fprintf(&sb, "  - ~/.tracediff/plugins/%s%s\n", Prefix, command)
	fmt.Fprintf(&sb, "  - %s%s anywhere in your PATH\n", Prefix, command)

	if len(installed) > 0 {
		fmt.Fprintf(&sb, "\nInstalled plugins: %s\n", strings.Join(installed, ", "))
	}

	sb.WriteString("\nRun 'tracediff --help' for usage.")

	return sb.String()
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode()&0111 != 0
}
