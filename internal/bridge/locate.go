// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ps "github.com/mitchellh/go-ps"
)

// BridgeBinaryName is the file name of the bridge binary we launch.
const BridgeBinaryName = "wa-bridge"

// FindBridgeBinary locates the wa-bridge binary. It searches, in order:
// the directory of the running executable, the current working
// directory, the local bin/ build output directory, and the wa-bridge/
// source directory. The error names every location searched.
func FindBridgeBinary() (string, error) {
	var candidates []string

	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), BridgeBinaryName))
	}
	candidates = append(candidates,
		filepath.Join(".", BridgeBinaryName),
		filepath.Join("bin", BridgeBinaryName),
		filepath.Join("wa-bridge", BridgeBinaryName),
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return path, nil
		}
		return abs, nil
	}

	return "", fmt.Errorf(
		"could not find %s binary (searched: %s); build it with: go build -o bin/%s ./cmd/%s",
		BridgeBinaryName, strings.Join(candidates, ", "), BridgeBinaryName, BridgeBinaryName)
}

// DefaultDataDir returns the per-user directory for bridge session data.
func DefaultDataDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return "", fmt.Errorf("determine data directory: %w", err)
		}
		base = home
	}
	return filepath.Join(base, "watrans"), nil
}

// findStaleInstance scans the process table for another running copy of
// the bridge binary that is not a child of this process. Spawn refuses
// to start while one exists, since two instances would fight over the
// same session store.
func findStaleInstance(binaryPath string) (int, bool) {
	procs, err := ps.Processes()
	if err != nil {
		return 0, false
	}

	name := binaryName(binaryPath)
	self := os.Getpid()
	for _, proc := range procs {
		if proc.Executable() != name {
			continue
		}
		if proc.Pid() == self || proc.PPid() == self {
			continue
		}
		return proc.Pid(), true
	}
	return 0, false
}

func binaryName(path string) string {
	return filepath.Base(path)
}
