package executor

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Metacharacters that force the command through `sh -c` instead of a
// direct invocation line.
const shellMeta = "|&;<>(){}"

// escapeSingleQuotes makes a string safe to embed between single quotes in
// a POSIX shell word: each ' becomes '\''.
func escapeSingleQuotes(s string) string {
	return strings.ReplaceAll(s, "'", `'\''`)
}

// composeDriver builds the small driver script that runs the validated
// command and preserves its exit status across the post-command grace
// delay. The driver is the only place executable text is composed; every
// other component treats command strings as opaque.
func composeDriver(command string, grace time.Duration) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("set -u\n")

	if strings.ContainsAny(command, shellMeta) {
		fmt.Fprintf(&b, "sh -c '%s'\n", escapeSingleQuotes(command))
	} else {
		b.WriteString(command + "\n")
	}
	b.WriteString("status=$?\n")
	if grace > 0 {
		// Late async work (log flushes, child writers) gets a moment to
		// drain before the driver exits.
		fmt.Fprintf(&b, "sleep %d\n", int(grace.Seconds()))
	}
	b.WriteString("exit $status\n")
	return b.String()
}

// writeDriver materializes the driver to a uniquely named temp file. The
// caller removes it on every exit path.
func writeDriver(script string) (string, error) {
	f, err := os.CreateTemp("", "agentyard-driver-*.sh")
	if err != nil {
		return "", fmt.Errorf("create driver: %w", err)
	}
	path := f.Name()
	if _, err := f.WriteString(script); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write driver: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close driver: %w", err)
	}
	if err := os.Chmod(path, 0o700); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("chmod driver: %w", err)
	}
	return path, nil
}
