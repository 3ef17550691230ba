package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	origVersion := Version
	Version = "0.1.0-test"
	defer func() { Version = origVersion }()

	buf := &bytes.Buffer{}
	versionCmd.SetOut(buf)
	defer versionCmd.SetOut(nil)
	versionCmd.Run(versionCmd, nil)

	out := buf.String()
	for _, want := range []string{"Tether 0.1.0-test", "Git Commit:", "Build Date:", "Go Version:"} {
		if !strings.Contains(out, want) {
			t.Errorf("version output = %q, want it to contain %q", out, want)
		}
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"audit", "completion", "run", "validate", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("Find(%q) = %v, %v; want the %s command", name, cmd, err, name)
		}
	}

	for _, name := range []string{"query", "prune"} {
		cmd, _, err := rootCmd.Find([]string{"audit", name})
		if err != nil || cmd.Name() != name {
			t.Errorf("Find(audit %s) = %v, %v; want the audit %s command", name, cmd, err, name)
		}
	}
}
