package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/luabuild/internal/config"
	"github.com/dshills/luabuild/internal/goal"
	"github.com/dshills/luabuild/internal/guard"
	"github.com/dshills/luabuild/internal/script"
	"github.com/dshills/luabuild/internal/script/lua"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"exit request", &lua.ScriptError{Err: &guard.ExitError{Code: 9}}, exitRequested},
		{"config error", &script.ConfigError{Err: script.ErrNilArgument}, exitConfig},
		{"parse error", &config.ParseError{Path: "luabuild.toml", Message: "bad"}, exitConfig},
		{"validation", fmt.Errorf("load: %w", &config.ValidationError{Path: "runtime.log_level"}), exitConfig},
		{"missing file", config.ErrFileNotFound, exitConfig},
		{"build error", &goal.BuildError{Message: "stop"}, exitBuildFailed},
		{"resource error", &script.ResourceError{Name: "x", Err: script.ErrResourceNotFound}, exitBuildFailed},
		{"other", errors.New("boom"), exitBuildFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPropertyFlags(t *testing.T) {
	p := propertyFlags{}
	for _, s := range []string{"env=prod", "empty", "url=a=b"} {
		if err := p.Set(s); err != nil {
			t.Fatalf("Set(%q) error: %v", s, err)
		}
	}
	if err := p.Set("=x"); err == nil {
		t.Error("Set(=x) accepted an empty name")
	}
	if got := p.String(); got != "empty=,env=prod,url=a=b" {
		t.Errorf("String() = %q", got)
	}
}

func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRunGoals(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
		wantErr  string
	}{
		{"help", []string{"-h"}, exitOK, "", "Usage: luabuild"},
		{"version flag", []string{"-version"}, exitOK, "luabuild dev", ""},
		{"no goal", []string{"-dir", dir}, exitConfig, "", "no goal given"},
		{"unknown goal", []string{"-dir", dir, "deploy"}, exitConfig, "", "unknown goal"},
		{"bad log level", []string{"-log-level", "loud", "version"}, exitConfig, "", "invalid log level"},
		{"version goal", []string{"-dir", dir, "version"}, exitOK, "runtime: Lua 5.1", ""},
		{"execute print", []string{"-dir", dir, "-D", "who=world", "-source", "print('hello ' .. properties.who)", "execute"}, exitOK, "hello world\n", ""},
		{"execute args", []string{"-dir", dir, "execute", "print(basedir ~= nil)"}, exitOK, "true\n", ""},
		{"fail", []string{"-dir", dir, "execute", "fail('no release today')"}, exitBuildFailed, "", "no release today"},
		{"exit request", []string{"-dir", dir, "execute", "os.exit(7)"}, exitRequested, "", "requested exit code 7"},
		{"syntax error", []string{"-dir", dir, "execute", "x = = 1"}, exitBuildFailed, "", "execute failed"},
		{"empty source", []string{"-dir", dir, "execute"}, exitConfig, "", "empty source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := runCLI(t, tt.args...)
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d\nstderr: %s", code, tt.wantCode, stderr)
			}
			if !strings.Contains(stdout, tt.wantOut) {
				t.Errorf("stdout = %q, want it to contain %q", stdout, tt.wantOut)
			}
			if !strings.Contains(stderr, tt.wantErr) {
				t.Errorf("stderr = %q, want it to contain %q", stderr, tt.wantErr)
			}
		})
	}
}

func TestRunConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "luabuild.toml")
	content := `
[project]
name = "demo"

[properties]
greeting = "hi"

[runtime]
capabilities = ["no-such-capability"]
`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	code, _, stderr := runCLI(t, "-config", cfgFile, "version")
	if code != exitConfig || !strings.Contains(stderr, "no-such-capability") {
		t.Errorf("unknown capability: code %d, stderr %q", code, stderr)
	}

	if err := os.WriteFile(cfgFile, []byte(strings.Replace(content, `["no-such-capability"]`, `[]`, 1)), 0o644); err != nil {
		t.Fatal(err)
	}
	code, stdout, stderr := runCLI(t, "-dir", dir, "-D", "greeting=hey", "execute", "print(project.name, properties.greeting)")
	if code != exitOK {
		t.Fatalf("code %d, stderr %q", code, stderr)
	}
	if stdout != "demo\they\n" {
		t.Errorf("stdout = %q", stdout)
	}

	code, _, _ = runCLI(t, "-config", filepath.Join(dir, "missing.toml"), "version")
	if code != exitConfig {
		t.Errorf("missing config file: code %d, want %d", code, exitConfig)
	}
}
