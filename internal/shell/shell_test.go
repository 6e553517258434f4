package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/luabuild/internal/guard"
	"github.com/dshills/luabuild/internal/script"
)

// echoSession returns "=" + code. A trailing backslash marks incomplete
// input.
type echoSession struct {
	evals  []string
	closed bool
}

func (s *echoSession) Eval(_ context.Context, code string) (string, error) {
	s.evals = append(s.evals, code)
	switch code {
	case "boom":
		return "", errors.New("kaboom")
	case "exit":
		return "", &guard.ExitError{Code: 3}
	case "quiet":
		return "", nil
	}
	return "=" + code, nil
}

func (s *echoSession) Complete(code string) bool {
	return !strings.HasSuffix(code, "\\")
}

func (s *echoSession) Close() error {
	s.closed = true
	return nil
}

type echoOpener struct {
	session *echoSession
	err     error
}

func (o *echoOpener) OpenSession(*script.Namespace, script.ResourceLoader, *script.Context, io.Writer) (script.Session, error) {
	if o.err != nil {
		return nil, o.err
	}
	o.session = &echoSession{}
	return o.session, nil
}

func runShell(t *testing.T, input string, bindings *script.Context) (*echoOpener, string, error) {
	t.Helper()
	opener := &echoOpener{}
	var out bytes.Buffer
	sh := New(opener, WithInput(strings.NewReader(input)), WithOutput(&out))
	err := sh.Run(context.Background(), script.NewNamespace("test", nil), nil, bindings)
	return opener, out.String(), err
}

func TestShellEvaluatesLines(t *testing.T) {
	opener, out, err := runShell(t, "1+1\n\nquiet\nboom\n", nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	want := []string{"1+1", "quiet", "boom"}
	if strings.Join(opener.session.evals, "|") != strings.Join(want, "|") {
		t.Errorf("evals = %q, want %q", opener.session.evals, want)
	}
	if !strings.Contains(out, "=1+1\n") {
		t.Errorf("output missing result: %q", out)
	}
	if !strings.Contains(out, "error: kaboom\n") {
		t.Errorf("output missing error: %q", out)
	}
	if !opener.session.closed {
		t.Error("session not closed")
	}
}

func TestShellContinuation(t *testing.T) {
	opener, out, err := runShell(t, "a\\\nb\n", nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(opener.session.evals) != 1 || opener.session.evals[0] != "a\\\nb" {
		t.Errorf("evals = %q", opener.session.evals)
	}
	if !strings.Contains(out, promptCont) {
		t.Errorf("continuation prompt not shown: %q", out)
	}
}

func TestShellCommands(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "init.lua")
	if err := os.WriteFile(file, []byte("loaded"), 0o644); err != nil {
		t.Fatal(err)
	}

	bindings := script.NewContext()
	bindings.Set("basedir", "/tmp/project")

	input := strings.Join([]string{
		":help",
		":bindings",
		":load " + file,
		":load",
		":bogus",
		":quit",
		"never",
	}, "\n") + "\n"

	opener, out, err := runShell(t, input, bindings)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	for _, want := range []string{
		"Commands:",
		`basedir      "/tmp/project"`,
		"=loaded",
		"usage: :load <file>",
		"unknown command",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if len(opener.session.evals) != 1 {
		t.Errorf("evals = %q, want only the loaded file", opener.session.evals)
	}
}

func TestShellExitRequest(t *testing.T) {
	opener, _, err := runShell(t, "exit\nafter\n", nil)
	if !guard.IsExitRequest(err) {
		t.Fatalf("Run() error = %v, want exit request", err)
	}
	if len(opener.session.evals) != 1 {
		t.Errorf("evaluation continued after exit: %q", opener.session.evals)
	}
}

func TestShellCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	sh := New(&echoOpener{}, WithInput(strings.NewReader("1\n")), WithOutput(&out))
	err := sh.Run(ctx, script.NewNamespace("test", nil), nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestShellOpenErrors(t *testing.T) {
	var out bytes.Buffer
	err := New(nil, WithOutput(&out)).Run(context.Background(), nil, nil, nil)
	if !script.IsConfigError(err) {
		t.Errorf("nil opener: error = %v, want ConfigError", err)
	}

	boom := errors.New("no runtime")
	err = New(&echoOpener{err: boom}, WithOutput(&out)).Run(context.Background(), nil, nil, nil)
	if !errors.Is(err, boom) {
		t.Errorf("open failure: error = %v, want %v", err, boom)
	}
}

func TestPlainReaderFinalLine(t *testing.T) {
	var out bytes.Buffer
	r := newPlainReader(strings.NewReader("first\r\nlast"), &out)

	tests := []struct {
		want    string
		wantErr error
	}{
		{"first", nil},
		{"last", nil},
		{"", io.EOF},
	}
	for i, tt := range tests {
		got, err := r.Prompt("> ")
		if got != tt.want || !errors.Is(err, tt.wantErr) {
			t.Errorf("Prompt #%d = %q, %v; want %q, %v", i, got, err, tt.want, tt.wantErr)
		}
	}
	if out.String() != "> > > " {
		t.Errorf("prompts = %q", out.String())
	}
}
