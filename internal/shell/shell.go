// Package shell provides the line-oriented interactive shell.
//
// Input is read line by line and accumulated until the session reports a
// complete chunk, which is then evaluated. Lines starting with ':' are
// shell commands. On a terminal, lines are edited with liner and history
// is kept; otherwise input is read plainly, which makes the shell usable
// from pipes and tests.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dshills/luabuild/internal/guard"
	"github.com/dshills/luabuild/internal/logging"
	"github.com/dshills/luabuild/internal/script"
)

const (
	promptMain = "luabuild> "
	promptCont = "      ... "
)

const helpText = `Enter Lua statements or expressions. Incomplete input continues on
the next line.

Commands:
  :help            show this help
  :quit, :exit     leave the shell
  :load <file>     evaluate a file in this session
  :bindings        list the names bound into this session
`

// Shell runs interactive sessions. It implements script.ShellRunner.
type Shell struct {
	opener      script.SessionOpener
	in          io.Reader
	out         io.Writer
	historyFile string
	logger      *logging.Logger
}

// Option configures a Shell.
type Option func(*Shell)

// WithInput reads input from r instead of the terminal.
func WithInput(r io.Reader) Option {
	return func(s *Shell) {
		s.in = r
	}
}

// WithOutput writes results and script output to w.
func WithOutput(w io.Writer) Option {
	return func(s *Shell) {
		s.out = w
	}
}

// WithHistoryFile persists terminal history in path.
func WithHistoryFile(path string) Option {
	return func(s *Shell) {
		s.historyFile = path
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Shell) {
		s.logger = l
	}
}

// New creates a Shell that evaluates input in sessions from opener.
func New(opener script.SessionOpener, opts ...Option) *Shell {
	s := &Shell{opener: opener}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNull(s.logger).WithComponent("shell")
	return s
}

func (s *Shell) output() io.Writer {
	if s.out != nil {
		return s.out
	}
	return os.Stdout
}

func (s *Shell) lineReader() LineReader {
	if s.in == nil && isTerminal() {
		return newLinerReader(s.historyFile)
	}
	in := s.in
	if in == nil {
		in = os.Stdin
	}
	return newPlainReader(in, s.output())
}

// Run reads and evaluates input until EOF or :quit.
//
// Script errors are printed and the loop continues. Run returns an error
// when the session cannot be opened, when ctx is cancelled, or when a
// script asks for process exit.
func (s *Shell) Run(ctx context.Context, ns *script.Namespace, loader script.ResourceLoader, bindings *script.Context) error {
	if s.opener == nil {
		return &script.ConfigError{Op: "shell", Msg: "session opener is nil", Err: script.ErrNilArgument}
	}

	out := s.output()
	session, err := s.opener.OpenSession(ns, loader, bindings, out)
	if err != nil {
		return err
	}
	defer session.Close()

	reader := s.lineReader()
	defer reader.Close()

	fmt.Fprintln(out, "luabuild shell. Type :help for help.")

	r := &repl{shell: s, session: session, reader: reader, bindings: bindings, out: out}
	return r.loop(ctx)
}

type repl struct {
	shell    *Shell
	session  script.Session
	reader   LineReader
	bindings *script.Context
	out      io.Writer
}

func (r *repl) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		code, ok, err := r.readChunk()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(r.out)
			return nil
		}

		trimmed := strings.TrimSpace(code)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, ":") {
			quit, err := r.command(ctx, trimmed)
			if err != nil || quit {
				return err
			}
			continue
		}

		r.reader.AppendHistory(code)
		if err := r.eval(ctx, code); err != nil {
			return err
		}
	}
}

// readChunk reads lines until the session accepts the buffer as complete.
// ok is false at end of input.
func (r *repl) readChunk() (code string, ok bool, err error) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}

		line, err := r.reader.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false, nil
		}
		if errors.Is(err, ErrAborted) {
			// Ctrl-C abandons the current input
			return "", true, nil
		}
		if err != nil {
			return "", false, err
		}

		if b.Len() == 0 && strings.HasPrefix(strings.TrimSpace(line), ":") {
			return line, true, nil
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		if src := b.String(); r.session.Complete(src) {
			return src, true, nil
		}
	}
}

// eval evaluates code and prints the outcome. Only fatal errors are
// returned.
func (r *repl) eval(ctx context.Context, code string) error {
	result, err := r.session.Eval(ctx, code)
	switch {
	case err == nil:
		if result != "" {
			fmt.Fprintln(r.out, result)
		}
		return nil
	case guard.IsExitRequest(err):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		fmt.Fprintf(r.out, "error: %v\n", err)
		r.shell.logger.Debug("evaluation failed: %v", err)
		return nil
	}
}

// command runs a ':' command. quit reports whether the shell should end.
func (r *repl) command(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case ":help":
		fmt.Fprint(r.out, helpText)

	case ":quit", ":exit":
		return true, nil

	case ":load":
		if len(fields) < 2 {
			fmt.Fprintln(r.out, "usage: :load <file>")
			return false, nil
		}
		path := fields[1]
		src, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(r.out, "cannot read %s: %v\n", path, err)
			return false, nil
		}
		r.reader.AppendHistory(":load " + path)
		return false, r.eval(ctx, string(src))

	case ":bindings":
		if r.bindings == nil || r.bindings.Len() == 0 {
			fmt.Fprintln(r.out, "(no bindings)")
			return false, nil
		}
		r.bindings.Each(func(name string, value any) {
			fmt.Fprintf(r.out, "  %-12s %v\n", name, describe(value))
		})

	default:
		fmt.Fprintln(r.out, "unknown command. Type :help for help.")
	}
	return false, nil
}

func describe(v any) string {
	switch v := v.(type) {
	case fmt.Stringer:
		return v.String()
	case string:
		return fmt.Sprintf("%q", v)
	default:
		return fmt.Sprintf("%T", v)
	}
}
