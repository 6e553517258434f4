package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"
)

// ErrAborted is returned by a LineReader when the user abandons the
// current line (Ctrl-C).
var ErrAborted = errors.New("input aborted")

// LineReader reads input lines.
type LineReader interface {
	// Prompt shows prompt and reads one line. It returns io.EOF when the
	// input ends.
	Prompt(prompt string) (string, error)

	// AppendHistory records an entered chunk.
	AppendHistory(entry string)

	// Close restores the terminal and persists history.
	Close() error
}

// isTerminal reports whether stdin is an interactive terminal.
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// linerReader edits lines on a terminal with history.
type linerReader struct {
	ln          *liner.State
	historyFile string
}

func newLinerReader(historyFile string) *linerReader {
	ln := liner.NewLiner()
	ln.SetCtrlCAborts(true)

	// Load history (best-effort)
	if historyFile != "" {
		if f, err := os.Open(historyFile); err == nil {
			_, _ = ln.ReadHistory(f)
			_ = f.Close()
		}
	}
	return &linerReader{ln: ln, historyFile: historyFile}
}

func (r *linerReader) Prompt(prompt string) (string, error) {
	line, err := r.ln.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", ErrAborted
	}
	return line, err
}

func (r *linerReader) AppendHistory(entry string) {
	r.ln.AppendHistory(strings.ReplaceAll(entry, "\n", " "))
}

func (r *linerReader) Close() error {
	// Persist history (best-effort)
	if r.historyFile != "" {
		if f, err := os.Create(r.historyFile); err == nil {
			_, _ = r.ln.WriteHistory(f)
			_ = f.Close()
		}
	}
	return r.ln.Close()
}

// plainReader reads lines from any reader. Prompts go to out.
type plainReader struct {
	in  *bufio.Reader
	out io.Writer
}

func newPlainReader(in io.Reader, out io.Writer) *plainReader {
	return &plainReader{in: bufio.NewReader(in), out: out}
}

func (r *plainReader) Prompt(prompt string) (string, error) {
	fmt.Fprint(r.out, prompt)
	line, err := r.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (r *plainReader) AppendHistory(string) {}

func (r *plainReader) Close() error {
	return nil
}
