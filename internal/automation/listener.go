package automation

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/dshills/luabuild/internal/logging"
)

// BuildEvent describes one task event.
type BuildEvent struct {
	Project *Project
	// Task is the task name, e.g. "mkdir".
	Task string
	// Message is set for MessageLogged events.
	Message string
	// Level is the message priority.
	Level logging.Level
	// Err is set on TaskFinished when the task failed.
	Err error
}

// BuildListener receives task events.
type BuildListener interface {
	// TaskStarted is called before a task runs.
	TaskStarted(event BuildEvent)

	// MessageLogged is called for each message a task logs.
	MessageLogged(event BuildEvent)

	// TaskFinished is called after a task returns, successfully or not.
	TaskFinished(event BuildEvent)
}

// PlainOutputSetter is implemented by listeners that can drop their
// decoration and print bare messages.
type PlainOutputSetter interface {
	SetPlainOutput(plain bool)
}

// taskColumn is the width the task name is right-aligned to.
const taskColumn = 12

// DefaultLogger prints task messages as "[task] message" lines.
type DefaultLogger struct {
	mu    sync.Mutex
	out   io.Writer
	level logging.Level
	plain bool
}

// NewDefaultLogger creates a logger writing to out. A nil out means the
// process's standard output at the time of each write.
func NewDefaultLogger(out io.Writer) *DefaultLogger {
	return &DefaultLogger{out: out, level: logging.LevelInfo}
}

// SetPlainOutput turns decoration off or on.
func (d *DefaultLogger) SetPlainOutput(plain bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.plain = plain
}

// PlainOutput reports whether decoration is off.
func (d *DefaultLogger) PlainOutput() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.plain
}

// SetLevel sets the minimum message priority printed.
func (d *DefaultLogger) SetLevel(level logging.Level) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.level = level
}

// TaskStarted implements BuildListener.
func (d *DefaultLogger) TaskStarted(BuildEvent) {}

// MessageLogged implements BuildListener.
func (d *DefaultLogger) MessageLogged(e BuildEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e.Level < d.level {
		return
	}
	d.write(e.Task, e.Message)
}

// TaskFinished implements BuildListener.
func (d *DefaultLogger) TaskFinished(e BuildEvent) {
	if e.Err == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.write(e.Task, "failed: "+e.Err.Error())
}

func (d *DefaultLogger) write(task, msg string) {
	out := d.out
	if out == nil {
		out = os.Stdout
	}

	if d.plain || task == "" {
		fmt.Fprintln(out, msg)
		return
	}

	label := "[" + task + "] "
	pad := ""
	if n := taskColumn - len(label); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	for _, line := range strings.Split(msg, "\n") {
		fmt.Fprintf(out, "%s%s%s\n", pad, label, line)
	}
}
