// Package guard keeps scripts from terminating the host process.
//
// A NoExitGuard runs a task with exit interception installed. A script that
// asks the process to exit instead unwinds back to the guard, which returns
// an *ExitError. The standard streams are snapshotted before the task and
// restored afterwards on every path.
//
// Interception state is process-global. Only one guarded task may run at a
// time; nested guards on the same goroutine are allowed. An exit request is
// recorded against the innermost guard, so a task that swallows the error
// Intercept returned still ends with an *ExitError.
package guard

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/dshills/luabuild/internal/logging"
)

// ExitError is the signal a guarded task receives when it asks for process
// termination.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("script requested process exit with code %d", e.Code)
}

// IsExitRequest reports whether err carries an *ExitError.
func IsExitRequest(err error) bool {
	var ee *ExitError
	return errors.As(err, &ee)
}

// exitFunc is the real process exit. Tests replace it.
var exitFunc = os.Exit

// frame is the interception state of one installed guard.
type frame struct {
	// exit is the first exit request made while the frame was innermost.
	exit *ExitError
}

var (
	activeMu sync.Mutex
	frames   []*frame
)

// Active reports whether exit interception is installed.
func Active() bool {
	activeMu.Lock()
	defer activeMu.Unlock()
	return len(frames) > 0
}

// Intercept returns an *ExitError when a guard is active and terminates the
// process otherwise. Callers that cannot unwind with a Go panic, such as
// runtime builtins, use it and propagate the error themselves. The request
// is also recorded by the innermost guard, which reports it even if the
// returned error is lost.
func Intercept(code int) error {
	activeMu.Lock()
	if n := len(frames); n > 0 {
		ee := &ExitError{Code: code}
		if f := frames[n-1]; f.exit == nil {
			f.exit = ee
		}
		activeMu.Unlock()
		return ee
	}
	activeMu.Unlock()

	exitFunc(code)
	return nil
}

// Exit terminates the process, or unwinds to the nearest guard when one is
// active.
func Exit(code int) {
	if err := Intercept(code); err != nil {
		panic(err)
	}
}

// NoExitGuard runs tasks with exit interception installed.
type NoExitGuard struct {
	logger *logging.Logger
}

// Option configures a NoExitGuard.
type Option func(*NoExitGuard)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *NoExitGuard) {
		g.logger = l
	}
}

// New creates a guard.
func New(opts ...Option) *NoExitGuard {
	g := &NoExitGuard{}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.OrNull(g.logger).WithComponent("guard")
	return g
}

// Run executes task under the guard.
func (g *NoExitGuard) Run(task func() error) error {
	_, err := Call(g, func() (struct{}, error) {
		return struct{}{}, task()
	})
	return err
}

// Call executes task under g and returns its result.
//
// An exit request raised through Exit becomes the returned error. Any other
// panic propagates after the streams have been restored.
//
// A recorded exit request overrides the task's own result: a script that
// caught the exit error and carried on is still reported as having asked
// to exit.
func Call[T any](g *NoExitGuard, task func() (T, error)) (result T, err error) {
	f, release := g.install()
	defer release()

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if ee, ok := r.(*ExitError); ok {
			g.logger.Warn("intercepted exit request with code %d", ee.Code)
			var zero T
			result, err = zero, ee
			return
		}
		release()
		panic(r)
	}()

	result, err = task()
	if ee := (*ExitError)(nil); errors.As(err, &ee) {
		g.logger.Warn("intercepted exit request with code %d", ee.Code)
		return result, err
	}
	if ee := f.pending(); ee != nil {
		g.logger.Warn("task ignored exit request with code %d", ee.Code)
		var zero T
		return zero, ee
	}
	return result, err
}

func (f *frame) pending() *ExitError {
	activeMu.Lock()
	defer activeMu.Unlock()
	return f.exit
}

type streams struct {
	stdin, stdout, stderr *os.File
}

// install snapshots the standard streams and pushes a new frame. The
// returned release undoes both exactly once.
func (g *NoExitGuard) install() (*frame, func()) {
	snap := streams{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	f := &frame{}

	activeMu.Lock()
	frames = append(frames, f)
	depth := len(frames)
	activeMu.Unlock()
	g.logger.Debug("exit interception installed (depth %d)", depth)

	var once sync.Once
	return f, func() {
		once.Do(func() {
			os.Stdin, os.Stdout, os.Stderr = snap.stdin, snap.stdout, snap.stderr

			activeMu.Lock()
			for i := len(frames) - 1; i >= 0; i-- {
				if frames[i] == f {
					frames = append(frames[:i], frames[i+1:]...)
					break
				}
			}
			activeMu.Unlock()
			g.logger.Debug("exit interception released (depth %d)", depth)
		})
	}
}
