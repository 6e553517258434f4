// Package console provides the windowed interactive console.
//
// The window is a full-screen tcell UI: an output pane, a title bar and an
// input line. Each entered chunk is evaluated in a script.Session opened
// for the window; script output and results are appended to the pane.
package console

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/luabuild/internal/guard"
	"github.com/dshills/luabuild/internal/logging"
	"github.com/dshills/luabuild/internal/script"
)

// DefaultTitle is shown in the title bar.
const DefaultTitle = "luabuild console"

// maxLines bounds the output pane's scrollback.
const maxLines = 5000

// ScreenFactory creates the screen a window draws on.
type ScreenFactory func() (tcell.Screen, error)

// Window opens console windows. It implements script.ConsoleWindow.
type Window struct {
	opener    script.SessionOpener
	newScreen ScreenFactory
	logger    *logging.Logger
	title     string
}

// Option configures a Window.
type Option func(*Window)

// WithScreen sets the screen factory. Tests pass a simulation screen.
func WithScreen(f ScreenFactory) Option {
	return func(w *Window) {
		w.newScreen = f
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Window) {
		w.logger = l
	}
}

// WithTitle sets the title bar text.
func WithTitle(title string) Option {
	return func(w *Window) {
		w.title = title
	}
}

// New creates a Window that evaluates input in sessions from opener.
func New(opener script.SessionOpener, opts ...Option) *Window {
	w := &Window{
		opener:    opener,
		newScreen: tcell.NewScreen,
		title:     DefaultTitle,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logging.OrNull(w.logger).WithComponent("console")
	return w
}

// Open builds and shows a window bound to ns. The returned handle is open;
// the UI runs on its own goroutine until the handle is closed.
func (w *Window) Open(ns *script.Namespace, loader script.ResourceLoader, bindings *script.Context) (script.WindowHandle, error) {
	if w.opener == nil {
		return nil, &script.ConfigError{Op: "console", Msg: "session opener is nil", Err: script.ErrNilArgument}
	}

	screen, err := w.newScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}

	h := newHandle(screen, w.title, w.logger)

	session, err := w.opener.OpenSession(ns, loader, bindings, &paneWriter{h: h})
	if err != nil {
		screen.Fini()
		return nil, err
	}
	h.session = session

	h.appendOutput("Type Lua at the prompt. Ctrl-D or Esc closes the window.\n")
	h.draw()

	go h.loop()

	w.logger.Debug("opened console for %s", ns)
	return h, nil
}

// handle is one open window.
type handle struct {
	screen  tcell.Screen
	session script.Session
	logger  *logging.Logger
	title   string

	mu      sync.Mutex
	lines   []string
	partial string
	input   []rune
	pending []string
	history []string
	histPos int
	scroll  int
	busy    bool
	closed  bool

	evalCtx    context.Context
	cancelEval context.CancelFunc

	done      chan struct{}
	closeOnce sync.Once
	cause     error
}

func newHandle(screen tcell.Screen, title string, logger *logging.Logger) *handle {
	ctx, cancel := context.WithCancel(context.Background())
	return &handle{
		screen:     screen,
		title:      title,
		logger:     logger,
		evalCtx:    ctx,
		cancelEval: cancel,
		done:       make(chan struct{}),
	}
}

// Close tears the window down. Only the first call has any effect.
func (h *handle) Close() {
	h.closeWith(nil)
}

func (h *handle) closeWith(cause error) {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.cancelEval()
		h.closed = true
		h.cause = cause
		h.mu.Unlock()

		h.screen.Fini()
		if h.session != nil {
			if err := h.session.Close(); err != nil {
				h.logger.Warn("closing session: %v", err)
			}
		}
		close(h.done)
		h.logger.Debug("console closed")
	})
}

// Await blocks until the window is closed. It returns the exit request
// that closed the window, if a script made one.
func (h *handle) Await(ctx context.Context) error {
	select {
	case <-h.done:
		return h.cause
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loop runs the UI until the screen is finalised.
func (h *handle) loop() {
	for {
		ev := h.screen.PollEvent()
		if ev == nil {
			return
		}
		switch ev := ev.(type) {
		case *tcell.EventResize:
			h.screen.Sync()
			h.draw()
		case *tcell.EventInterrupt:
			h.draw()
		case *tcell.EventKey:
			if h.handleKey(ev) {
				h.Close()
				return
			}
			h.draw()
		}
	}
}

// handleKey applies one key press. It returns true when the window should
// close.
func (h *handle) handleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyCtrlD, tcell.KeyEscape:
		return true
	case tcell.KeyCtrlC:
		h.interrupt()
	case tcell.KeyCtrlL:
		h.mu.Lock()
		h.lines = nil
		h.partial = ""
		h.scroll = 0
		h.mu.Unlock()
	case tcell.KeyEnter:
		h.submit()
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		h.mu.Lock()
		if n := len(h.input); n > 0 {
			h.input = h.input[:n-1]
		}
		h.mu.Unlock()
	case tcell.KeyUp:
		h.walkHistory(-1)
	case tcell.KeyDown:
		h.walkHistory(1)
	case tcell.KeyPgUp:
		h.scrollBy(h.pageSize())
	case tcell.KeyPgDn:
		h.scrollBy(-h.pageSize())
	case tcell.KeyRune:
		h.mu.Lock()
		h.input = append(h.input, ev.Rune())
		h.mu.Unlock()
	}
	return false
}

func (h *handle) prompt() string {
	if len(h.pending) > 0 {
		return ">> "
	}
	return "> "
}

// submit takes the input line and evaluates the accumulated chunk once
// the session reports it complete.
func (h *handle) submit() {
	h.mu.Lock()
	if h.busy {
		h.mu.Unlock()
		return
	}
	line := string(h.input)
	h.input = nil
	h.appendLocked(h.prompt() + line + "\n")
	h.pending = append(h.pending, line)
	code := strings.Join(h.pending, "\n")
	h.scroll = 0
	h.mu.Unlock()

	if strings.TrimSpace(code) == "" {
		h.mu.Lock()
		h.pending = nil
		h.mu.Unlock()
		return
	}
	if !h.session.Complete(code) {
		return
	}

	h.mu.Lock()
	h.pending = nil
	h.history = append(h.history, code)
	h.histPos = len(h.history)
	h.busy = true
	ctx := h.evalCtx
	h.mu.Unlock()

	go h.eval(ctx, code)
}

func (h *handle) eval(ctx context.Context, code string) {
	result, err := h.session.Eval(ctx, code)

	h.mu.Lock()
	h.busy = false
	switch {
	case err != nil && guard.IsExitRequest(err):
		h.mu.Unlock()
		h.closeWith(err)
		return
	case errors.Is(err, context.Canceled):
		h.appendLocked("interrupted\n")
	case err != nil:
		h.appendLocked("error: " + err.Error() + "\n")
	case result != "":
		h.appendLocked(result + "\n")
	}
	h.mu.Unlock()

	h.requestDraw()
}

// interrupt cancels the running evaluation, if any, and arms a fresh
// context for the next one.
func (h *handle) interrupt() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.busy {
		h.pending = nil
		h.input = nil
		return
	}
	h.cancelEval()
	h.evalCtx, h.cancelEval = context.WithCancel(context.Background())
}

func (h *handle) walkHistory(delta int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.history) == 0 {
		return
	}
	h.histPos = min(max(h.histPos+delta, 0), len(h.history))
	if h.histPos == len(h.history) {
		h.input = nil
		return
	}
	h.input = []rune(h.history[h.histPos])
}

func (h *handle) pageSize() int {
	_, height := h.screen.Size()
	return max(height-2, 1)
}

func (h *handle) scrollBy(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scroll = min(max(h.scroll+n, 0), max(len(h.lines)-1, 0))
}

// appendOutput adds text to the output pane.
func (h *handle) appendOutput(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appendLocked(text)
}

func (h *handle) appendLocked(text string) {
	if h.closed {
		return
	}
	text = h.partial + text
	parts := strings.Split(text, "\n")
	h.partial = parts[len(parts)-1]
	h.lines = append(h.lines, parts[:len(parts)-1]...)
	if over := len(h.lines) - maxLines; over > 0 {
		h.lines = append([]string(nil), h.lines[over:]...)
	}
}

// requestDraw asks the UI goroutine to redraw.
func (h *handle) requestDraw() {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return
	}
	// best-effort; a full queue already has a redraw pending
	_ = h.screen.PostEvent(tcell.NewEventInterrupt(nil))
}

// paneWriter receives script output for the pane.
type paneWriter struct {
	h *handle
}

func (p *paneWriter) Write(b []byte) (int, error) {
	p.h.appendOutput(string(b))
	p.h.requestDraw()
	return len(b), nil
}
