package guard

import (
	"errors"
	"fmt"
	"os"
	"testing"
)

func withFakeExit(t *testing.T) *[]int {
	t.Helper()
	var codes []int
	orig := exitFunc
	exitFunc = func(code int) { codes = append(codes, code) }
	t.Cleanup(func() { exitFunc = orig })
	return &codes
}

func TestRunSuccessPassesThrough(t *testing.T) {
	g := New()
	got, err := Call(g, func() (string, error) {
		return "done", nil
	})
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if got != "done" {
		t.Errorf("Call() = %q, want done", got)
	}
	if Active() {
		t.Error("interception still active after Call")
	}
}

func TestRunFailureReturned(t *testing.T) {
	want := errors.New("boom")
	err := New().Run(func() error { return want })
	if !errors.Is(err, want) {
		t.Errorf("Run() error = %v, want %v", err, want)
	}
}

func TestExitIntercepted(t *testing.T) {
	codes := withFakeExit(t)

	err := New().Run(func() error {
		Exit(7)
		t.Error("Exit returned under a guard")
		return nil
	})

	var ee *ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("Run() error = %v, want *ExitError", err)
	}
	if ee.Code != 7 {
		t.Errorf("Code = %d, want 7", ee.Code)
	}
	if !IsExitRequest(fmt.Errorf("wrapped: %w", err)) {
		t.Error("IsExitRequest should see through wrapping")
	}
	if len(*codes) != 0 {
		t.Errorf("real exit called with %v", *codes)
	}
}

func TestInterceptOutsideGuardExits(t *testing.T) {
	codes := withFakeExit(t)

	if err := Intercept(3); err != nil {
		t.Errorf("Intercept() = %v outside a guard", err)
	}
	if len(*codes) != 1 || (*codes)[0] != 3 {
		t.Errorf("exit codes = %v, want [3]", *codes)
	}
}

func TestInterceptReturnsErrorUnderGuard(t *testing.T) {
	withFakeExit(t)

	err := New().Run(func() error {
		return Intercept(4)
	})
	var ee *ExitError
	if !errors.As(err, &ee) || ee.Code != 4 {
		t.Errorf("Run() error = %v, want exit code 4", err)
	}
}

func TestStreamsRestored(t *testing.T) {
	origOut, origErr := os.Stdout, os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	_ = New().Run(func() error {
		os.Stdout = w
		os.Stderr = w
		Exit(1)
		return nil
	})

	if os.Stdout != origOut || os.Stderr != origErr {
		t.Error("standard streams not restored after exit")
	}
}

func TestOtherPanicsPropagate(t *testing.T) {
	origOut := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	defer func() {
		rec := recover()
		if rec != "kaboom" {
			t.Errorf("recovered %v, want kaboom", rec)
		}
		if os.Stdout != origOut {
			t.Error("stdout not restored before re-panic")
		}
		if Active() {
			t.Error("interception still active after panic")
		}
	}()

	_ = New().Run(func() error {
		os.Stdout = w
		panic("kaboom")
	})
}

func TestNestedGuards(t *testing.T) {
	withFakeExit(t)
	g := New()

	err := g.Run(func() error {
		inner := g.Run(func() error {
			Exit(2)
			return nil
		})
		if !IsExitRequest(inner) {
			t.Errorf("inner error = %v", inner)
		}
		if !Active() {
			t.Error("outer guard should still be active")
		}
		return nil
	})
	if err != nil {
		t.Errorf("outer Run() error = %v", err)
	}
	if Active() {
		t.Error("interception active after both guards returned")
	}
}

func TestSwallowedExitStillReported(t *testing.T) {
	codes := withFakeExit(t)

	got, err := Call(New(), func() (string, error) {
		_ = Intercept(6)
		return "carried on", nil
	})
	var ee *ExitError
	if !errors.As(err, &ee) || ee.Code != 6 {
		t.Fatalf("Call() error = %v, want exit code 6", err)
	}
	if got != "" {
		t.Errorf("Call() result = %q, want zero value", got)
	}
	if len(*codes) != 0 {
		t.Errorf("real exit called with %v", *codes)
	}
}

func TestFirstExitRequestWins(t *testing.T) {
	withFakeExit(t)

	err := New().Run(func() error {
		_ = Intercept(1)
		return Intercept(2)
	})
	var ee *ExitError
	if !errors.As(err, &ee) || ee.Code != 2 {
		t.Errorf("Run() error = %v, want the returned request (code 2)", err)
	}

	err = New().Run(func() error {
		_ = Intercept(1)
		_ = Intercept(2)
		return nil
	})
	if !errors.As(err, &ee) || ee.Code != 1 {
		t.Errorf("Run() error = %v, want the first recorded request (code 1)", err)
	}
}
