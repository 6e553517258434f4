package goal

import (
	"errors"
	"strings"
	"testing"

	"github.com/dshills/luabuild/internal/script"
)

func TestFailTarget(t *testing.T) {
	cause := errors.New("disk full")

	tests := []struct {
		name      string
		args      []any
		wantMsg   string
		wantCause error
		wantErr   error
	}{
		{"no args", nil, "Failed", nil, nil},
		{"error", []any{cause}, "disk full", cause, nil},
		{"message", []any{"stop here"}, "stop here", nil, nil},
		{"number", []any{int64(3)}, "3", nil, nil},
		{"message and error", []any{"copy failed", cause}, "copy failed", cause, nil},
		{"message and string", []any{"copy failed", "oops"}, "", nil, script.ErrInvalidArguments},
		{"too many", []any{"a", cause, "c"}, "", nil, script.ErrTooManyArguments},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := FailTarget{}.Call(tt.args)
			if result != nil {
				t.Errorf("result = %v, want nil", result)
			}

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || !script.IsConfigError(err) {
					t.Errorf("error = %v, want ConfigError(%v)", err, tt.wantErr)
				}
				return
			}

			var be *BuildError
			if !errors.As(err, &be) {
				t.Fatalf("error = %v, want *BuildError", err)
			}
			if be.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", be.Message, tt.wantMsg)
			}
			if be.Cause != tt.wantCause {
				t.Errorf("Cause = %v, want %v", be.Cause, tt.wantCause)
			}
			if tt.wantCause != nil && !errors.Is(err, tt.wantCause) {
				t.Error("cause not reachable through errors.Is")
			}
		})
	}
}

func TestFailRejectsLuaErrorString(t *testing.T) {
	_, err := FailTarget{}.Call([]any{"deploy failed", "script.lua:3: boom"})
	if !errors.Is(err, script.ErrInvalidArguments) {
		t.Fatalf("error = %v, want ErrInvalidArguments", err)
	}
	if !strings.Contains(err.Error(), "got string") || !strings.Contains(err.Error(), "part of the message") {
		t.Errorf("error = %q, want a hint about folding the string into the message", err)
	}
}
