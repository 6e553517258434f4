package goal

import (
	"fmt"

	"github.com/dshills/luabuild/internal/script"
)

// failedMessage is the message of a bare fail().
const failedMessage = "Failed"

// FailTarget is the callable scripts use to abort the build:
//
//	fail()
//	fail(message)
//	fail(err)
//	fail(message, err)
//
// err must be an error value raised by a host callable. What pcall catches
// from error("...") is a plain string, so fail("msg", e) with such an e is
// rejected; scripts fold it into the message instead, as in
// fail("msg: " .. tostring(e)).
type FailTarget struct{}

// Call always returns an error. Arguments of the wrong shape are a wiring
// defect in the script and yield a *script.ConfigError.
func (FailTarget) Call(args []any) (any, error) {
	switch len(args) {
	case 0:
		return nil, &BuildError{Message: failedMessage}
	case 1:
		if cause, ok := args[0].(error); ok {
			return nil, &BuildError{Message: cause.Error(), Cause: cause}
		}
		return nil, &BuildError{Message: fmt.Sprint(args[0])}
	case 2:
		cause, ok := args[1].(error)
		if !ok {
			return nil, &script.ConfigError{
				Op:  "fail",
				Msg: fmt.Sprintf("invalid arguments to fail(message, error): second argument must be an error, got %T; pass Lua error strings as part of the message", args[1]),
				Err: script.ErrInvalidArguments,
			}
		}
		return nil, &BuildError{Message: fmt.Sprint(args[0]), Cause: cause}
	default:
		return nil, &script.ConfigError{
			Op:  "fail",
			Msg: "too many arguments; expected fail(), fail(message) or fail(message, error)",
			Err: script.ErrTooManyArguments,
		}
	}
}

func (FailTarget) String() string {
	return "fail"
}
