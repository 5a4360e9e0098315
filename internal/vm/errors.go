package vm

import (
	"errors"
	"fmt"
	"strings"
)

// Protocol-violation errors: host/caller misuse, reported straight back to
// the API call site. They never unwind a coroutine's frame chain.
var (
	ErrDeadCoroutine    = errors.New("cannot resume dead coroutine")
	ErrRunningCoroutine = errors.New("cannot resume non-suspended coroutine")
	ErrExecutorBusy     = errors.New("executor has a computation in flight")
	ErrExecutorIdle     = errors.New("executor has no computation in flight")
	ErrExecutorDead     = errors.New("executor is dead")
	// ErrYieldAcrossNative is reported when a coroutine tries to suspend
	// while a reentrant native call holds native-stack state that a
	// suspension would abandon.
	ErrYieldAcrossNative = errors.New("attempt to yield across a native call boundary")
)

// stackOverflow is the panic payload for frame-store or value-stack
// exhaustion; the executor converts it into an ordinary script error.
type stackOverflow struct{}

// TracebackEntry locates one frame of a failed call chain.
type TracebackEntry struct {
	Name   string
	Source string
	Line   int32
}

func (e TracebackEntry) String() string {
	src := e.Source
	if src == "" {
		src = "?"
	}
	name := e.Name
	if name == "" {
		name = "?"
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: in %s", src, e.Line, name)
	}
	return fmt.Sprintf("%s: in %s", src, name)
}

// ScriptError is an error raised by script execution or a native callback.
// The payload is an arbitrary Value, not necessarily a string. The core does
// not format messages beyond Error(); hosts get the raw value and traceback.
type ScriptError struct {
	Value     Value
	Traceback []TracebackEntry
}

func (e *ScriptError) Error() string {
	switch e.Value.kind {
	case ValString:
		return e.Value.AsString().Str()
	case ValNil, ValBool, ValInt, ValFloat:
		return ToString(e.Value)
	default:
		return fmt.Sprintf("(error object is a %s value)", e.Value.kind)
	}
}

// FormatTraceback renders the captured frames, one per line.
func (e *ScriptError) FormatTraceback() string {
	if len(e.Traceback) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("traceback:")
	for _, entry := range e.Traceback {
		sb.WriteString("\n\t")
		sb.WriteString(entry.String())
	}
	return sb.String()
}

// ToString renders a value for host-facing messages without metamethod
// dispatch: scalars and strings print directly, heap values by type.
func ToString(v Value) string {
	switch v.kind {
	case ValNil:
		return "nil"
	case ValBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case ValInt, ValFloat:
		return numberString(v)
	case ValString:
		return v.AsString().Str()
	case ValFunction:
		if n := v.AsNative(); n != nil {
			return fmt.Sprintf("function: %s", n.Name())
		}
		return fmt.Sprintf("function: %p", v.obj)
	default:
		return fmt.Sprintf("%s: %p", v.kind, v.obj)
	}
}
