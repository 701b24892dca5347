package types

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	goerrors "github.com/go-errors/errors"
)

// contextLines is how many source lines are captured either side of a frame.
const contextLines = 2

// Frame is one entry of a captured call stack. Frames are stored
// outermost-first so reporters can print the call chain top down.
type Frame struct {
	File     string
	Line     int
	Function string
	// Context holds the source lines surrounding the failing line;
	// ContextOffset is the index of the failing line within Context.
	Context       []string
	ContextOffset int
}

func (f Frame) String() string {
	return fmt.Sprintf("%s:%d in %s", f.File, f.Line, f.Function)
}

// Failure captures everything known about a failed phase: the failure kind,
// a message and a relocatable stack snapshot.
type Failure struct {
	// Kind is the name of the underlying fault class, e.g. "assertion",
	// "panic" or the concrete error type's name.
	Kind    string
	Message string
	Frames  []Frame
}

// Error implements the error interface so a Failure can travel through
// ordinary error returns from phase functions.
func (f *Failure) Error() string {
	if f.Kind == "" {
		return f.Message
	}
	return f.Kind + ": " + f.Message
}

// Format renders the failure for display: the message followed by the stack,
// with source context inlined where it was captured.
func (f *Failure) Format() string {
	var b strings.Builder
	b.WriteString(f.Error())
	for _, fr := range f.Frames {
		fmt.Fprintf(&b, "\n  %s", fr)
		for i, line := range fr.Context {
			marker := "   "
			if i == fr.ContextOffset {
				marker = ">> "
			}
			fmt.Fprintf(&b, "\n    %s%s", marker, line)
		}
	}
	return b.String()
}

// Relocate rewrites relative frame paths against dir, so reports show paths
// relative to the test's own directory regardless of the working directory
// the phase ran in.
func (f *Failure) Relocate(dir string) {
	if dir == "" {
		return
	}
	for i := range f.Frames {
		if filepath.IsAbs(f.Frames[i].File) {
			if rel, err := filepath.Rel(dir, f.Frames[i].File); err == nil && !strings.HasPrefix(rel, "..") {
				f.Frames[i].File = rel
			}
		}
	}
}

// NewAssertionFailure builds the failure used by the assertion helpers.
func NewAssertionFailure(msg string) *Failure {
	return &Failure{
		Kind:    "assertion",
		Message: msg,
		Frames:  CaptureStack(2),
	}
}

// CaptureFailure classifies err into a Failure, capturing the current stack
// when err does not already carry one. A nil err returns nil.
func CaptureFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	if f, ok := err.(*Failure); ok {
		return f
	}
	var goErr *goerrors.Error
	if ok := asGoError(err, &goErr); ok {
		return &Failure{
			Kind:    goErr.TypeName(),
			Message: goErr.Error(),
			Frames:  framesFromGoError(goErr),
		}
	}
	return &Failure{
		Kind:    fmt.Sprintf("%T", err),
		Message: err.Error(),
		Frames:  CaptureStack(2),
	}
}

// CapturePanic converts a recovered panic value into a Failure with the
// panicking goroutine's stack attached.
func CapturePanic(val interface{}) *Failure {
	goErr := goerrors.Wrap(val, 2)
	return &Failure{
		Kind:    goErr.TypeName(),
		Message: fmt.Sprintf("%v", val),
		Frames:  framesFromGoError(goErr),
	}
}

// CaptureStack records the calling goroutine's stack, skipping skip frames,
// reversed to outermost-first order.
func CaptureStack(skip int) []Frame {
	goErr := goerrors.Wrap("stack capture", skip+1)
	return framesFromGoError(goErr)
}

func asGoError(err error, target **goerrors.Error) bool {
	if ge, ok := err.(*goerrors.Error); ok {
		*target = ge
		return true
	}
	return false
}

// framesFromGoError converts go-errors stack frames, drops runtime internals
// and reverses the order so the outermost caller comes first.
func framesFromGoError(goErr *goerrors.Error) []Frame {
	stack := goErr.StackFrames()
	frames := make([]Frame, 0, len(stack))
	for i := len(stack) - 1; i >= 0; i-- {
		sf := stack[i]
		if strings.HasPrefix(sf.Package, "runtime") {
			continue
		}
		frames = append(frames, Frame{
			File:     sf.File,
			Line:     sf.LineNumber,
			Function: sf.Name,
		})
	}
	// Source context is only loaded for the boundary frames; those are the
	// ones reporters print in full.
	if len(frames) > 0 {
		loadContext(&frames[0])
		if len(frames) > 1 {
			loadContext(&frames[len(frames)-1])
		}
	}
	return frames
}

func loadContext(f *Frame) {
	data, err := os.ReadFile(f.File)
	if err != nil {
		return
	}
	lines := strings.Split(string(data), "\n")
	idx := f.Line - 1
	if idx < 0 || idx >= len(lines) {
		return
	}
	lo := idx - contextLines
	if lo < 0 {
		lo = 0
	}
	hi := idx + contextLines + 1
	if hi > len(lines) {
		hi = len(lines)
	}
	f.Context = lines[lo:hi]
	f.ContextOffset = idx - lo
}

// ExitSuiteSignal is raised by test code to deliberately abandon the
// enclosing suite. It is a control signal, not a failure.
type ExitSuiteSignal struct {
	Reason string
}

func (e *ExitSuiteSignal) Error() string {
	if e.Reason == "" {
		return "exit suite requested"
	}
	return "exit suite requested: " + e.Reason
}

// ExitAllSignal is raised by test code to halt the entire run once the
// current cleanup has completed.
type ExitAllSignal struct {
	Reason string
}

func (e *ExitAllSignal) Error() string {
	if e.Reason == "" {
		return "exit run requested"
	}
	return "exit run requested: " + e.Reason
}
