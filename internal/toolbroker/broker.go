package toolbroker

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind discriminates ToolError's four retryable/terminal classes.
type ErrorKind string

const (
	ErrTransport            ErrorKind = "transport"
	ErrProtocol             ErrorKind = "protocol"
	ErrSymbolNotFound       ErrorKind = "symbol_not_found"
	ErrNotSupportedLanguage ErrorKind = "not_supported_language"
)

// Error is the broker-level error taxonomy. Transport is retryable by the
// caller; the rest are terminal for the current invocation.
type Error struct {
	Kind    ErrorKind
	Message string
	Inner   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("tool broker: %s: %s", e.Kind, e.Message)
}
func (e *Error) Unwrap() error { return e.Inner }

// ErrWrongToolOutput is returned when a handler's registered payload type
// does not match the Kind it was registered under — a programmer error,
// never a runtime condition a caller should retry.
var ErrWrongToolOutput = errors.New("tool broker: wrong input/output variant for kind")

// handler is the broker's internal, type-erased dispatch signature. Each
// concrete Kind is wired through handlerFor, which recovers static typing
// at the edge.
type handler func(ctx context.Context, payload any) (any, error)

// Input is one tagged request to the broker.
type Input struct {
	Kind    Kind
	Payload any
}

// Output is one tagged response from the broker.
type Output struct {
	Kind    Kind
	Payload any
}

// Broker is the table-dispatched entry point for every ToolKind.
type Broker struct {
	handlers map[Kind]handler
}

// New creates an empty broker; callers wire concrete handlers with Register.
func New() *Broker {
	return &Broker{handlers: make(map[Kind]handler)}
}

// Register installs the handler for kind, replacing any previous one.
func (b *Broker) Register(kind Kind, h handler) {
	b.handlers[kind] = h
}

// Invoke table-dispatches in to its registered handler. An unregistered
// Kind or a handler/payload type mismatch surfaces as ErrWrongToolOutput;
// every other failure is returned exactly as the handler produced it (the
// standard editor and filesystem handlers return *Error; the LLM and
// permission failures are passed through unwrapped).
func (b *Broker) Invoke(ctx context.Context, in Input) (Output, error) {
	h, ok := b.handlers[in.Kind]
	if !ok {
		return Output{}, fmt.Errorf("%w: no handler registered for %s", ErrWrongToolOutput, in.Kind)
	}
	out, err := h(ctx, in.Payload)
	if err != nil {
		return Output{Kind: in.Kind}, err
	}
	return Output{Kind: in.Kind, Payload: out}, nil
}

// Handle registers a statically typed handler for kind in one call,
// exported so callers outside this package (tests, alternate wiring) can
// build a Broker without reaching into the internal handler type.
func Handle[In, Out any](b *Broker, kind Kind, f func(ctx context.Context, in In) (Out, error)) {
	b.Register(kind, handlerFor(f))
}

// handlerFor adapts a statically typed handler function into the broker's
// type-erased dispatch table, recovering ErrWrongToolOutput at the one
// point a caller can mismatch a Kind with its payload.
func handlerFor[In, Out any](f func(ctx context.Context, in In) (Out, error)) handler {
	return func(ctx context.Context, payload any) (any, error) {
		in, ok := payload.(In)
		if !ok {
			return nil, fmt.Errorf("%w: expected %T, got %T", ErrWrongToolOutput, *new(In), payload)
		}
		return f(ctx, in)
	}
}
