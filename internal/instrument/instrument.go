// Package instrument provides Redis-backed call instrumentation for
// operations: a per-operation invocation counter and an append-only
// input/output history, layered around the operation as an explicit
// middleware chain.
//
// The counter and the two history lists are written with independent
// Redis commands (INCR, then two RPUSHes around the wrapped call). Each
// command is atomic on its own, but there is no transaction spanning
// them: a crash between the increment and the history append leaves a
// counter with no matching history entry. That window is an accepted
// limitation, not guarded against.
package instrument

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-redis/redis/v8"
)

// History list key suffixes, appended to an operation's tracking name.
const (
	inputsSuffix  = ":inputs"
	outputsSuffix = ":outputs"
)

// Op is an instrumentable operation. It receives the call arguments and
// returns the operation's result as text.
type Op func(ctx context.Context, args ...any) (string, error)

// Middleware wraps an Op with a cross-cutting side effect and returns
// the wrapped Op.
type Middleware func(next Op) Op

// Chain composes mw around op. The first middleware becomes the
// outermost wrapper, so Chain(op, a, b) runs a's pre-effect, then b's,
// then op.
func Chain(op Op, mw ...Middleware) Op {
	for i := len(mw) - 1; i >= 0; i-- {
		op = mw[i](op)
	}
	return op
}

// CountCalls increments the counter stored at name before invoking the
// wrapped operation. The increment happens first, so it is observable
// even when the operation itself fails.
func CountCalls(client *redis.Client, name string) Middleware {
	return func(next Op) Op {
		return func(ctx context.Context, args ...any) (string, error) {
			if err := client.Incr(ctx, name).Err(); err != nil {
				return "", fmt.Errorf("incr %s: %w", name, err)
			}
			return next(ctx, args...)
		}
	}
}

// CallHistory records each invocation in two Redis lists: the rendered
// arguments are appended to <name>:inputs before the wrapped operation
// runs, and its result to <name>:outputs after it returns. A failed
// operation leaves the input recorded with no matching output.
func CallHistory(client *redis.Client, name string) Middleware {
	inputKey := name + inputsSuffix
	outputKey := name + outputsSuffix
	return func(next Op) Op {
		return func(ctx context.Context, args ...any) (string, error) {
			if err := client.RPush(ctx, inputKey, formatArgs(args)).Err(); err != nil {
				return "", fmt.Errorf("rpush %s: %w", inputKey, err)
			}
			out, err := next(ctx, args...)
			if err != nil {
				return "", err
			}
			if err := client.RPush(ctx, outputKey, out).Err(); err != nil {
				return "", fmt.Errorf("rpush %s: %w", outputKey, err)
			}
			return out, nil
		}
	}
}

// Replay writes a human-readable transcript of an operation's recorded
// calls to w: the invocation count, then one line per (input, output)
// pair in call order. It is read-only and takes its own client so
// diagnostics never share a facade's connection. An operation with no
// recorded calls yields a count of 0 and no pair lines.
func Replay(ctx context.Context, client *redis.Client, name string, w io.Writer) error {
	count, err := client.Get(ctx, name).Int64()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("get %s: %w", name, err)
	}

	if _, err := fmt.Fprintf(w, "%s was called %d times:\n", name, count); err != nil {
		return err
	}

	inputs, err := client.LRange(ctx, name+inputsSuffix, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("lrange %s: %w", name+inputsSuffix, err)
	}
	outputs, err := client.LRange(ctx, name+outputsSuffix, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("lrange %s: %w", name+outputsSuffix, err)
	}

	// Lengths match by construction; pair up to the shorter one anyway.
	n := len(inputs)
	if len(outputs) < n {
		n = len(outputs)
	}
	for i := 0; i < n; i++ {
		if _, err := fmt.Fprintf(w, "%s%s -> %s\n", name, inputs[i], outputs[i]); err != nil {
			return err
		}
	}
	return nil
}

// formatArgs renders an argument list as "(a, b, c)".
func formatArgs(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprintf("%v", a)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
