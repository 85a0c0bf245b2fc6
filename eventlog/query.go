package eventlog

import (
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/c360/signalfeed/envelope"
	"github.com/c360/signalfeed/errors"
)

// Query is a compiled CEL expression evaluated against envelopes. The
// expression sees three variables: type (string), timestamp (double, epoch
// seconds) and payload (map). The zero Query matches everything.
//
//	q, err := eventlog.CompileQuery(`type == "WeatherUpdated" && payload.tempF < 40.0`)
type Query struct {
	expr    string
	prog    cel.Program
	enabled bool
}

// CompileQuery parses and type-checks expr. An empty expression yields a
// Query that always matches.
func CompileQuery(expr string) (Query, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Query{}, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("type", cel.StringType),
		cel.Variable("timestamp", cel.DoubleType),
		cel.Variable("payload", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return Query{}, errors.WrapFatal(err, "eventlog", "CompileQuery", "create CEL environment")
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return Query{}, errors.WrapInvalid(iss.Err(), "eventlog", "CompileQuery", "compile expression")
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return Query{}, errors.WrapInvalid(errors.ErrParsingFailed, "eventlog", "CompileQuery",
			"expression must evaluate to bool, got "+out.String())
	}

	prog, err := env.Program(ast)
	if err != nil {
		return Query{}, errors.WrapInvalid(err, "eventlog", "CompileQuery", "build program")
	}
	return Query{expr: expr, prog: prog, enabled: true}, nil
}

// Expr returns the source expression.
func (q Query) Expr() string {
	return q.expr
}

// Match evaluates the query. Evaluation errors, such as a missing payload
// key, count as no match.
func (q Query) Match(e envelope.Envelope) bool {
	if !q.enabled {
		return true
	}
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	out, _, err := q.prog.Eval(map[string]any{
		"type":      e.Type,
		"timestamp": e.Timestamp,
		"payload":   payload,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// FilterQuery applies Filter and then keeps entries matching q.
func FilterQuery(entries []envelope.Envelope, typeFilter, search string, q Query) []envelope.Envelope {
	filtered := Filter(entries, typeFilter, search)
	if !q.enabled {
		return filtered
	}
	out := filtered[:0]
	for _, e := range filtered {
		if q.Match(e) {
			out = append(out, e)
		}
	}
	return out
}
