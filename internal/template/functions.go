package template

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"pgbench/internal/core"
)

// sqlTimestamp is accepted as a timestamp literal by both PostgreSQL and SQLite.
const sqlTimestamp = "2006-01-02 15:04:05.000000"

// sqlFunc gets its arguments resolved: 'text' literals unquoted, NULL as
// nil, numbers as written and bare names looked up in the query variables.
type sqlFunc func(args []any) (string, error)

var funcRegistry = map[string]sqlFunc{
	"uuid":          fnUUID,
	"random":        fnRandom,
	"random_string": fnRandomString,
	"choice":        fnChoice,
	"epoch":         fnEpoch,
	"epoch_ms":      fnEpochMs,
	"now":           fnNow,
	"date":          fnDate,
	"quote":         fnQuote,
	"ident":         fnIdent,
}

// evalFunction evaluates a call such as random(1, data.max). The bool
// result is false when expr is not a call to a registered function.
func evalFunction(expr string, vars core.Variables) (string, bool, error) {
	open := strings.Index(expr, "(")
	if open == -1 || !strings.HasSuffix(expr, ")") {
		return "", false, nil
	}
	name := strings.TrimSpace(expr[:open])
	fn, ok := funcRegistry[name]
	if !ok {
		return "", false, nil
	}

	args, err := resolveArgs(expr[open+1:len(expr)-1], vars)
	if err == nil {
		var out string
		if out, err = fn(args); err == nil {
			return out, true, nil
		}
	}
	return "", true, fmt.Errorf("%s(): %w", name, err)
}

// resolveArgs splits a comma separated argument list. Commas inside
// single-quoted literals do not split.
func resolveArgs(list string, vars core.Variables) ([]any, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}

	var (
		tokens  []string
		current strings.Builder
		quoted  bool
	)
	for _, r := range list {
		switch {
		case r == '\'':
			quoted = !quoted
		case r == ',' && !quoted:
			tokens = append(tokens, current.String())
			current.Reset()
			continue
		}
		current.WriteRune(r)
	}
	if quoted {
		return nil, fmt.Errorf("unterminated string literal in %q", list)
	}
	tokens = append(tokens, current.String())

	args := make([]any, len(tokens))
	for i, tok := range tokens {
		v, err := resolveArg(strings.TrimSpace(tok), vars)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func resolveArg(tok string, vars core.Variables) (any, error) {
	switch {
	case tok == "":
		return nil, fmt.Errorf("empty argument")
	case len(tok) >= 2 && tok[0] == '\'' && tok[len(tok)-1] == '\'':
		return strings.ReplaceAll(tok[1:len(tok)-1], "''", "'"), nil
	case strings.EqualFold(tok, "null"):
		return nil, nil
	}
	if _, err := strconv.ParseFloat(tok, 64); err == nil {
		return tok, nil
	}
	if vars != nil {
		if v, ok := vars.Get(tok); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("unknown argument %q", tok)
}

// formatValue renders a variable the way it is pasted into SQL text.
func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []byte:
		return string(v)
	}
	return fmt.Sprint(v)
}

func intArg(v any) (int64, error) {
	switch v := v.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
		return int64(v), nil
	case nil:
		return 0, fmt.Errorf("NULL is not an integer")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(formatValue(v)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", formatValue(v))
	}
	return n, nil
}

func noArgs(args []any) error {
	if len(args) != 0 {
		return fmt.Errorf("takes no arguments")
	}
	return nil
}

func fnUUID(args []any) (string, error) {
	if err := noArgs(args); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}

// fnRandom returns an integer in [min, max], like pgbench's random().
func fnRandom(args []any) (string, error) {
	if len(args) != 2 {
		return "", fmt.Errorf("requires min and max")
	}
	lo, err := intArg(args[0])
	if err != nil {
		return "", fmt.Errorf("min: %w", err)
	}
	hi, err := intArg(args[1])
	if err != nil {
		return "", fmt.Errorf("max: %w", err)
	}
	if lo > hi {
		return "", fmt.Errorf("min (%d) must be <= max (%d)", lo, hi)
	}
	return strconv.FormatInt(lo+rand.Int63n(hi-lo+1), 10), nil
}

func fnRandomString(args []any) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("requires a length")
	}
	n, err := intArg(args[0])
	if err != nil {
		return "", err
	}
	if n <= 0 || n > 1000 {
		return "", fmt.Errorf("length must be between 1 and 1000, got %d", n)
	}

	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b), nil
}

// fnChoice picks one of its arguments.
func fnChoice(args []any) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("requires at least one argument")
	}
	return formatValue(args[rand.Intn(len(args))]), nil
}

func fnEpoch(args []any) (string, error) {
	if err := noArgs(args); err != nil {
		return "", err
	}
	return strconv.FormatInt(time.Now().Unix(), 10), nil
}

func fnEpochMs(args []any) (string, error) {
	if err := noArgs(args); err != nil {
		return "", err
	}
	return strconv.FormatInt(time.Now().UnixMilli(), 10), nil
}

// fnNow returns the current UTC time as a quoted timestamp literal.
func fnNow(args []any) (string, error) {
	if err := noArgs(args); err != nil {
		return "", err
	}
	return quoteLiteral(time.Now().UTC().Format(sqlTimestamp)), nil
}

// fnDate formats the current time with a Go layout, e.g. date('2006-01-02').
// The result is not quoted.
func fnDate(args []any) (string, error) {
	switch len(args) {
	case 0:
		return time.Now().Format(time.RFC3339), nil
	case 1:
		layout, ok := args[0].(string)
		if !ok || layout == "" {
			return "", fmt.Errorf("layout must be a string literal")
		}
		return time.Now().Format(layout), nil
	}
	return "", fmt.Errorf("takes at most one layout")
}

// fnQuote renders a value as an SQL string literal, NULL stays NULL.
func fnQuote(args []any) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("requires exactly one argument")
	}
	if args[0] == nil {
		return "NULL", nil
	}
	return quoteLiteral(formatValue(args[0])), nil
}

// fnIdent renders a value as a double-quoted identifier.
func fnIdent(args []any) (string, error) {
	if len(args) != 1 || args[0] == nil {
		return "", fmt.Errorf("requires exactly one non-NULL argument")
	}
	name := formatValue(args[0])
	if name == "" {
		return "", fmt.Errorf("empty identifier")
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`, nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
