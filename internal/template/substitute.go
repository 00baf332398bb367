// Package template renders query text containing ${...} placeholders.
package template

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"pgbench/internal/core"
)

// varPattern matches ${var}, ${env:VAR} and ${fn(args)} placeholders.
var varPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Substitute replaces placeholders in text. Environment variables are
// written ${env:NAME}; built-in functions ${name(args)}; anything else is
// looked up in vars and pasted verbatim, so text values that belong in a
// string literal need ${quote(name)}. All failures are joined into one error.
func Substitute(text string, vars core.Variables) (string, error) {
	if !strings.Contains(text, "${") {
		return text, nil
	}

	var errs []error
	result := varPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := match[2 : len(match)-1]

		if strings.HasPrefix(name, "env:") {
			envName := name[4:]
			if val, ok := os.LookupEnv(envName); ok {
				return val
			}
			errs = append(errs, fmt.Errorf("env var %q not set", envName))
			return match
		}

		if val, isFunc, err := evalFunction(name, vars); isFunc {
			if err != nil {
				errs = append(errs, err)
				return match
			}
			return val
		}

		if vars != nil {
			if val, ok := vars.Get(name); ok {
				return formatValue(val)
			}
		}
		errs = append(errs, fmt.Errorf("variable %q not found", name))
		return match
	})

	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return result, nil
}
