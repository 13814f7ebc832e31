// Package config handles YAML config file loading for ghostwriter commands.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// envRef matches $$, ${VAR}, ${VAR:-default} and ${VAR:?message}.
var envRef = regexp.MustCompile(`\$\$|\$\{([A-Za-z_][A-Za-z0-9_]*)(?:(:-|:\?)([^}]*))?\}`)

// MissingEnvError lists ${VAR:?message} references whose variable was
// unset or empty.
type MissingEnvError struct {
	Vars     []string
	Messages []string
}

func (e *MissingEnvError) Error() string {
	parts := make([]string, len(e.Vars))
	for i, v := range e.Vars {
		if e.Messages[i] != "" {
			parts[i] = fmt.Sprintf("%s (%s)", v, e.Messages[i])
		} else {
			parts[i] = v
		}
	}
	return "required environment variables not set: " + strings.Join(parts, ", ")
}

// ExpandEnv substitutes environment references in input.
//
//	${VAR}            value of VAR, empty when unset
//	${VAR:-default}   value of VAR, or default when unset or empty
//	${VAR:?message}   value of VAR, or a *MissingEnvError when unset or empty
//	$$                a literal $
//
// All missing required variables are reported together.
func ExpandEnv(input string) (string, error) {
	var missing MissingEnvError
	out := envRef.ReplaceAllStringFunc(input, func(match string) string {
		if match == "$$" {
			return "$"
		}
		groups := envRef.FindStringSubmatch(match)
		name, op, arg := groups[1], groups[2], groups[3]

		if value, ok := os.LookupEnv(name); ok && value != "" {
			return value
		}
		switch op {
		case ":-":
			return arg
		case ":?":
			missing.Vars = append(missing.Vars, name)
			missing.Messages = append(missing.Messages, arg)
		}
		return ""
	})
	if len(missing.Vars) > 0 {
		return "", &missing
	}
	return out, nil
}
