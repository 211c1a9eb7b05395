package process

import (
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"
)

type Command struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string
	Timeout time.Duration
}

// String returns the command line as it could be pasted in a shell.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, shellescape.Quote(c.Name))
	for _, arg := range c.Args {
		parts = append(parts, shellescape.Quote(arg))
	}

	return strings.Join(parts, " ")
}

type Result struct {
	ReturnCode int
	Stdout     string
	Stderr     string
	Duration   time.Duration
}

// Combined returns stdout followed by stderr.
func (r *Result) Combined() string {
	var sb strings.Builder

	sb.WriteString(r.Stdout)

	if r.Stderr != "" {
		if r.Stdout != "" && !strings.HasSuffix(r.Stdout, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString(r.Stderr)
	}

	return sb.String()
}

// Expand builds a command from a template where {placeholder} tokens are
// replaced by the given values.
func Expand(template []string, values map[string]string) Command {
	pairs := make([]string, 0, len(values)*2)
	for key, value := range values {
		pairs = append(pairs, "{"+key+"}", value)
	}

	replacer := strings.NewReplacer(pairs...)

	args := make([]string, 0, len(template))
	for _, arg := range template {
		args = append(args, replacer.Replace(arg))
	}

	if len(args) == 0 {
		return Command{}
	}

	return Command{
		Name: args[0],
		Args: args[1:],
	}
}
