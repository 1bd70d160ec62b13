// Package flagx helps several independent flag sets share one command line.
package flagx

import (
	"flag"
	"strings"
)

// ConfigFlagNames are the flags that select a configuration file.
var ConfigFlagNames = []string{"-c", "-config"}

// flagName returns the name of a flag token without its dashes and any
// "=value" suffix. ok is false for values, a lone "-" and the "--" terminator.
func flagName(arg string) (name string, inline bool, ok bool) {
	if len(arg) < 2 || arg[0] != '-' || arg == "--" {
		return "", false, false
	}
	name = strings.TrimPrefix(arg[1:], "-")
	name, _, inline = strings.Cut(name, "=")
	return name, inline, name != ""
}

// FilterArgs keeps only the flags named in allowedFlags, together with their
// values. Names match with one dash or two, as the flag package does, and
// both "-c conf.json" and "-c=conf.json" are understood. A token that looks
// like a flag is never taken as a value, and nothing after "--" is kept.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]bool, len(allowedFlags))
	for _, f := range allowedFlags {
		if name, _, ok := flagName(f); ok {
			allowed[name] = true
		}
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if args[i] == "--" {
			break
		}
		name, inline, ok := flagName(args[i])
		if !ok || !allowed[name] {
			continue
		}
		filtered = append(filtered, args[i])
		if inline || i+1 >= len(args) {
			continue
		}
		if _, _, next := flagName(args[i+1]); !next && args[i+1] != "--" {
			i++
			filtered = append(filtered, args[i])
		}
	}
	return filtered
}

// ConfigFileFlag extracts the config file path given by -c or -config.
// Other arguments are ignored so callers can parse their own flags
// independently. The last occurrence wins; no flag yields "".
func ConfigFileFlag(args []string) string {
	var path string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.StringVar(&path, "config", "", "Path to config file")
	fs.StringVar(&path, "c", "", "Path to config file (short)")
	_ = fs.Parse(FilterArgs(args, ConfigFlagNames))

	return path
}
