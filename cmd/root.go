package cmd

import (
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/JakeFAU/idprobe/internal/probe"
)

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "idprobe <TEMPLATE> [START]",
		Short: "Probe a two-dimensional identifier space for live URLs.",
		Long: `idprobe expands a URL template containing an inner and an outer
placeholder (default {uid} and {qnum}) and checks each candidate with a
single GET. A candidate is live when it answers 200 at exactly the requested
URL. Outer keys are scanned one at a time starting at START (default 1); the
first live URL for an outer key is appended to the discovery log and the scan
moves on to the next key.

Press Ctrl-C once to stop admitting new probes and let in-flight ones finish.
Press it again to exit immediately.`,
		Example: `  idprobe 'https://example.com/q/{qnum}/user/{uid}'
  idprobe 'https://example.com/q/{qnum}/user/{uid}' 42 --concurrency 8 --output found.log`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args, cfgFile)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	flags.Int("concurrency", 0, "maximum probes in flight per outer key")
	flags.Int("inner-start", 0, "first inner identifier (inclusive)")
	flags.Int("inner-end", 0, "last inner identifier (exclusive)")
	flags.Int("outer-end", 0, "last outer key (inclusive)")
	flags.String("output", "", "discovery log path, truncated at startup")
	flags.String("metrics-addr", "", "serve /metrics, /healthz and /v1/status on this address")
	flags.Bool("development", false, "use the human-friendly development logger")
	flags.String("log-level", "", "minimum log level (debug, info, warn, error)")

	return cmd
}

// parseStart reads the optional START argument. Anything that is not a
// positive integer falls back to probe.DefaultOuterStart.
func parseStart(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return probe.DefaultOuterStart
	}
	return n
}

// positionalNegatives moves bare negative integers such as a START of -3
// behind a "--" terminator so pflag does not read them as shorthand flags.
// Tokens that are the value of a preceding flag stay where they are.
func positionalNegatives(flags *pflag.FlagSet, args []string) []string {
	var kept, negatives []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			if len(negatives) == 0 {
				return args
			}
			out := append(kept, "--")
			out = append(out, negatives...)
			return append(out, args[i+1:]...)
		}
		if isNegativeInt(arg) {
			negatives = append(negatives, arg)
			continue
		}
		kept = append(kept, arg)
		if takesValue(flags, arg) && i+1 < len(args) {
			i++
			kept = append(kept, args[i])
		}
	}
	if len(negatives) == 0 {
		return args
	}
	out := append(kept, "--")
	return append(out, negatives...)
}

func isNegativeInt(arg string) bool {
	if len(arg) < 2 || arg[0] != '-' {
		return false
	}
	_, err := strconv.Atoi(arg)
	return err == nil
}

// takesValue reports whether arg is a flag whose value is the next token.
func takesValue(flags *pflag.FlagSet, arg string) bool {
	if !strings.HasPrefix(arg, "-") || strings.Contains(arg, "=") {
		return false
	}
	var flag *pflag.Flag
	if name, ok := strings.CutPrefix(arg, "--"); ok {
		flag = flags.Lookup(name)
	} else if len(arg) == 2 {
		flag = flags.ShorthandLookup(arg[1:])
	}
	return flag != nil && flag.NoOptDefVal == ""
}

// execute runs root against args after positionalNegatives has rewritten them.
func execute(root *cobra.Command, args []string) error {
	root.SetArgs(positionalNegatives(root.Flags(), args))
	return root.Execute()
}

// Execute is the main entry point. Cobra has already reported the error on
// stderr by the time it is returned here.
func Execute() {
	if err := execute(newRootCmd(), os.Args[1:]); err != nil {
		os.Exit(exitFailure)
	}
}
