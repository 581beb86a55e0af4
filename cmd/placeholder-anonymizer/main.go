// Command placeholder-anonymizer replaces sensitive values in text with
// placeholders such as <PERSON_0> and restores them later.
//
// The value-to-placeholder mapping is written to a file during anonymize
// and read back during deanonymize. Restoration uses only that mapping, so
// the anonymized text may be edited in between.
//
// Usage:
//
//	# Anonymize with the built-in regex detector
//	echo "Mail ops@example.com" | placeholder-anonymizer anonymize
//
//	# Use a Presidio analyzer first, then regex
//	placeholder-anonymizer anonymize --detectors presidio,regex < in.txt
//
//	# Restore, keeping the mapping in a bbolt database
//	placeholder-anonymizer deanonymize --entity-mapping-file ~/.cache/mapping.db < out.txt
package main

import (
	"fmt"
	"io"
	"os"

	"placeholder-anonymizer/internal/cli"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes the command and returns the process exit status.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := cli.NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
