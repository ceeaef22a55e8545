package orchestrator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mlvd/dirsave/internal/input"
)

// PromptDeletions is the plain-stdin confirmation gate used with --cli or
// when no terminal UI is available. It prints the deletion plan and loops
// until it reads yes or no; Enter alone defaults to No.
func PromptDeletions(in io.Reader, out io.Writer) ConfirmFunc {
	return func(ctx context.Context, keptCount int, doomed []string) (bool, error) {
		fmt.Fprintf(out, "%d archive(s) will be kept, %d will be deleted:\n", keptCount, len(doomed))
		for _, name := range doomed {
			fmt.Fprintf(out, "  %s\n", name)
		}

		reader := bufio.NewReader(in)
		for {
			fmt.Fprint(out, "Proceed with deletion? [y/N] ")
			line, err := input.ReadLineWithContext(ctx, reader)
			if err != nil {
				return false, err
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "", "n", "no":
				return false, nil
			case "y", "yes":
				return true, nil
			default:
				fmt.Fprintln(out, "Please type yes or no.")
			}
		}
	}
}
