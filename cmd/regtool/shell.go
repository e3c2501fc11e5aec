package main

import (
	"bufio"
	"fmt"

	"github.com/google/shlex"
	"github.com/spf13/cobra"
)

const prompt = "regtool> "

// shellCmd reads commands line by line. Lines are split like a POSIX shell,
// so quoted arguments survive.
func shellCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run commands interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			sc := bufio.NewScanner(cmd.InOrStdin())
			fmt.Fprint(out, prompt)
			for sc.Scan() {
				words, err := shlex.Split(sc.Text())
				switch {
				case err != nil:
					fmt.Fprintln(out, "error:", err)
				case len(words) == 0:
				case words[0] == "exit" || words[0] == "quit":
					return nil
				case words[0] == "shell":
					fmt.Fprintln(out, "already in the shell")
				default:
					sub := *opts
					line := newRootCmd(&sub)
					line.SetArgs(words)
					line.SetOut(out)
					line.SetErr(out)
					if err := line.Execute(); err != nil {
						fmt.Fprintln(out, "error:", err)
					}
				}
				fmt.Fprint(out, prompt)
			}
			return sc.Err()
		},
	}
}
