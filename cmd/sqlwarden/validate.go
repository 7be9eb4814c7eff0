package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/guillermoBallester/sqlwarden/internal/adapter/policy"
	"github.com/guillermoBallester/sqlwarden/internal/core/domain"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// errRejected makes the process exit non-zero after a rejection has been printed.
var errRejected = errors.New("query rejected")

func newValidateCmd(flags *serveFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [query]",
		Short: "Check a query against the validator without touching a database",
		Long:  "Runs the same checks read_data applies and prints the verdict. The query is read from stdin when no argument is given. Extra denylist keywords come from --policy-file or POLICY_FILE.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := queryFromArgs(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			policyFile := os.Getenv("POLICY_FILE")
			if flags.fs != nil && flags.fs.Changed("policy-file") {
				policyFile = flags.policyFile
			}
			validator, err := validatorFor(policyFile)
			if err != nil {
				return err
			}

			return printVerdict(cmd.OutOrStdout(), validator.Validate(query))
		},
	}
}

func queryFromArgs(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading query from stdin: %w", err)
	}
	return strings.TrimRight(string(b), "\n"), nil
}

func validatorFor(policyFile string) (*domain.QueryValidator, error) {
	if policyFile == "" {
		return domain.NewQueryValidator(), nil
	}
	pol, err := policy.LoadFromFile(policyFile)
	if err != nil {
		return nil, fmt.Errorf("loading policy: %w", err)
	}
	pt, err := pol.PatternTable()
	if err != nil {
		return nil, err
	}
	return domain.NewQueryValidatorWithTable(pt), nil
}

func printVerdict(w io.Writer, v domain.Verdict) error {
	if v.Accepted {
		pterm.Success.WithWriter(w).Println("query accepted")
		return nil
	}

	pterm.Error.WithWriter(w).Println(v.Reason)
	data := pterm.TableData{{"rule", string(v.Rule)}}
	if v.Keyword != "" {
		data = append(data, []string{"keyword", v.Keyword})
	}
	if err := pterm.DefaultTable.WithWriter(w).WithData(data).Render(); err != nil {
		return err
	}
	return errRejected
}
