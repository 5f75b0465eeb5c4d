package cmd

import (
	"fmt"
	"strings"

	"github.com/akedrou/textdiff"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/open-policy-agent/jar-relocator/internal/transformer"
)

type planParams struct {
	relocationParams
	logParams
	diff bool
}

func planCommand() *cobra.Command {
	var p planParams

	c := &cobra.Command{
		Use:   "plan [flags] [JAR]",
		Short: "Show where each entry of a jar would be written",
		Long: `Plan runs a relocation pass without writing anything and lists the
entries the pass would produce. With --diff the entry names are printed as a
unified diff between the jar and its relocated form instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, args, &p)
		},
	}

	addRelocationFlags(c.Flags(), &p.relocationParams)
	addLogFlags(c.Flags(), &p.logParams)
	c.Flags().BoolVar(&p.diff, "diff", false, "print a unified diff of entry names")

	return c
}

func runPlan(cmd *cobra.Command, args []string, p *planParams) error {
	cfg, jars, err := p.load(cmd, args)
	if err != nil {
		return err
	}

	rules, err := cfg.Rules()
	if err != nil {
		return err
	}

	plan, err := transformer.New().
		WithRules(rules).
		WithLogger(p.logger(cmd.ErrOrStderr())).
		WithServiceFiles(cfg.Options.ServiceFiles).
		Plan(jars[0])
	if err != nil {
		return err
	}

	if p.diff {
		return printDiff(cmd, jars[0], plan)
	}

	rows := make([][]string, 0, len(plan))
	for _, m := range plan {
		rows = append(rows, []string{m.Original, m.Mapped, string(m.Kind)})
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Original", "Mapped", "Kind")
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

// printDiff compares the names read from the jar with the names written.
// Synthesised directories only appear on the new side.
func printDiff(cmd *cobra.Command, jar string, plan []transformer.Mapping) error {
	var before, after strings.Builder
	for _, m := range plan {
		if m.Original != "" {
			fmt.Fprintln(&before, m.Original)
		}
		switch m.Kind {
		case transformer.KindSkipped, transformer.KindDropped:
		default:
			fmt.Fprintln(&after, m.Mapped)
		}
	}

	_, err := fmt.Fprint(cmd.OutOrStdout(), textdiff.Unified(jar, jar+" (relocated)", before.String(), after.String()))
	return err
}
