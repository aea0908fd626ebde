package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate [template-id]",
	Short: "Materialize the upcoming window of a template",
	Args:  cobra.ExactArgs(1),
	RunE:  runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	now, err := a.now()
	if err != nil {
		return err
	}
	res, err := a.recurring.GenerateUpcoming(cmd.Context(), userID, id, now)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "created %d instances\n", len(res.Created))
	for _, inst := range res.Created {
		fmt.Fprintf(out, "  #%d %s\n", inst.ID, inst.DueDate.In(a.loc).Format("2006-01-02"))
	}
	return nil
}
