package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"task-planner/internal/service"
)

var previewCmd = &cobra.Command{
	Use:   "preview [template-id]",
	Short: "Show the next occurrences of a template without writing anything",
	Args:  cobra.ExactArgs(1),
	RunE:  runPreview,
}

func init() {
	previewCmd.Flags().Int("count", 5, "Number of occurrences to show")
}

func runPreview(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	count, _ := cmd.Flags().GetInt("count")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	now, err := a.now()
	if err != nil {
		return err
	}
	tpl, err := a.taskRepo.FindByID(cmd.Context(), userID, id)
	if err != nil {
		return fmt.Errorf("load template %d: %w", id, err)
	}
	dates, err := a.recurring.Preview(cmd.Context(), tpl, now, count)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "#%d %s (%s)\n", tpl.ID, tpl.Title, tpl.Rule())
	fmt.Fprintf(out, "  %s\n", service.DescribeRule(tpl.Rule()))
	if len(dates) == 0 {
		fmt.Fprintln(out, "  no further occurrences")
		return nil
	}
	for _, at := range dates {
		fmt.Fprintf(out, "  %s\n", at.In(a.loc).Format("2006-01-02 Mon"))
	}
	return nil
}
