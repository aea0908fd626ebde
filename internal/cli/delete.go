package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [template-id]",
	Short: "Delete a template, its future instances, and detach the rest",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var instancesCmd = &cobra.Command{
	Use:   "instances [template-id]",
	Short: "List the tasks still linked to a template",
	Args:  cobra.ExactArgs(1),
	RunE:  runInstances,
}

func runDelete(cmd *cobra.Command, args []string) error {
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
	res, err := a.recurring.OnTemplateDeleted(cmd.Context(), userID, id, now)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d future instances, orphaned %d\n", res.DeletedCount, res.OrphanedCount)
	return nil
}

func runInstances(cmd *cobra.Command, args []string) error {
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

	tpl, err := a.taskRepo.FindByID(cmd.Context(), userID, id)
	if err != nil {
		return fmt.Errorf("load template %d: %w", id, err)
	}
	list, err := a.taskRepo.ListInstances(cmd.Context(), tpl.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "no instances")
		return nil
	}
	for _, inst := range list {
		due := "-"
		if inst.DueDate != nil {
			due = inst.DueDate.In(a.loc).Format("2006-01-02")
		}
		fmt.Fprintf(out, "#%-5d %s  %-12s %s\n", inst.ID, due, inst.Status, inst.Title)
	}
	return nil
}
