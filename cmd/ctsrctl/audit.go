package main

import (
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit ENTITY_TYPE ENTITY_ID",
	Short: "Show the audit trail of an entity",
	Long: `Show the audit trail of an entity, newest change first.

Entity types: trial, trial_system_link, system_instance, vendor, confirmation.`,
	Args: cobra.ExactArgs(2),
	RunE: runAudit,
}

func runAudit(cmd *cobra.Command, args []string) error {
	var resp struct {
		Entries []map[string]any `json:"entries"`
	}
	path := "/api/v1/audit/" + args[0] + "/" + args[1]
	if err := newClient().getJSON(path, &resp); err != nil {
		return err
	}

	if outputFmt != "table" {
		return printOutput(resp.Entries)
	}

	rows := make([][]string, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		rows = append(rows, []string{
			stringField(e, "changed_at"),
			stringField(e, "operation"),
			stringField(e, "actor"),
			stringField(e, "entity_type"),
		})
	}
	printTable([]string{"Changed At", "Operation", "Actor", "Entity"}, rows)
	return nil
}
