package main

import (
	"net/url"

	"github.com/spf13/cobra"
)

var (
	systemCategoryFlag string
	systemSearchFlag   string
	systemInactiveFlag bool
)

var systemsCmd = &cobra.Command{
	Use:   "systems",
	Short: "Browse registered system instances",
}

var systemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List system instances",
	RunE:  runSystemsList,
}

var systemsGetCmd = &cobra.Command{
	Use:   "get INSTANCE_ID",
	Short: "Show a system instance",
	Args:  cobra.ExactArgs(1),
	RunE:  runSystemsGet,
}

func init() {
	systemsListCmd.Flags().StringVar(&systemCategoryFlag, "category", "", "Filter by category code")
	systemsListCmd.Flags().StringVar(&systemSearchFlag, "search", "", "Search instance code or platform name")
	systemsListCmd.Flags().BoolVar(&systemInactiveFlag, "include-inactive", false, "Include deactivated instances")

	systemsCmd.AddCommand(systemsListCmd)
	systemsCmd.AddCommand(systemsGetCmd)
}

func runSystemsList(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	if systemCategoryFlag != "" {
		q.Set("category", systemCategoryFlag)
	}
	if systemSearchFlag != "" {
		q.Set("search", systemSearchFlag)
	}
	if systemInactiveFlag {
		q.Set("includeInactive", "true")
	}
	path := "/api/v1/systems/"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Systems []map[string]any `json:"systems"`
	}
	if err := newClient().getJSON(path, &resp); err != nil {
		return err
	}

	if outputFmt != "table" {
		return printOutput(resp.Systems)
	}

	rows := make([][]string, 0, len(resp.Systems))
	for _, s := range resp.Systems {
		rows = append(rows, []string{
			stringField(s, "InstanceCode"),
			truncate(stringField(s, "PlatformName"), 30),
			stringField(s, "PlatformVersion"),
			stringField(s, "CategoryCode"),
			stringField(s, "ValidationStatusCode"),
		})
	}
	printTable([]string{"Code", "Platform", "Version", "Category", "Validation"}, rows)
	return nil
}

func runSystemsGet(cmd *cobra.Command, args []string) error {
	var resp map[string]any
	if err := newClient().getJSON("/api/v1/systems/"+args[0], &resp); err != nil {
		return err
	}
	if outputFmt == "table" {
		return printJSON(resp)
	}
	return printOutput(resp)
}
