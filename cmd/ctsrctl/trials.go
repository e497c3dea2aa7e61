package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var (
	trialStatusFlag  string
	trialSearchFlag  string
	linkCriticality  string
	linkOverrideFlag string
	unlinkReasonFlag string
)

var trialsCmd = &cobra.Command{
	Use:   "trials",
	Short: "Manage clinical trials and their system links",
}

var trialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trials",
	RunE:  runTrialsList,
}

var trialsGetCmd = &cobra.Command{
	Use:   "get TRIAL_ID",
	Short: "Show a trial with its live system links",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrialsGet,
}

var trialsLinkCmd = &cobra.Command{
	Use:   "link TRIAL_ID INSTANCE_ID",
	Short: "Link a system instance to a trial",
	Args:  cobra.ExactArgs(2),
	RunE:  runTrialsLink,
}

var trialsUnlinkCmd = &cobra.Command{
	Use:   "unlink TRIAL_ID LINK_ID",
	Short: "End a trial-system link",
	Args:  cobra.ExactArgs(2),
	RunE:  runTrialsUnlink,
}

func init() {
	trialsListCmd.Flags().StringVar(&trialStatusFlag, "status", "", "Filter by trial status")
	trialsListCmd.Flags().StringVar(&trialSearchFlag, "search", "", "Search protocol number, title, or therapeutic area")
	trialsLinkCmd.Flags().StringVar(&linkCriticality, "criticality", "", "Criticality code (required)")
	trialsLinkCmd.Flags().StringVar(&linkOverrideFlag, "override-reason", "", "Reason when criticality differs from the category default")
	trialsUnlinkCmd.Flags().StringVar(&unlinkReasonFlag, "reason", "", "Reason for ending the link (required)")

	trialsCmd.AddCommand(trialsListCmd)
	trialsCmd.AddCommand(trialsGetCmd)
	trialsCmd.AddCommand(trialsLinkCmd)
	trialsCmd.AddCommand(trialsUnlinkCmd)
}

func runTrialsList(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	if trialStatusFlag != "" {
		q.Set("status", trialStatusFlag)
	}
	if trialSearchFlag != "" {
		q.Set("search", trialSearchFlag)
	}
	path := "/api/v1/trials/"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Trials []map[string]any `json:"trials"`
	}
	if err := newClient().getJSON(path, &resp); err != nil {
		return err
	}

	if outputFmt != "table" {
		return printOutput(resp.Trials)
	}

	rows := make([][]string, 0, len(resp.Trials))
	for _, t := range resp.Trials {
		rows = append(rows, []string{
			stringField(t, "ProtocolNumber"),
			truncate(stringField(t, "Title"), 40),
			stringField(t, "Status"),
			stringField(t, "Phase"),
			stringField(t, "NextConfirmationDue"),
		})
	}
	printTable([]string{"Protocol", "Title", "Status", "Phase", "Next Due"}, rows)
	return nil
}

func runTrialsGet(cmd *cobra.Command, args []string) error {
	var resp map[string]any
	if err := newClient().getJSON("/api/v1/trials/"+args[0], &resp); err != nil {
		return err
	}
	if outputFmt == "table" {
		return printJSON(resp)
	}
	return printOutput(resp)
}

func runTrialsLink(cmd *cobra.Command, args []string) error {
	if linkCriticality == "" {
		return fmt.Errorf("--criticality is required")
	}

	body := map[string]any{
		"instance_id":      args[1],
		"criticality_code": linkCriticality,
	}
	if linkOverrideFlag != "" {
		body["criticality_override_reason"] = linkOverrideFlag
	}

	var link map[string]any
	if err := newClient().postJSON("/api/v1/trials/"+args[0]+"/links", body, &link); err != nil {
		return err
	}
	fmt.Printf("Linked system %s to trial %s (link %s)\n", args[1], args[0], stringField(link, "ID"))
	return nil
}

func runTrialsUnlink(cmd *cobra.Command, args []string) error {
	if unlinkReasonFlag == "" {
		return fmt.Errorf("--reason is required")
	}

	path := "/api/v1/trials/" + args[0] + "/links/" + args[1]
	if err := newClient().delete(path, map[string]string{"reason": unlinkReasonFlag}); err != nil {
		return err
	}
	fmt.Printf("Unlinked %s from trial %s\n", args[1], args[0])
	return nil
}
