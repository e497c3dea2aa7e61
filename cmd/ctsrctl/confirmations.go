package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	confTrialFlag    string
	confStatusFlag   string
	confDueDaysFlag  int
	confTypeFlag     string
	confDueDateFlag  string
	confRoleFlag     string
	confCommentsFlag string
	confAttestFlag   bool
)

var confirmationsCmd = &cobra.Command{
	Use:   "confirmations",
	Short: "Manage confirmation cycles",
}

var confirmationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List confirmations",
	RunE:  runConfirmationsList,
}

var confirmationsOpenCmd = &cobra.Command{
	Use:   "open TRIAL_ID",
	Short: "Open a confirmation cycle for a trial",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfirmationsOpen,
}

var confirmationsSubmitCmd = &cobra.Command{
	Use:   "submit CONFIRMATION_ID",
	Short: "Submit a pending confirmation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfirmationsSubmit,
}

var confirmationsExportCmd = &cobra.Command{
	Use:   "export CONFIRMATION_ID",
	Short: "Print the CSV report of a completed confirmation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfirmationsExport,
}

func init() {
	confirmationsListCmd.Flags().StringVar(&confTrialFlag, "trial", "", "Filter by trial ID")
	confirmationsListCmd.Flags().StringVar(&confStatusFlag, "status", "", "Filter by status (PENDING, COMPLETED, OVERDUE)")
	confirmationsListCmd.Flags().IntVar(&confDueDaysFlag, "due-within", 0, "Only pending confirmations due within N days")
	confirmationsOpenCmd.Flags().StringVar(&confTypeFlag, "type", "PERIODIC", "Confirmation type (PERIODIC or DB_LOCK)")
	confirmationsOpenCmd.Flags().StringVar(&confDueDateFlag, "due", "", "Due date (YYYY-MM-DD, default: today)")
	confirmationsSubmitCmd.Flags().StringVar(&confRoleFlag, "role", "", "Submitter role")
	confirmationsSubmitCmd.Flags().StringVar(&confCommentsFlag, "comments", "", "Submission comments")
	confirmationsSubmitCmd.Flags().BoolVar(&confAttestFlag, "attest", false, "Attest that the linked system inventory is accurate")

	confirmationsCmd.AddCommand(confirmationsListCmd)
	confirmationsCmd.AddCommand(confirmationsOpenCmd)
	confirmationsCmd.AddCommand(confirmationsSubmitCmd)
	confirmationsCmd.AddCommand(confirmationsExportCmd)
}

func runConfirmationsList(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	if confTrialFlag != "" {
		q.Set("trial", confTrialFlag)
	}
	if confStatusFlag != "" {
		q.Set("status", confStatusFlag)
	}
	if confDueDaysFlag > 0 {
		q.Set("dueWithinDays", strconv.Itoa(confDueDaysFlag))
	}
	path := "/api/v1/confirmations/"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Confirmations []map[string]any `json:"confirmations"`
	}
	if err := newClient().getJSON(path, &resp); err != nil {
		return err
	}

	if outputFmt != "table" {
		return printOutput(resp.Confirmations)
	}

	rows := make([][]string, 0, len(resp.Confirmations))
	for _, c := range resp.Confirmations {
		rows = append(rows, []string{
			stringField(c, "ID"),
			stringField(c, "TrialID"),
			stringField(c, "ConfirmationType"),
			stringField(c, "Status"),
			truncate(stringField(c, "DueDate"), 10),
			stringField(c, "SubmittedBy"),
		})
	}
	printTable([]string{"ID", "Trial", "Type", "Status", "Due", "Submitted By"}, rows)
	return nil
}

func runConfirmationsOpen(cmd *cobra.Command, args []string) error {
	body := map[string]any{
		"trial_id":          args[0],
		"confirmation_type": confTypeFlag,
	}
	if confDueDateFlag != "" {
		body["due_date"] = confDueDateFlag
	}

	var conf map[string]any
	if err := newClient().postJSON("/api/v1/confirmations/", body, &conf); err != nil {
		return err
	}
	fmt.Printf("Opened %s confirmation %s for trial %s\n",
		stringField(conf, "ConfirmationType"), stringField(conf, "ID"), args[0])
	return nil
}

func runConfirmationsSubmit(cmd *cobra.Command, args []string) error {
	if resolvedUser() == "" {
		return fmt.Errorf("a submitting identity is required (use --as or CTSR_USER_EMAIL)")
	}
	if !confAttestFlag {
		return fmt.Errorf("submission requires --attest")
	}

	body := map[string]any{
		"submitter_role": confRoleFlag,
		"comments":       confCommentsFlag,
		"attested":       true,
	}

	var conf map[string]any
	if err := newClient().postJSON("/api/v1/confirmations/"+args[0]+"/submit", body, &conf); err != nil {
		return err
	}
	fmt.Printf("Confirmation %s completed (%s systems)\n",
		args[0], stringField(conf, "SystemsCount"))
	return nil
}

func runConfirmationsExport(cmd *cobra.Command, args []string) error {
	resp, err := newClient().http.Get(serverURL + "/api/v1/exports/confirmations/" + args[0] + ".csv")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	_, err = stdoutCopy(resp.Body)
	return err
}
