/*
Package cli provides command-line helpers for the tether command.

Output Formatting:

Command results are written as text, JSON or CSV. Values implementing
Tabular are rendered as aligned columns in text mode and as rows in CSV:

	formatter, err := cli.NewFormatter(cli.FormatJSON)
	if err != nil {
		return err
	}
	if err := formatter.FormatTo(os.Stdout, result); err != nil {
		return err
	}

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

Exit Codes:

ExitCode maps command errors to process exit codes: 2 for configuration
errors, 3 for failed validations and 1 for everything else.
*/
package cli
