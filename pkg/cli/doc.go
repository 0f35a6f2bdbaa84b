/*
Package cli provides command-line helpers for the floodgate command.

Output Formatting:

Command results that implement Tabular can render as aligned text, CSV, or
JSON:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, result); err != nil {
		return err
	}

Progress Reporting:

Long-running operations such as load tests report progress with a bar that
rewrites in place:

	progress := cli.NewProgressReporter(os.Stdout)
	progress.Start(total)
	progress.Update(done)
	progress.Finish()

Signal Handling:

SetupSignalHandler returns a context canceled on SIGINT or SIGTERM, used to
drive graceful shutdown of the gateway and its background loops.
*/
package cli
