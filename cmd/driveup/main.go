package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"impractical.co/driveup/config"
	"impractical.co/driveup/ghaction"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "driveup",
		Short: "Upload a file to Google Drive",
		Long: `Upload a single file to a Google Drive folder, creating any folders in the
target path that don't exist yet.

Every flag can also be set with an INPUT_<NAME> environment variable, which is
how GitHub Actions passes inputs: --parent-folder-id becomes
INPUT_PARENT_FOLDER_ID. Flags win over the environment.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sink, err := ghaction.FromEnvironment(cmd.OutOrStdout())
			if err != nil {
				sink.Failure(err)
				return err
			}

			v, err := config.New(cmd.Flags())
			if err != nil {
				sink.Failure(err)
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				sink.Failure(err)
				return err
			}
			id, err := run(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				sink.Failure(err)
				return err
			}
			sink.Success(id)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String(config.FlagName(config.InputCredentials), "", "base64-encoded service account credentials JSON")
	flags.String(config.FlagName(config.InputParentFolderID), "", "ID of the Drive folder the target path is relative to")
	flags.String(config.FlagName(config.InputSourceFilePath), "", "local file to upload")
	flags.String(config.FlagName(config.InputTargetFilePath), "", "slash-separated target path; defaults to the source file name")
	flags.Bool(config.FlagName(config.InputOverwrite), false, "update the target file if it already exists")
	flags.Bool(config.FlagName(config.InputChecksum), false, "also upload a checksum file next to the target")
	flags.String(config.FlagName(config.InputChecksumAlgorithm), "sha256", "algorithm for the checksum file")
	flags.String(config.FlagName(config.InputIntegrityAlgorithm), "md5", "algorithm Drive is asked to report to verify transfers (md5, sha1, sha256)")
	flags.String(config.FlagName(config.InputLogLevel), "info", "debug, info, or error")
	flags.Bool(config.FlagName(config.InputDryRun), false, "upload to an in-memory store instead of Google Drive")
	flags.Duration(config.FlagName(config.InputTimeout), 10*time.Minute, "maximum duration of the whole upload")
	return cmd
}
