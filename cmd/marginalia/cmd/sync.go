package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/marginalia/internal/config"
	"github.com/MeKo-Tech/marginalia/internal/engine"
	"github.com/MeKo-Tech/marginalia/internal/persistence"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Exchange annotations with the remote annotation service",
	Long: `Push local annotations to, or pull them from, the annotation service
configured under remote.endpoint.

Examples:
  marginalia sync pull paper.pdf
  marginalia sync push paper.pdf --endpoint https://api.example.com/annotations`,
}

var syncPushCmd = &cobra.Command{
	Use:   "push <document>",
	Short: "Store local annotations on the service, page by page",
	Long: `Store every annotated page of a document on the service. Each page payload
merges the shapes already on the service with the local committed and
pending shapes. A page that fails is reported and the remaining pages are
still stored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := remoteClient(cmd)
		if err != nil {
			return err
		}

		var report persistence.SaveReport
		err = withSession(cmd.Context(), args[0], func(sess *engine.Session) error {
			report, err = push(cmd.Context(), client, sess)
			return err
		})
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "saved %d of %d pages (%d skipped)\n",
			report.Saved, report.Attempted, report.Skipped)
		if failed := report.FailedPages(); len(failed) > 0 {
			return fmt.Errorf("failed to save pages %v: %w", failed, report.Err())
		}
		return nil
	},
}

var syncPullCmd = &cobra.Command{
	Use:   "pull <document>",
	Short: "Import annotations from the service that are not stored locally",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := remoteClient(cmd)
		if err != nil {
			return err
		}

		var added int
		err = withSession(cmd.Context(), args[0], func(sess *engine.Session) error {
			pages, err := client.Fetch(cmd.Context(), sess.Document())
			if err != nil {
				return err
			}
			added = sess.ImportRemote(pages)
			return nil
		})
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d annotations\n", added)
		return nil
	},
}

// push fetches the service copy of the document and stores the merged pages.
func push(ctx context.Context, client *persistence.RemoteClient, sess *engine.Session) (persistence.SaveReport, error) {
	server, err := client.Fetch(ctx, sess.Document())
	if err != nil {
		return persistence.SaveReport{}, err
	}
	return client.Save(ctx, sess.Document(), sess.Snapshots(server))
}

func remoteClient(cmd *cobra.Command) (*persistence.RemoteClient, error) {
	cfg := GetConfig()
	if cmd.Flags().Changed("endpoint") {
		cfg.Remote.Endpoint, _ = cmd.Flags().GetString("endpoint")
	}
	if cmd.Flags().Changed("token") {
		cfg.Remote.Token, _ = cmd.Flags().GetString("token")
	}
	if cfg.Remote.Endpoint == "" {
		return nil, errors.New("no annotation service configured (set remote.endpoint or --endpoint)")
	}
	return newRemoteClient(cfg)
}

func newRemoteClient(cfg *config.Config) (*persistence.RemoteClient, error) {
	return persistence.NewRemoteClient(cfg.ToRemoteConfig(), persistence.WithRemoteLogger(slog.Default()))
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncPushCmd, syncPullCmd)
	syncCmd.PersistentFlags().String("endpoint", "", "annotation service endpoint (overrides remote.endpoint)")
	syncCmd.PersistentFlags().String("token", "", "annotation service bearer token (overrides remote.token)")
}
