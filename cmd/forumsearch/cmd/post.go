package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/xHumanityRO/forumsearch/internal/daemon"
	"github.com/xHumanityRO/forumsearch/internal/errors"
	"github.com/xHumanityRO/forumsearch/internal/output"
)

func newPostCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Inspect or sync a single post",
		Long: `Commands for one post, sent to the daemon.

Commands:
  find     Report whether a post is in the index
  created  Index a new post from the database
  updated  Re-index an edited post
  deleted  Remove a post from the index

Examples:
  forumsearch post find 1234
  forumsearch post updated 1234`,
	}

	cmd.AddCommand(newPostFindCmd())
	cmd.AddCommand(newPostEventCmd("created", "Index a newly created post", (*daemon.Client).PostCreated))
	cmd.AddCommand(newPostEventCmd("updated", "Re-index an edited post", (*daemon.Client).PostUpdated))
	cmd.AddCommand(newPostEventCmd("deleted", "Remove a post from the index", (*daemon.Client).PostDeleted))

	return cmd
}

func newPostFindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find <post-id>",
		Short: "Report whether a post is in the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePostID(args[0])
			if err != nil {
				return err
			}
			client, err := daemonClient()
			if err != nil {
				return err
			}

			res, err := client.FindPost(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if !res.Indexed || res.Document == nil {
				out.Warningf("Post %d is not indexed", id)
				return nil
			}
			doc := res.Document
			out.Successf("Post %d is indexed", id)
			out.Statusf("", "Forum %d, topic %d, user %d, %s", doc.ForumID, doc.TopicID, doc.UserID,
				doc.Date.Local().Format("2006-01-02 15:04"))
			out.Statusf("", "Subject: %s", doc.Subject)
			return nil
		},
	}
}

func newPostEventCmd(op, short string, send func(*daemon.Client, context.Context, int) error) *cobra.Command {
	return &cobra.Command{
		Use:   op + " <post-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePostID(args[0])
			if err != nil {
				return err
			}
			client, err := daemonClient()
			if err != nil {
				return err
			}
			if err := send(client, cmd.Context(), id); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Post %d %s", id, op)
			return nil
		},
	}
}

func parsePostID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, errors.ValidationError(fmt.Sprintf("invalid post id %q", s), err)
	}
	return id, nil
}

// daemonClient returns a client for the configured daemon, failing when it
// is not running.
func daemonClient() (*daemon.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	client := daemon.NewClient(daemon.FromConfig(cfg))
	if !client.IsRunning() {
		return nil, errDaemonNotRunning
	}
	return client, nil
}
