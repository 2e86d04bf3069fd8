package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/marginalia/internal/engine"
	"github.com/MeKo-Tech/marginalia/internal/persistence"
)

var bookmarksCmd = &cobra.Command{
	Use:   "bookmarks",
	Short: "List and toggle page bookmarks",
}

var bookmarksListCmd = &cobra.Command{
	Use:   "list <document>",
	Short: "List the bookmarks of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var bms []persistence.Bookmark
		err := withSession(cmd.Context(), args[0], func(sess *engine.Session) error {
			return sess.WithBookmarks(func(b *persistence.Bookmarks) error {
				bms = b.List()
				return nil
			})
		})
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "PAGE\tID\tNOTE")
		for _, bm := range bms {
			_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\n", bm.PageNumber, bm.ID, bm.Note)
		}
		return tw.Flush()
	},
}

var bookmarksToggleCmd = &cobra.Command{
	Use:     "toggle <document> <page>",
	Short:   "Add a bookmark to a page, or remove the page's bookmarks",
	Example: "  marginalia bookmarks toggle paper.pdf 4",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, err := strconv.Atoi(args[1])
		if err != nil || page < 1 {
			return fmt.Errorf("invalid page number: %s", args[1])
		}

		var added bool
		err = withSession(cmd.Context(), args[0], func(sess *engine.Session) error {
			if page > sess.TotalPages() {
				return fmt.Errorf("%w: %d of %d", engine.ErrPageOutOfRange, page, sess.TotalPages())
			}
			return sess.WithBookmarks(func(b *persistence.Bookmarks) error {
				added = b.Toggle(page)
				return nil
			})
		})
		if err != nil {
			return err
		}

		if added {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "bookmarked page %d\n", page)
		} else {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed bookmark from page %d\n", page)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(bookmarksCmd)
	bookmarksCmd.AddCommand(bookmarksListCmd, bookmarksToggleCmd)
}
