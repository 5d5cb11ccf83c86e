package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newDocsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Inspect the SharePoint document library",
	}
	cmd.AddCommand(newDocsListCommand())
	return cmd
}

func newDocsListCommand() *cobra.Command {
	var (
		folder string
		filter string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List items in a document library folder",
		Example: `  # List the library root
  envforge docs list

  # List one project's folder
  envforge docs list --folder "PRJ-001_Website Redesign"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			token, err := rt.token()
			if err != nil {
				return err
			}

			site, err := rt.Client.SiteByURL(cmd.Context(), token, rt.Config.SiteURL)
			if err != nil {
				return err
			}
			items, err := rt.Client.ListChildren(cmd.Context(), token, site.ID, folder)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			shown := 0
			for _, item := range items {
				if filter != "" && !strings.Contains(strings.ToLower(item.Name), strings.ToLower(filter)) {
					continue
				}
				kind := "file"
				if item.IsFolder() {
					kind = "folder"
				}
				fmt.Fprintf(out, "%-6s %-50s %s\n", kind, item.Name, item.ID)
				shown++
			}
			fmt.Fprintf(out, "%d item(s)\n", shown)
			return nil
		},
	}

	cmd.Flags().StringVar(&folder, "folder", "", "folder path relative to the library root (default: root)")
	cmd.Flags().StringVar(&filter, "filter", "", "only items whose name contains this substring")

	return cmd
}
