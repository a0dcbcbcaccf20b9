package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List or delete saved extraction sessions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved sessions, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)
			kv, sessions, _, err := openStore(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer kv.Close()

			entries, err := sessions.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tFILE\tUPDATED")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.UploadType, e.OriginalFilename, e.UpdatedAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		},
	}
	addStoreFlag(list)

	del := &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete saved sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)
			kv, sessions, _, err := openStore(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer kv.Close()

			for _, id := range args {
				if err := sessions.Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			}
			return nil
		},
	}
	addStoreFlag(del)

	cmd.AddCommand(list, del)
	return cmd
}
