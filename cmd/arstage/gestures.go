package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ayusman/arstage/internal/assets"
	"github.com/ayusman/arstage/internal/gesture"
	"github.com/ayusman/arstage/internal/store"
)

var gesturesCmd = &cobra.Command{
	Use:   "gestures",
	Short: "Manage the stored gesture library",
}

var gesturesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the gestures in declaration order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		gestures, err := st.Gestures().List()
		if err != nil {
			return err
		}
		if len(gestures) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No stored gestures; the built-in library is used:")
			return gesture.WriteLibrary(cmd.OutOrStdout(), gesture.DefaultLibrary())
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "POSITION\tNAME\tID\tUPDATED")
		for _, g := range gestures {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", g.Position, g.Name, g.ID, g.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var gesturesImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Replace the stored library with a YAML gesture file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path := args[0]
		lib, err := assets.Load(cmd.Context(), path, cfg.AssetTimeout, func(context.Context) ([]*gesture.Description, error) {
			return gesture.LoadLibraryFile(path)
		})
		if err != nil {
			return err
		}

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Gestures().Replace(lib); err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d gestures from %s\n", len(lib), path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(gesturesCmd)
	gesturesCmd.AddCommand(gesturesListCmd, gesturesImportCmd)
}

func openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return store.New(cfg.DBPath())
}
