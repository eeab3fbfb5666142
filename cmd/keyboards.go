package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/bnema/softkeys/internal/config"
	"github.com/bnema/softkeys/internal/layout"
	"github.com/bnema/softkeys/internal/ui"
	"github.com/spf13/cobra"
)

var keyboardsCmd = &cobra.Command{
	Use:     "keyboards",
	Aliases: []string{"kb"},
	Short:   "Inspect keyboard catalogs",
}

var keyboardsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the keyboards in switching order",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		catalog, err := loadCatalog(cfg)
		if err != nil {
			return err
		}

		source := cfg.Keyboards.CatalogPath
		if source == "" {
			source = "built-in"
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.SubtleStyle.Render("Catalog: "+source))

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "Name\tLabel\tType\tEngine\tRows")
		for _, name := range catalog.Keyboards() {
			d, _ := catalog.Descriptor(name)
			engineID := d.Engine
			if engineID == "" {
				engineID = "-"
			}
			marker := ""
			if name == cfg.Keyboards.Default {
				marker = " *"
			}
			fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\t%d\n", name, marker, d.Label, d.Type, engineID, len(d.Rows))
		}
		return w.Flush()
	},
}

var keyboardsValidateCmd = &cobra.Command{
	Use:   "validate <catalog.json>...",
	Short: "Check catalog files against the catalog schema",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var failed []string
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err == nil {
				_, err = layout.Parse(data)
			}
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), ui.ErrorStyle.Render(ui.IconFailed+" "+path+": "+err.Error()))
				failed = append(failed, path)
				continue
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.SuccessStyle.Render(ui.IconReady+" "+path))
		}
		if len(failed) > 0 {
			return fmt.Errorf("invalid catalog: %s", strings.Join(failed, ", "))
		}
		return nil
	},
}

func init() {
	keyboardsCmd.AddCommand(keyboardsListCmd)
	keyboardsCmd.AddCommand(keyboardsValidateCmd)
	rootCmd.AddCommand(keyboardsCmd)
}
