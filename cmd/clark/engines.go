package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ArmanBehnam/clark/internal/document"
	"github.com/ArmanBehnam/clark/internal/engine"
)

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "Show OCR engines and system information",
	Long: `List the OCR engines registered from configuration in selection order,
with their capabilities, and report missing external tools.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg, err := engine.BuildRegistry(cfg.OCR)
		if err != nil {
			return err
		}

		order := engine.SelectionOrder(cfg.OCR.PreferredEngine, cfg.OCR.FallbackEngines)
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ENGINE\tPRIORITY\tCOST\tTABLES\tNETWORK\tMAX SIZE")
		for _, c := range reg.Candidates(order) {
			d := c.Engine.Descriptor()
			maxSize := "-"
			if d.Capabilities.MaxInputBytes > 0 {
				maxSize = fmt.Sprintf("%d MB", d.Capabilities.MaxInputBytes>>20)
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%t\t%t\t%s\n",
				d.Name, c.Priority, d.Cost, d.Capabilities.SupportsTables, d.Capabilities.RequiresNetwork, maxSize)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if reg.Len() == 0 {
			fmt.Println("\nNo engines available: pages without a text layer will use the local fallback detector.")
		}

		fmt.Printf("\nSystem\n")
		fmt.Printf("  Platform:   %s/%s, %d CPUs\n", runtime.GOOS, runtime.GOARCH, runtime.NumCPU())
		fmt.Printf("  Workers:    %d\n", cfg.Processing.Workers)
		fmt.Printf("  Keywords:   %s\n", strings.Join(cfg.Keywords(), ", "))
		if missing := document.CheckTools(); len(missing) > 0 {
			fmt.Printf("  Missing:    %s (install poppler-utils for PDF input)\n", strings.Join(missing, ", "))
		} else {
			fmt.Printf("  Poppler:    ok\n")
		}
		if cm := cfgManager; cm != nil && cm.ConfigFileUsed() != "" {
			fmt.Printf("  Config:     %s\n", cm.ConfigFileUsed())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enginesCmd)
}
