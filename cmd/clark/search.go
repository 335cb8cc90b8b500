package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ArmanBehnam/clark/internal/model"
	"github.com/ArmanBehnam/clark/internal/storage"
)

var (
	searchLimit int
	searchType  string
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find stored pages similar to a query",
	Long: `Semantic search over stored pages. Needs storage.qdrant_url and
storage.voyage_api_key.

Examples:
  clark search "wind load design criteria"
  clark search "anchor bolt embedment" --type STRUCTURAL_NOTES --limit 5`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		docType := strings.ToUpper(strings.TrimSpace(searchType))
		if docType != "" && !model.DocumentType(docType).Valid() {
			return fmt.Errorf("unknown document type %q", searchType)
		}

		sm, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		defer sm.Close()

		hits, err := sm.Search(ctx, strings.Join(args, " "), searchLimit, docType)
		if err != nil {
			return err
		}
		if searchJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(hits)
		}
		if len(hits) == 0 {
			fmt.Println("No matches")
			return nil
		}
		for i, h := range hits {
			fmt.Printf("%2d. %.3f  %s p.%d  [%s]\n", i+1, h.Score, h.Filename, h.PageNumber, h.DocumentType)
			fmt.Printf("    %s\n", h.Snippet)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of pages")
	searchCmd.Flags().StringVar(&searchType, "type", "", "only pages of this document type")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print hits as JSON")
	rootCmd.AddCommand(searchCmd)
}
