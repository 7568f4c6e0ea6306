package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/azyu/folioseek/internal/tui/styles"
	"github.com/azyu/folioseek/pkg/types"
)

var highlightsCmd = &cobra.Command{
	Use:   "highlights",
	Short: "Manage the highlights of a book",
}

var highlightsListCmd = &cobra.Command{
	Use:   "list <book>",
	Short: "List highlights",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chapter, _ := cmd.Flags().GetInt("chapter")
		deleted, _ := cmd.Flags().GetBool("deleted")

		vol, err := openBook(args[0])
		if err != nil {
			return err
		}

		var records []*types.Highlight
		if chapter >= 0 {
			records, err = vol.Highlights.FindByChapter(cmd.Context(), chapter)
		} else {
			records, err = vol.Highlights.List(cmd.Context(), deleted)
		}
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("No highlights.")
			return nil
		}
		for _, h := range records {
			kind := h.Rangy
			if h.IsLegacy() {
				kind = styles.InfoText.Render("legacy")
			}
			if h.Deleted {
				kind += styles.MutedText.Render(" (deleted)")
			}
			fmt.Printf("%s  ch%d  %s\n    %s\n", styles.MutedText.Render(h.ID), h.ChapterIndex, kind, styles.Swatch(h.Style).Render(h.Content))
		}
		return nil
	},
}

var highlightsAddCmd = &cobra.Command{
	Use:   "add <book>",
	Short: "Highlight a character range of a chapter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chapter, _ := cmd.Flags().GetInt("chapter")
		start, _ := cmd.Flags().GetInt("start")
		end, _ := cmd.Flags().GetInt("end")
		styleName, _ := cmd.Flags().GetString("style")
		note, _ := cmd.Flags().GetString("note")

		vol, err := openBook(args[0])
		if err != nil {
			return err
		}

		style := types.StyleForClass("highlight-" + strings.ToLower(styleName))
		h, err := vol.AddHighlight(cmd.Context(), chapter, start, end, style, note)
		if err != nil {
			return err
		}

		fmt.Printf("Added %s: %q\n", h.ID, h.Content)
		fmt.Println(styles.MutedText.Render(h.Rangy))
		return nil
	},
}

var highlightsImportCmd = &cobra.Command{
	Use:   "import <book> <file.yaml>",
	Short: "Import highlights from a YAML file",
	Long: `Import highlights from a YAML list. Records without a rangy anchor are
stored as legacy highlights and migrated when their chapter is prepared.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		vol, err := openBook(args[0])
		if err != nil {
			return err
		}

		f, err := os.Open(args[1])
		if err != nil {
			return fmt.Errorf("failed to open highlights file: %w", err)
		}
		defer f.Close()

		n, err := vol.ImportLegacy(cmd.Context(), f)
		if err != nil {
			return fmt.Errorf("import stopped after %d highlight(s): %w", n, err)
		}
		fmt.Printf("Imported %d highlight(s).\n", n)
		return nil
	},
}

var highlightsMigrateCmd = &cobra.Command{
	Use:   "migrate <book>",
	Short: "Anchor legacy highlights to the current chapter text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")

		vol, err := openBook(args[0])
		if err != nil {
			return err
		}

		chapters, err := vol.Highlights.LegacyChapters(cmd.Context())
		if err != nil {
			return err
		}
		if len(chapters) == 0 {
			fmt.Println("No legacy highlights to migrate.")
			return nil
		}

		if !yes {
			confirm := false
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewConfirm().
						Title(fmt.Sprintf("Migrate legacy highlights in %d chapter(s)?", len(chapters))).
						Description("Migrated records replace the legacy ones, which are kept as deleted.").
						Affirmative("Migrate").
						Negative("Cancel").
						Value(&confirm),
				),
			)
			if err := form.Run(); err != nil {
				return fmt.Errorf("confirmation failed: %w", err)
			}
			if !confirm {
				fmt.Println("Migration cancelled.")
				return nil
			}
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		report, err := vol.MigrateAll(ctx)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		fmt.Println(styles.SuccessText.Render(fmt.Sprintf(
			"Migrated %d highlight(s) in %d chapter(s).", report.Migrated, report.Chapters)))
		for _, f := range report.Failed {
			fmt.Printf("  %s %s: %v\n", styles.ErrorText.Render("not migrated"), f.ID, f.Err)
		}
		return nil
	},
}

func init() {
	highlightsListCmd.Flags().Int("chapter", -1, "Only list highlights of this chapter")
	highlightsListCmd.Flags().Bool("deleted", false, "Include deleted highlights")

	highlightsAddCmd.Flags().Int("chapter", 0, "Chapter index")
	highlightsAddCmd.Flags().Int("start", 0, "Start character offset")
	highlightsAddCmd.Flags().Int("end", 0, "End character offset (exclusive)")
	highlightsAddCmd.Flags().String("style", "yellow", "Style: yellow, green, blue, pink, underline")
	highlightsAddCmd.Flags().String("note", "", "Note attached to the highlight")
	highlightsAddCmd.MarkFlagRequired("end")

	highlightsMigrateCmd.Flags().BoolP("yes", "y", false, "Migrate without confirmation")

	highlightsCmd.AddCommand(highlightsListCmd)
	highlightsCmd.AddCommand(highlightsAddCmd)
	highlightsCmd.AddCommand(highlightsImportCmd)
	highlightsCmd.AddCommand(highlightsMigrateCmd)
}
