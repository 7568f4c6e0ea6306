// Package main is the entry point for folioseek.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/azyu/folioseek/internal/app"
	"github.com/azyu/folioseek/internal/library"
	"github.com/azyu/folioseek/internal/search"
	"github.com/azyu/folioseek/internal/tui"
	"github.com/azyu/folioseek/internal/tui/styles"
	"github.com/azyu/folioseek/pkg/types"
)

var version = "0.1.0"

var (
	configPath  string
	logLevel    string
	showMetrics bool
)

// application is set by the root command before any subcommand runs.
var application *app.App

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styles.ErrorText.Render(err.Error()))
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "folioseek",
	Short: "Incremental full-book search for ePub files",
	Long: `folioseek searches ePub books chapter by chapter, showing results as
soon as each batch of chapters is scanned. It keeps a full-text index and
the reader's highlights per book.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(app.Options{
			ConfigPath: configPath,
			LogLevel:   logLevel,
			Metrics:    showMetrics,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}
		application = a
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if application == nil {
			return nil
		}
		defer application.Close()
		if showMetrics && application.Metrics != nil {
			return application.Metrics.WriteText(os.Stderr)
		}
		return nil
	},
}

// commandContext returns a context cancelled on interrupt.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt)
}

func openBook(path string) (*library.Volume, error) {
	vol, err := application.OpenBook(path)
	if err != nil {
		return nil, err
	}
	return vol, nil
}

var indexCmd = &cobra.Command{
	Use:   "index <book>",
	Short: "Build or update the full-text index of a book",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rebuild, _ := cmd.Flags().GetBool("rebuild")

		vol, err := openBook(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		fmt.Printf("Indexing '%s'...\n", vol.Book.Metadata().Title)
		var stats search.IndexStats
		if rebuild {
			stats, err = vol.Rebuild(ctx)
		} else {
			stats, err = vol.Sync(ctx)
		}
		if err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}

		count, err := vol.Index.ChunkCount(ctx)
		if err != nil {
			fmt.Println("Index complete.")
			return nil
		}
		fmt.Println(styles.SuccessText.Render(fmt.Sprintf(
			"Index complete. %d indexed, %d unchanged, %d removed, %d skipped; %d chunks total.",
			stats.Indexed, stats.Unchanged, stats.Removed, stats.Skipped, count,
		)))
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <book> <query>",
	Short: "Search a book and print results as they are found",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		noIndex, _ := cmd.Flags().GetBool("no-index")
		query := strings.Join(args[1:], " ")

		vol, err := openBook(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		session := vol.SearchSession(ctx, vol.UseIndex() && !noIndex)
		defer session.Close()

		printed := -1
		session.Submit(query)
		for {
			if err := session.Wait(ctx); err != nil {
				return err
			}
			snap := session.Snapshot()
			if snap.Err != nil {
				return snap.Err
			}
			printed = printSections(snap.Sections, printed)

			if snap.State != search.StatePaused || !all {
				fmt.Println(styles.MutedText.Render(footer(snap)))
				return nil
			}
			session.LoadMore()
		}
	},
}

// printSections prints the sections after chapter index printed and
// returns the last printed chapter index.
func printSections(sections []types.SectionResult, printed int) int {
	for _, sec := range sections {
		if sec.ChapterIndex <= printed {
			continue
		}
		fmt.Println(styles.SectionTitle.Render(sec.Title))
		for _, r := range sec.Results {
			ex := search.Extract{Snippet: r.Snippet, Highlight: r.Highlight}.Decorate()
			runes := []rune(ex.Snippet)
			start, end := ex.Highlight.Start, ex.Highlight.End()
			fmt.Printf("  %s%s%s\n",
				string(runes[:start]),
				styles.Match.Render(string(runes[start:end])),
				string(runes[end:]),
			)
		}
		printed = sec.ChapterIndex
	}
	return printed
}

func footer(u search.Update) string {
	line := fmt.Sprintf("Found %d result(s)", u.Count)
	if u.Indexed {
		line += fmt.Sprintf(" in %d indexed chapter(s)", u.Total)
	}
	if u.State == search.StatePaused {
		line += fmt.Sprintf("; %d of %d chapters searched, use --all for the rest", u.Next, u.Total)
	}
	return line
}

var tuiCmd = &cobra.Command{
	Use:   "tui <book>",
	Short: "Open the interactive search view",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noIndex, _ := cmd.Flags().GetBool("no-index")

		vol, err := openBook(args[0])
		if err != nil {
			return err
		}

		stream := tui.NewUpdateStream()
		defer stream.Close()
		session := vol.SearchSession(cmd.Context(), vol.UseIndex() && !noIndex, search.WithChangeHandler(stream.Send))
		defer session.Close()

		model := tui.New(vol.Book.Metadata().Title, session, stream)
		p := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("TUI error: %w", err)
		}

		if row, ok := model.Chosen(); ok {
			fmt.Printf("%s\t%s\n", row.Title, row.Result.Anchor)
		}
		return nil
	},
}

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Manage books known to folioseek",
}

var libraryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List books opened before",
	RunE: func(cmd *cobra.Command, args []string) error {
		books, err := application.ListBooks()
		if err != nil {
			return fmt.Errorf("failed to list books: %w", err)
		}

		if len(books) == 0 {
			fmt.Println("No books yet. Index one with: folioseek index <book.epub>")
			return nil
		}

		fmt.Println(styles.Title.Render("Books:"))
		for _, b := range books {
			author := ""
			if b.Author != "" {
				author = " by " + b.Author
			}
			fmt.Printf("  %s  %s%s - %s\n", styles.MutedText.Render(b.ID), b.Title, author, b.Path)
		}
		return nil
	},
}

var libraryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete the index and highlights of a book",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		force, _ := cmd.Flags().GetBool("force")

		if !force {
			confirm := false
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewConfirm().
						Title(fmt.Sprintf("Delete the index and all highlights of book %s?", id)).
						Affirmative("Delete").
						Negative("Cancel").
						Value(&confirm),
				),
			)
			if err := form.Run(); err != nil {
				return fmt.Errorf("confirmation failed: %w", err)
			}
			if !confirm {
				fmt.Println("Deletion cancelled.")
				return nil
			}
		}

		if err := application.Library.Delete(id); err != nil {
			return fmt.Errorf("failed to delete book data: %w", err)
		}

		fmt.Printf("Book data '%s' deleted.\n", id)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(application.Global)
		if err != nil {
			return err
		}
		fmt.Println(styles.MutedText.Render("# " + application.Config.Path()))
		fmt.Print(string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		config := types.DefaultGlobalConfig()
		libraryDir := application.Global.LibraryDir
		useIndex := application.Global.Search.UseIndex
		level := application.Global.Logging.Level

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Library directory").
					Description("Indexes and highlights are kept here").
					Value(&libraryDir),
				huh.NewConfirm().
					Title("Use the full-text index to narrow searches?").
					Value(&useIndex),
				huh.NewSelect[string]().
					Title("Log level").
					Options(
						huh.NewOption("Debug", "debug"),
						huh.NewOption("Info", "info"),
						huh.NewOption("Warn", "warn"),
						huh.NewOption("Error", "error"),
					).
					Value(&level),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("configuration form failed: %w", err)
		}

		config.LibraryDir = libraryDir
		config.Search.UseIndex = useIndex
		config.Logging.Level = level
		if err := application.Config.Save(config); err != nil {
			return err
		}

		fmt.Println(lipgloss.NewStyle().Foreground(styles.Secondary).Render(
			"Configuration written to " + application.Config.Path()))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (default $XDG_CONFIG_HOME/folioseek/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&showMetrics, "metrics", false, "Print metrics to stderr when the command finishes")

	indexCmd.Flags().Bool("rebuild", false, "Drop the index and rebuild it from scratch")

	searchCmd.Flags().Bool("all", false, "Keep searching until every chapter is scanned")
	searchCmd.Flags().Bool("no-index", false, "Scan every chapter instead of using the index")

	tuiCmd.Flags().Bool("no-index", false, "Scan every chapter instead of using the index")

	libraryDeleteCmd.Flags().BoolP("force", "f", false, "Delete without confirmation")
	libraryCmd.AddCommand(libraryListCmd)
	libraryCmd.AddCommand(libraryDeleteCmd)

	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(libraryCmd)
	rootCmd.AddCommand(highlightsCmd)
	rootCmd.AddCommand(configCmd)
}
