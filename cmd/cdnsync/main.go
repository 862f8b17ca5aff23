package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"cdnsync/internal/app"
	"cdnsync/internal/config"
	"cdnsync/internal/deploy"
	"cdnsync/internal/etag"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and the credentials from the environment.
func loadConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	if err := cfg.LoadCredentials(); err != nil {
		return nil, "", err
	}
	return cfg, defaults.ConfigPath, nil
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command in the run history.
func newApp(ctx context.Context, operation string) (*app.App, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.New(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:           "cdnsync",
	Short:         "Incremental deploys of static build output to a CDN bucket",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("source")
		host, _ := cmd.Flags().GetString("host")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults.BaseDir, source, host)
		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
		fmt.Printf("Store:    %s (%s)\n", cfg.Store.Type, cfg.Store.FSRoot)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Println(renderConfig(cfg))
		if err := cfg.Validate(); err != nil {
			fmt.Printf("\nConfiguration is invalid:\n%v\n", err)
		}
		return nil
	},
}

// deploy command
var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Upload changed files and clean expired versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		yes, _ := cmd.Flags().GetBool("yes")
		noClean, _ := cmd.Flags().GetBool("no-clean")
		ctx := cmd.Context()

		a, err := newApp(ctx, "deploy")
		if err != nil {
			return err
		}
		defer a.Close()

		plan, err := a.Plan(ctx)
		if err != nil {
			return fmt.Errorf("planning deploy: %w", err)
		}
		fmt.Println(renderPlan(plan))
		if dryRun {
			fmt.Println("Dry run: nothing was changed.")
			return nil
		}

		opts := deploy.ApplyOptions{SkipClean: noClean}
		if clean := plan.CleanFiles(); len(clean) > 0 && !noClean {
			interactive := term.IsTerminal(int(os.Stdin.Fd()))
			ok, err := confirmClean(os.Stdin, os.Stdout, interactive, yes, len(clean))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Printf("Keeping %d expired file(s); the full history is kept.\n", len(clean))
				opts.SkipClean = true
			}
		}

		result, err := a.Apply(ctx, plan, opts)
		if err != nil {
			return fmt.Errorf("deploy failed: %w", err)
		}
		fmt.Println(renderResult(result))
		return nil
	},
}

// plan command
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what deploy would change",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "plan")
		if err != nil {
			return err
		}
		defer a.Close()

		plan, err := a.Plan(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(renderPlan(plan))
		return nil
	},
}

// versions command
var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List deployed versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "versions")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Versions(cmd.Context())
		if err != nil {
			return err
		}
		if len(report.Snapshots) == 0 {
			fmt.Println("No versions deployed.")
			return nil
		}
		fmt.Println(renderVersions(report))
		return nil
	},
}

// find command
var findCmd = &cobra.Command{
	Use:   "find FILE",
	Short: "Show which versions reference a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "find")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.Locate(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Printf("%s is not referenced by any version.\n", args[0])
			return nil
		}
		fmt.Printf("%s\n\n", a.Key(args[0]))
		fmt.Println(renderLocate(entries))
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recorded deploy runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "history")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No deploy runs recorded.")
			return nil
		}
		fmt.Println(renderRuns(runs))
		return nil
	},
}

// cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the local hash cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove hash cache entries that have not been written recently",
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")

		a, err := newApp(cmd.Context(), "cache-prune")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.PruneHashCache(olderThan)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d cache entries.\n", n)
		return nil
	},
}

// hash command
var hashCmd = &cobra.Command{
	Use:   "hash FILE...",
	Short: "Print the content hash the store computes for files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range args {
			f, err := os.Open(name)
			if err != nil {
				return err
			}
			hash, err := etag.Compute(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("hashing %s: %w", name, err)
			}
			fmt.Printf("%s  %s\n", hash, name)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("source", "dist", "Build output directory to deploy")
	configInitCmd.Flags().String("host", "", "CDN origin, e.g. https://cdn.example.com")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(deployCmd)
	deployCmd.Flags().Bool("dry-run", false, "Plan only, change nothing")
	deployCmd.Flags().BoolP("yes", "y", false, "Delete expired files without asking")
	deployCmd.Flags().Bool("no-clean", false, "Keep expired files and the full history")
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")
	rootCmd.AddCommand(hashCmd)
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	cachePruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "Age after which entries are removed")
}
