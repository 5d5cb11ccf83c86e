package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/envforge/envforge/pkg/auth"
	"github.com/envforge/envforge/pkg/config"
	"github.com/envforge/envforge/pkg/graph"
)

var (
	// Global flags
	configPath string
	verbose    bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "envforge",
		Short: "EnvForge - Microsoft 365 project environment provisioner",
		Long: `EnvForge provisions complete Microsoft 365 project environments from
CSV manifests.

For each project it creates:
  - A Teams channel with PM and lead granted as owners
  - A Planner plan with labeled, bucketed tasks and checklists
  - A SharePoint folder tree seeded with document templates
  - A crash-tolerant checkpoint for resumable runs`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "run config file path (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(newProvisionCommand())
	rootCmd.AddCommand(newImportCommand())
	rootCmd.AddCommand(newPlansCommand())
	rootCmd.AddCommand(newDocsCommand())

	return rootCmd
}

// runtime bundles everything a remote-facing command needs. Commands that
// only touch local files (dry runs) never build one.
type runtime struct {
	Config config.RunConfig
	Creds  config.Credentials
	Client *graph.Client
	Tokens oauth2.TokenSource
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.LoadRunConfig(configPath)
	if err != nil {
		return nil, err
	}
	creds, err := config.LoadCredentials()
	if err != nil {
		return nil, err
	}

	client := graph.NewClient(log.Logger)
	if cfg.GraphBaseURL != "" {
		client.BaseURL = cfg.GraphBaseURL
	}

	return &runtime{
		Config: cfg,
		Creds:  creds,
		Client: client,
		Tokens: auth.TokenSource(ctx, creds),
	}, nil
}

func (rt *runtime) token() (string, error) {
	t, err := rt.Tokens.Token()
	if err != nil {
		return "", fmt.Errorf("acquire token: %w", err)
	}
	return t.AccessToken, nil
}
