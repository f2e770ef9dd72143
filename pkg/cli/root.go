package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"noco-bridge/internal/config"
	"noco-bridge/internal/domain"
	"noco-bridge/internal/nocodb"
)

var (
	version = "dev"
	commit  = "none"
)

// flagEnv maps connection flags to the environment variables they override.
var flagEnv = map[string]string{
	"url":         "NOCODB_BASE_URL",
	"base":        "NOCODB_BASE_ID",
	"token":       "NOCODB_API_TOKEN",
	"schema-doc":  "NOCODB_SCHEMA_DOC",
	"null-policy": "NOCODB_NULL_POLICY",
}

// Execute runs the CLI.
func Execute() int {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			_ = PrintJSON(os.Stdout, errorObject(err))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// errorObject describes an error for JSON output, including the HTTP status
// and error kind when known.
func errorObject(err error) map[string]interface{} {
	obj := map[string]interface{}{"error": err.Error()}

	var (
		ve *domain.ValidationError
		te *domain.TransportError
		se *domain.SchemaError
		ie *domain.InputError
	)
	switch {
	case errors.As(err, &ve):
		obj["http_status"] = ve.StatusCode
		obj["payload"] = ve.Payload
	case errors.As(err, &te):
		if te.StatusCode != 0 {
			obj["http_status"] = te.StatusCode
		}
	case errors.As(err, &se):
		obj["code"] = string(se.Kind)
		if se.Available != nil {
			obj["available"] = se.Available
		}
	case errors.As(err, &ie):
		obj["code"] = string(ie.Kind)
	}
	return obj
}

// rootOptions holds the persistent flags and the values resolved from them.
type rootOptions struct {
	url        string
	baseID     string
	token      string
	schemaDoc  string
	nullPolicy string
	output     string
	profile    string
	verbose    bool

	active     Profile
	flagValues map[string]string
}

// lookup resolves a setting with precedence flag > env > profile.
func (o *rootOptions) lookup(key string) string {
	if v, ok := o.flagValues[key]; ok {
		return v
	}
	if v := os.Getenv(key); v != "" {
		return v
	}
	return o.active.lookup(key)
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	return config.Load(o.lookup)
}

func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// newClient resolves the configuration and the base schema. Callers close
// the client.
func (o *rootOptions) newClient(ctx context.Context) (*nocodb.Client, *config.Config, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}
	client, err := nocodb.New(ctx, cfg.ClientOptions(logger))
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "noco",
		Short: "NocoDB base inspection and record tool",
		Long: "Command-line interface for reading and maintaining NocoDB tables by name.\n\n" +
			"Connection settings resolve as flag > environment (NOCODB_*) > profile (~/.noco/config.yaml).",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadOrNewUserConfig()
			o.active = cfg.ActiveProfile(o.profile)

			o.flagValues = map[string]string{}
			cmd.Flags().Visit(func(f *pflag.Flag) {
				if key, ok := flagEnv[f.Name]; ok {
					o.flagValues[key] = f.Value.String()
				}
			})
			if o.verbose {
				o.flagValues["LOG_LEVEL"] = "debug"
			}

			if !cmd.Flags().Changed("output") {
				if v := os.Getenv("NOCODB_OUTPUT"); v != "" {
					o.output = v
				} else if o.active.Output != "" {
					o.output = o.active.Output
				}
			}
			return validateOutputFormat(o.output)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&o.url, "url", "", "NocoDB server URL (default https://app.nocodb.com)")
	pf.StringVar(&o.baseID, "base", "", "Base ID to discover")
	pf.StringVar(&o.token, "token", "", "NocoDB API token")
	pf.StringVar(&o.schemaDoc, "schema-doc", "", "Path of a pre-fetched API description; skips schema discovery")
	pf.StringVar(&o.nullPolicy, "null-policy", "", "Rows with a null Id: skip or reject")
	pf.StringVarP(&o.output, "output", "o", "table", "Output format (table, json)")
	pf.StringVarP(&o.profile, "profile", "p", "", "Config profile to use")
	pf.BoolVarP(&o.verbose, "verbose", "v", false, "Log every request")

	rootCmd.AddCommand(newTablesCmd(o))
	rootCmd.AddCommand(newDescribeCmd(o))
	rootCmd.AddCommand(newRecordsCmd(o))
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newAuthCmd(o))
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
}
