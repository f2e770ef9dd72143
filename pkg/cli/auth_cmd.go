package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newAuthCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication helpers",
	}

	cmd.AddCommand(newAuthLoginCmd(o))
	return cmd
}

func newAuthLoginCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Store a NocoDB API token in the active profile",
		Long: "Read an API token and save it to the active profile. The token comes from --token when given, " +
			"otherwise from standard input; on a terminal it is read without echo.",
		Example: `  # Prompt for the token
  noco auth login

  # Store it in a named profile from a secret manager
  vault read -field=token secret/nocodb | noco auth login --profile prod`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token := strings.TrimSpace(o.token)
			if token == "" {
				var err error
				token, err = readToken(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
			}
			if token == "" {
				return errors.New("no token provided")
			}

			cfg := loadOrNewUserConfig()
			name := cfg.profileName(o.profile)
			if cfg.CurrentProfile == "" {
				cfg.CurrentProfile = name
			}
			p := cfg.Profiles[name]
			p.Token = token
			cfg.Profiles[name] = p
			if err := SaveUserConfig(cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, map[string]string{
					"status":  "ok",
					"profile": name,
					"token":   maskSecret(token),
				})
			}
			_, _ = fmt.Fprintf(os.Stdout, "Token %s saved to profile %q\n", maskSecret(token), name)
			return nil
		},
	}
}

// readToken reads one line from in. When in is a terminal the prompt goes to
// prompt and the input is not echoed.
func readToken(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(prompt, "NocoDB API token: ")
		data, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read token: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(line), nil
}
