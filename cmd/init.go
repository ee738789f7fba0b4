package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rgonek/confluence-mirror/internal/config"
	"github.com/rgonek/confluence-mirror/internal/mdfs"
)

const syncignoreContent = `# Files the mirror never syncs (gitignore syntax).
*.tmp
*.bak
`

const gitignoreEntriesHeader = "# Confluence mirror state"

var gitignoreEntries = []string{mdfs.StateDirName + "/", ".env"}

type initFlags struct {
	scope       string
	value       string
	space       string
	poll        time.Duration
	webhookPort int
	policy      string
	autoCreate  bool
}

func newInitCmd() *cobra.Command {
	var flags initFlags
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a mirror workspace in the current directory",
		Long: `Init sets up the current directory as a cmirror workspace.

It will:
  - Create the ` + mdfs.StateDirName + ` state directory and write config.json
  - Create a default ` + mdfs.IgnoreFileName + ` if missing
  - Add state entries to .gitignore
  - Prompt for Confluence credentials and create a .env file if missing

The scope decides which pages are mirrored: a single page (--scope page),
the subtree under an ancestor (--scope ancestor), or a whole space
(--scope space, where --value is the space key).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.scope, "scope", "space", "Mirror scope: page, ancestor or space")
	cmd.Flags().StringVar(&flags.value, "value", "", "Page id (page/ancestor scope) or space key (space scope)")
	cmd.Flags().StringVar(&flags.space, "space", "", "Space key; defaults to --value for space scope")
	cmd.Flags().DurationVar(&flags.poll, "poll", 30*time.Second, "Remote poll interval")
	cmd.Flags().IntVar(&flags.webhookPort, "webhook-port", 0, "Local webhook listener port (0 disables)")
	cmd.Flags().StringVar(&flags.policy, "conflict-policy", "merge", "Conflict policy: merge, local or remote")
	cmd.Flags().BoolVar(&flags.autoCreate, "auto-create", false, "Publish untracked local files as new remote pages")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func runInit(cmd *cobra.Command, flags initFlags) error {
	out := cmd.OutOrStdout()

	root, err := os.Getwd()
	if err != nil {
		return err
	}
	ws := mdfs.Workspace{Root: root}

	space := flags.space
	if space == "" && config.ScopeKind(flags.scope) == config.ScopeSpace {
		space = flags.value
	}
	cfg := config.Workspace{
		ScopeKind:      config.ScopeKind(flags.scope),
		ScopeValue:     flags.value,
		SpaceKey:       space,
		PollInterval:   config.Duration(flags.poll),
		WebhookPort:    flags.webhookPort,
		ConflictPolicy: config.ConflictPolicy(flags.policy),
		AutoCreate:     flags.autoCreate,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := ws.Init(); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	fmt.Fprintln(out, "✓ "+mdfs.StateDirName+" created")

	if _, err := os.Stat(ws.ConfigPath()); err == nil {
		fmt.Fprintln(out, "✓ config.json already exists (left untouched)")
	} else {
		if err := config.SaveWorkspace(ws.ConfigPath(), cfg); err != nil {
			return fmt.Errorf("write workspace config: %w", err)
		}
		fmt.Fprintln(out, "✓ config.json written")
	}

	if err := createIfMissing(filepath.Join(root, mdfs.IgnoreFileName), syncignoreContent); err != nil {
		return fmt.Errorf("create %s: %w", mdfs.IgnoreFileName, err)
	}
	fmt.Fprintln(out, "✓ "+mdfs.IgnoreFileName+" ready")

	if err := ensureGitignore(root); err != nil {
		return fmt.Errorf("update .gitignore: %w", err)
	}
	fmt.Fprintln(out, "✓ .gitignore updated")

	created, err := ensureDotEnv(cmd, root)
	if err != nil {
		return fmt.Errorf("create .env: %w", err)
	}
	if created {
		fmt.Fprintln(out, "✓ .env created")
	} else {
		fmt.Fprintln(out, "✓ .env already exists")
	}

	fmt.Fprintln(out, "\nWorkspace initialized. Run 'cmirror pull' to fetch the remote pages.")
	return nil
}

// ensureGitignore appends the state entries to .gitignore, creating it if
// necessary.
func ensureGitignore(root string) error {
	path := filepath.Join(root, ".gitignore")

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	content := string(existing)
	var missing []string
	for _, entry := range gitignoreEntries {
		if !containsLine(content, entry) {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if len(existing) > 0 && !strings.HasSuffix(content, "\n") {
		fmt.Fprintln(f)
	}
	if len(existing) == 0 {
		fmt.Fprintln(f, gitignoreEntriesHeader)
	}
	for _, entry := range missing {
		fmt.Fprintln(f, entry)
	}
	return nil
}

// ensureDotEnv creates .env with prompted credentials; returns true if the
// file was created.
func ensureDotEnv(cmd *cobra.Command, root string) (bool, error) {
	path := filepath.Join(root, ".env")
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	// Environment-provided credentials make the .env file unnecessary.
	if _, err := config.LoadCredentials(""); err == nil {
		return false, nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\nNo .env file found. Please enter your Confluence credentials.")
	scanner := bufio.NewScanner(cmd.InOrStdin())

	baseURL := promptField(scanner, out, "CONFLUENCE_URL (e.g. https://your-domain.atlassian.net/wiki)")
	email := promptField(scanner, out, "CONFLUENCE_EMAIL")
	token := promptField(scanner, out, "CONFLUENCE_API_TOKEN")

	lines := []string{
		"# Confluence credentials",
		fmt.Sprintf("CONFLUENCE_URL=%s", strings.TrimRight(baseURL, "/")),
		fmt.Sprintf("CONFLUENCE_EMAIL=%s", email),
		fmt.Sprintf("CONFLUENCE_API_TOKEN=%s", token),
	}
	return true, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600)
}

func promptField(scanner *bufio.Scanner, out interface{ Write([]byte) (int, error) }, label string) string {
	fmt.Fprintf(out, "  %s: ", label)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text())
	}
	return ""
}

// createIfMissing creates path with content only if the file does not exist.
func createIfMissing(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// containsLine reports whether s contains the given line.
func containsLine(s, line string) bool {
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) == line {
			return true
		}
	}
	return false
}
