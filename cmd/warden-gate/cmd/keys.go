package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/warden-gate/wardengate/internal/adapter/outbound/sqlite"
	"github.com/warden-gate/wardengate/internal/config"
	"github.com/warden-gate/wardengate/internal/domain/audit"
	"github.com/warden-gate/wardengate/internal/domain/auth"
	"github.com/warden-gate/wardengate/internal/service"
)

// cliActor is the audit actor recorded for CLI-driven key changes.
const cliActor = "cli"

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
	Long: `Create, list, enable, and disable API keys in the gateway database.

These commands operate directly on the database file, so they work
whether or not the server is running. A running server picks up key
changes within its cache TTL (60s).`,
}

var (
	createKeyName string
	createKeyRole string
	listAllKeys   bool
)

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new API key",
	Long: `Create a new API key and print its secret.

The secret is printed exactly once and cannot be recovered later; only
its hash is stored.

Examples:
  warden-gate keys create --name reporting-bot --role ANALYST`,
	RunE: runKeysCreate,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	RunE:  runKeysList,
}

var keysEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Re-enable a disabled API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysEnable,
}

var keysDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysDisable,
}

func init() {
	keysCreateCmd.Flags().StringVar(&createKeyName, "name", "", "display name for the key (required)")
	keysCreateCmd.Flags().StringVar(&createKeyRole, "role", "CLIENT", "role: ADMIN, ANALYST, or CLIENT")
	_ = keysCreateCmd.MarkFlagRequired("name")

	keysListCmd.Flags().BoolVar(&listAllKeys, "all", false, "include disabled keys")

	keysCmd.AddCommand(keysCreateCmd, keysListCmd, keysEnableCmd, keysDisableCmd)
	rootCmd.AddCommand(keysCmd)
}

// openKeyAdmin builds a KeyAdminService over the configured database.
// The caller must Close the returned store.
func openKeyAdmin() (*service.KeyAdminService, *sqlite.Store, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := sqlite.Open(sqlite.Config{
		Path:          cfg.Database.Path,
		BusyTimeout:   config.Duration(cfg.Database.BusyTimeout, 5*time.Second),
		RetentionDays: -1, // no sweep for a short-lived CLI process
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	hasher, err := auth.NewSecretHasher(cfg.Auth.HashScheme)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	svc := service.NewKeyAdminService(
		auth.NewCachedCredentialStore(store),
		hasher,
		audit.NewRecorder(store, logger),
		logger,
	)
	return svc, store, nil
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	role, ok := auth.ParseRole(createKeyRole)
	if !ok {
		return fmt.Errorf("unknown role %q: must be ADMIN, ANALYST, or CLIENT", createKeyRole)
	}

	svc, store, err := openKeyAdmin()
	if err != nil {
		return err
	}
	defer store.Close()

	secret, record, err := svc.CreateKey(context.Background(), cliActor, createKeyName, role)
	if err != nil {
		return err
	}

	fmt.Printf("Created API key %d (%s, %s)\n\n", record.ID, record.Name, record.Role)
	fmt.Printf("  Secret: %s\n\n", secret)
	fmt.Println("Store this secret now; it is not recoverable.")
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	svc, store, err := openKeyAdmin()
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := svc.ListKeys(context.Background(), listAllKeys)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tROLE\tENABLED\tCREATED\tLAST USED")
	for _, rec := range records {
		lastUsed := "never"
		if rec.LastUsedAt != nil {
			lastUsed = rec.LastUsedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\t%s\n",
			rec.ID, rec.Name, rec.Role, rec.Enabled,
			rec.CreatedAt.Format(time.RFC3339), lastUsed)
	}
	return w.Flush()
}

func runKeysEnable(cmd *cobra.Command, args []string) error {
	return setKeyEnabled(args[0], true)
}

func runKeysDisable(cmd *cobra.Command, args []string) error {
	return setKeyEnabled(args[0], false)
}

func setKeyEnabled(rawID string, enabled bool) error {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return fmt.Errorf("key id must be an integer, got %q", rawID)
	}

	svc, store, err := openKeyAdmin()
	if err != nil {
		return err
	}
	defer store.Close()

	if enabled {
		err = svc.EnableKey(context.Background(), cliActor, id)
	} else {
		err = svc.DisableKey(context.Background(), cliActor, id)
	}
	if err != nil {
		return err
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("Key %d %s.\n", id, state)
	return nil
}
