package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warden-gate/wardengate/internal/domain/auth"
)

var hashKeyScheme string

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [secret]",
	Short: "Hash an API key secret for manual provisioning",
	Long: `Hash an API key secret with the configured scheme.

The output is an encoded hash suitable for the api_keys.key_hash
column, for deployments that provision keys outside the gateway.

Example:
  warden-gate hash-key "my-secret-api-key"
  # Output: $argon2id$v=19$...

Security note: the secret will appear in shell history.
Consider clearing history after use or using an environment variable:
  warden-gate hash-key "$MY_API_KEY"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hasher, err := auth.NewSecretHasher(hashKeyScheme)
		if err != nil {
			return err
		}
		encoded, err := hasher.Hash(args[0])
		if err != nil {
			return fmt.Errorf("failed to hash secret: %w", err)
		}
		fmt.Println(encoded)
		return nil
	},
}

func init() {
	hashKeyCmd.Flags().StringVar(&hashKeyScheme, "scheme", "argon2id", "hash scheme (argon2id or pbkdf2)")
	rootCmd.AddCommand(hashKeyCmd)
}
