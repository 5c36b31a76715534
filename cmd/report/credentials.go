package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"contact-insights-go/internal/config"
	"contact-insights-go/internal/credentials"
)

func newCredentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage name-cleaning API credentials",
	}

	cmd.AddCommand(newCredentialsSetCmd())

	return cmd
}

func newCredentialsSetCmd() *cobra.Command {
	var service string
	var user string
	var apiKey string
	var secret string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the API key and secret in the OS keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := credentials.Keyring{Service: service, User: user}
			if err := store.Store(credentials.Credentials{APIKey: apiKey, Secret: secret}); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "credentials for %q stored in keyring service %q\n", user, service)
			return err
		},
	}

	cmd.Flags().StringVar(&service, "service", config.DefaultKeyringService, "Keyring service name")
	cmd.Flags().StringVar(&user, "user", "dadata", "Keyring user")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key")
	cmd.Flags().StringVar(&secret, "secret", "", "API secret")
	_ = cmd.MarkFlagRequired("api-key")
	_ = cmd.MarkFlagRequired("secret")

	return cmd
}
