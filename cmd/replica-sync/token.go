package main

import (
	"encoding/json"
	"errors"

	"github.com/MarcoPoloResearchLab/chatreplica/internal/auth"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type tokenResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func newTokenCommand() *cobra.Command {
	var (
		subject     string
		connections []string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token granting access to connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				return errors.New("--subject is required")
			}
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			if err := appConfig.ValidateAuth(); err != nil {
				return err
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.SigningSecret),
				Issuer:        appConfig.Issuer,
				TokenTTL:      appConfig.TokenTTL,
			})
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.IssueConnectionToken(cmd.Context(), subject, connections)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(tokenResponsePayload{
				AccessToken: token,
				ExpiresIn:   expiresIn,
				TokenType:   "Bearer",
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Device or user the token is issued to")
	cmd.Flags().StringSliceVar(&connections, "connection", []string{auth.AllConnections}, "Connection keys the token grants")
	return cmd
}
