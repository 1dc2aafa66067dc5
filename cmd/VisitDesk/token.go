package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/BTreeMap/VisitDesk/internal/api"
)

const ttlFlag = "ttl"

// defaultTokenTTL is how long an issued report token stays valid.
const defaultTokenTTL = 30 * 24 * time.Hour

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an operator's report API endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.APIJWTSecret == "" {
				return errors.New("no API JWT secret configured (set API_JWT_SECRET or --api-jwt-secret)")
			}
			owner, err := cmd.Flags().GetInt64(ownerFlag)
			if err != nil {
				return err
			}
			ttl, err := cmd.Flags().GetDuration(ttlFlag)
			if err != nil {
				return err
			}
			token, err := api.IssueOperatorToken(a.cfg.APIJWTSecret, owner, time.Now(), ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	addOwnerFlag(cmd)
	cmd.Flags().Duration(ttlFlag, defaultTokenTTL, "token lifetime, 0 for no expiry")
	return cmd
}
