package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Spok95/subgate/internal/infra/auth"
)

func (s *state) tokenCmd() *cobra.Command {
	var (
		station  string
		operator string
		role     string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Выпустить токен для терминала или администратора",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := auth.Role(role)
			if r != auth.RoleTerminal && r != auth.RoleAdmin {
				return fmt.Errorf("unknown role %q", role)
			}
			tok, err := auth.NewIssuer(s.cfg.Auth.JWTSecret, s.cfg.Auth.TokenTTL).Issue(station, operator, r)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&station, "station", "", "station name")
	cmd.Flags().StringVar(&operator, "operator", "", "operator name")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleTerminal), "terminal|admin")
	_ = cmd.MarkFlagRequired("station")
	return cmd
}
