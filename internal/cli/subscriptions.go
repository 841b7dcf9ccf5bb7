package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Spok95/subgate/internal/access"
	"github.com/Spok95/subgate/internal/app"
	"github.com/Spok95/subgate/internal/domain/ledger"
	"github.com/Spok95/subgate/internal/domain/plans"
	"github.com/Spok95/subgate/internal/lifecycle"
)

func (s *state) plansCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "plans", Short: "Планы абонементов"}

	cmd.AddCommand(&cobra.Command{
		Use:   "load FILE",
		Short: "Создать планы из YAML-файла",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := plans.LoadFile(args[0])
			if err != nil {
				return err
			}
			return s.withContainer(cmd.Context(), func(c *app.Container) error {
				for i := range list {
					id, err := c.Lifecycle.CreatePlan(cmd.Context(), &list[i])
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "plan %d: %s\n", id, list[i].Title)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Показать планы",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withContainer(cmd.Context(), func(c *app.Container) error {
				list, err := c.Lifecycle.Plans(cmd.Context())
				if err != nil {
					return err
				}
				for _, p := range list {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s\t%d days\tactive=%t\n",
						p.ID, p.Title, p.Price.StringFixed(2), p.Reset, p.DurationDays, p.Active)
				}
				return nil
			})
		},
	})
	return cmd
}

func (s *state) issueCmd() *cobra.Command {
	var (
		customer int64
		planID   int64
		from     string
		plates   []string
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Выпустить абонемент клиенту",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := lifecycle.IssueRequest{CustomerID: customer, PlanID: planID, Plates: plates}
			if from != "" {
				d, err := time.Parse(time.DateOnly, from)
				if err != nil {
					return fmt.Errorf("--from: %w", err)
				}
				req.Activation = d
			}
			return s.withContainer(cmd.Context(), func(c *app.Container) error {
				sub, err := c.Lifecycle.Issue(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "subscription %d\naccess code: %s\nnfc code: %s\nvalid: %s .. %s\n",
					sub.ID, sub.AccessCode, sub.NFCCode,
					sub.ActivationDate.Format(time.DateOnly), sub.ExpirationDate.Format(time.DateOnly))
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&customer, "customer", 0, "customer id")
	cmd.Flags().Int64Var(&planID, "plan", 0, "plan id")
	cmd.Flags().StringVar(&from, "from", "", "activation date YYYY-MM-DD (default today)")
	cmd.Flags().StringSliceVar(&plates, "plate", nil, "licence plate (repeatable)")
	_ = cmd.MarkFlagRequired("customer")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func (s *state) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check CODE",
		Short: "Карточка абонемента по коду доступа или NFC",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withContainer(cmd.Context(), func(c *app.Container) error {
				sub, err := c.Access.Lookup(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				ov, err := c.Access.Usage(cmd.Context(), sub.ID, time.Time{})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "subscription %d (%s) plan %q status %s\n",
					sub.ID, sub.AccessCode, ov.Plan.Title, sub.Status)
				fmt.Fprintf(out, "valid %s .. %s, days left %d, usable %t\n",
					sub.ActivationDate.Format(time.DateOnly), sub.ExpirationDate.Format(time.DateOnly),
					ov.DaysLeft, !ov.Expired)
				for _, u := range ov.Services {
					fmt.Fprintf(out, "service %d: used %d of %d, remaining %d (%d%%)\n",
						u.ServiceID, u.Used, u.Included, u.Remaining, u.Percent)
				}
				return nil
			})
		},
	}
}

func (s *state) passCmd() *cobra.Command {
	var (
		plate   string
		method  string
		station string
	)
	cmd := &cobra.Command{
		Use:   "pass CODE SERVICE",
		Short: "Отметить проход вручную",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("service id: %w", err)
			}
			m, err := ledger.ParseMethod(method)
			if err != nil {
				return err
			}
			return s.withContainer(cmd.Context(), func(c *app.Container) error {
				res, err := c.Access.AuthorizeCode(cmd.Context(), args[0], access.Request{
					ServiceID: svc,
					Plate:     plate,
					Method:    m,
					Station:   station,
					Operator:  "cli",
				})
				if err != nil {
					return err
				}
				if res.Authorized {
					fmt.Fprintf(cmd.OutOrStdout(), "authorized: count %d, remaining %d (event %d)\n",
						res.Count, res.Remaining, res.EventID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "denied: %s (event %d)\n", res.Reason, res.EventID)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&plate, "plate", "", "licence plate")
	cmd.Flags().StringVar(&method, "method", string(ledger.MethodCode), "verification method: nfc|qr|code|card")
	cmd.Flags().StringVar(&station, "station", "cli", "station name for the ledger")
	return cmd
}

func (s *state) statusCmd(use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " CODE",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withContainer(cmd.Context(), func(c *app.Container) error {
				sub, err := c.Access.Lookup(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				switch use {
				case "suspend":
					err = c.Lifecycle.Suspend(cmd.Context(), sub.ID)
				case "resume":
					err = c.Lifecycle.Resume(cmd.Context(), sub.ID)
				default:
					err = c.Lifecycle.Cancel(cmd.Context(), sub.ID)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "subscription %d: %s done\n", sub.ID, use)
				return nil
			})
		},
	}
}

func (s *state) renewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "renew CODE",
		Short: "Продлить истёкший абонемент новым с сегодняшнего дня",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withContainer(cmd.Context(), func(c *app.Container) error {
				sub, err := c.Access.Lookup(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fresh, err := c.Lifecycle.Renew(cmd.Context(), sub.ID, time.Time{})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "subscription %d\naccess code: %s\nnfc code: %s\nvalid: %s .. %s\n",
					fresh.ID, fresh.AccessCode, fresh.NFCCode,
					fresh.ActivationDate.Format(time.DateOnly), fresh.ExpirationDate.Format(time.DateOnly))
				return nil
			})
		},
	}
}

func (s *state) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Перевести просроченные абонементы в expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withContainer(cmd.Context(), func(c *app.Container) error {
				n, err := c.Lifecycle.SweepExpired(cmd.Context(), time.Time{})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "expired: %d\n", n)
				return nil
			})
		},
	}
}
