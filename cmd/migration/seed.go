package main

import (
	"context"
	"fmt"

	"github.com/hugohenrick/companychat/internal/adapter/repository"
	"github.com/hugohenrick/companychat/internal/config"
	"github.com/hugohenrick/companychat/internal/domain/company"
	"github.com/hugohenrick/companychat/internal/domain/user"
	"github.com/hugohenrick/companychat/internal/infrastructure/database"
	"github.com/hugohenrick/companychat/pkg/logger"
	"github.com/spf13/cobra"
)

type seedOptions struct {
	company      string
	subscription string
	name         string
	email        string
	password     string
}

// newSeedCmd cria uma empresa com o usuário dono. É a forma de preparar um
// ambiente, já que a API não expõe cadastro.
func newSeedCmd() *cobra.Command {
	var opts seedOptions

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Cria uma empresa e o seu usuário dono",
		RunE: func(cmd *cobra.Command, args []string) error {
			appLogger, err := logger.NewLogger("development")
			if err != nil {
				return err
			}
			defer appLogger.Sync()

			db, err := database.NewPostgresDB(cmd.Context(), config.LoadDatabase(), appLogger)
			if err != nil {
				return err
			}
			defer db.Close()

			c, u, err := seed(cmd.Context(),
				repository.NewCompanyRepository(db.Pool()),
				repository.NewUserRepository(db.Pool()),
				opts)
			if err != nil {
				return err
			}
			cmd.Printf("Empresa %s (%s) criada com assinatura %s\n", c.Name, c.ID, c.SubscriptionStatus)
			cmd.Printf("Usuário dono %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.company, "company", "", "nome da empresa")
	cmd.Flags().StringVar(&opts.subscription, "subscription", string(company.SubscriptionTrialing), "estado da assinatura (active, trialing, past_due, canceled, none)")
	cmd.Flags().StringVar(&opts.name, "name", "", "nome do usuário dono")
	cmd.Flags().StringVar(&opts.email, "email", "", "email do usuário dono")
	cmd.Flags().StringVar(&opts.password, "password", "", "senha do usuário dono")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func seed(ctx context.Context, companies company.Repository, users user.Repository, opts seedOptions) (*company.Company, *user.User, error) {
	status := company.SubscriptionStatus(opts.subscription)
	switch status {
	case company.SubscriptionActive, company.SubscriptionTrialing, company.SubscriptionPastDue,
		company.SubscriptionCanceled, company.SubscriptionNone:
	default:
		return nil, nil, fmt.Errorf("assinatura inválida: %q", opts.subscription)
	}

	c, err := company.NewCompany(opts.company)
	if err != nil {
		return nil, nil, err
	}
	c.SubscriptionStatus = status

	u, err := user.NewUser(c.ID, opts.name, opts.email, opts.password, user.RoleOwner)
	if err != nil {
		return nil, nil, err
	}

	if err := companies.Create(ctx, c); err != nil {
		return nil, nil, fmt.Errorf("erro ao criar empresa: %w", err)
	}
	if err := users.Create(ctx, u); err != nil {
		return nil, nil, fmt.Errorf("erro ao criar usuário dono: %w", err)
	}
	return c, u, nil
}
