package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/hugohenrick/companychat/internal/config"
	"github.com/hugohenrick/companychat/internal/infrastructure/database"
	"github.com/hugohenrick/companychat/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Carregar variáveis de ambiente
	if err := godotenv.Load(); err != nil {
		log.Printf("Aviso: Arquivo .env não encontrado: %v", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var steps int

	root := &cobra.Command{
		Use:   "migration",
		Short: "Gerencia as migrações do schema do companychat",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Aplica todas as migrações pendentes",
		RunE: func(cmd *cobra.Command, args []string) error {
			appLogger, err := logger.NewLogger("development")
			if err != nil {
				return err
			}
			defer appLogger.Sync()
			return database.RunMigrations(databaseURL(), appLogger)
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Reverte migrações",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := database.NewMigrator(databaseURL())
			if err != nil {
				return err
			}
			defer m.Close()

			if steps > 0 {
				err = m.Steps(-steps)
			} else {
				err = m.Down()
			}
			if err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("erro ao reverter migrações: %w", err)
			}
			cmd.Println("Migrações revertidas com sucesso!")
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "quantidade de migrações a reverter (0 reverte todas)")

	version := &cobra.Command{
		Use:   "version",
		Short: "Mostra a versão atual do schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := database.NewMigrator(databaseURL())
			if err != nil {
				return err
			}
			defer m.Close()

			v, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				cmd.Println("Nenhuma migração aplicada")
				return nil
			}
			if err != nil {
				return err
			}
			cmd.Printf("Versão %d (dirty=%t)\n", v, dirty)
			return nil
		},
	}

	root.AddCommand(up, down, version, newSeedCmd())
	return root
}

// databaseURL monta a URL sem exigir a configuração completa do serviço
func databaseURL() string {
	return config.LoadDatabase().ConnectionString()
}
