package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	apiURL      string
	token       string
	companyID   string
	lastEventID int64
	noResume    bool

	rootCmd = &cobra.Command{
		Use:          "chatctl",
		Short:        "Cliente de linha de comando do companychat",
		SilenceUsage: true,
	}

	loginCmd = &cobra.Command{
		Use:   "login [email] [senha]",
		Short: "Autentica e imprime o token de acesso",
		Args:  cobra.ExactArgs(2),
		RunE:  runLogin,
	}

	sendCmd = &cobra.Command{
		Use:   "send [chatId] [mensagem]",
		Short: "Envia uma mensagem e acompanha a resposta",
		Long: `Envia a mensagem ao chat e imprime a resposta conforme chega.
Se a conexão cair, reconecta a partir do último evento recebido.
Ctrl-C fecha a conexão sem interromper a geração no servidor.`,
		Args: cobra.ExactArgs(2),
		RunE: runSend,
	}

	attachCmd = &cobra.Command{
		Use:   "attach [chatId]",
		Short: "Conecta ao stream em andamento ou recém-concluído de um chat",
		Args:  cobra.ExactArgs(1),
		RunE:  runAttach,
	}

	statusCmd = &cobra.Command{
		Use:   "status [chatId]",
		Short: "Mostra se o chat tem um stream retido",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}

	historyCmd = &cobra.Command{
		Use:   "history [chatId]",
		Short: "Lista as mensagens gravadas do chat",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistory,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", envOr("CHATCTL_API", "http://localhost:8080/api/v1"), "prefixo da API")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("CHATCTL_TOKEN"), "token de acesso (Bearer)")
	rootCmd.PersistentFlags().StringVar(&companyID, "company", os.Getenv("CHATCTL_COMPANY"), "empresa; vazio usa a empresa do token")

	sendCmd.Flags().BoolVar(&noResume, "no-resume", false, "não reconectar quando a conexão cair")
	attachCmd.Flags().Int64Var(&lastEventID, "last-event-id", 0, "retomar depois deste evento")

	rootCmd.AddCommand(loginCmd, sendCmd, attachCmd, statusCmd, historyCmd)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
