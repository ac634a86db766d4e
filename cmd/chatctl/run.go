package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/hugohenrick/companychat/pkg/stream/client"
	"github.com/spf13/cobra"
)

// maxResumes limita as reconexões automáticas de um mesmo envio
const maxResumes = 3

func runLogin(cmd *cobra.Command, args []string) error {
	tok, err := client.Login(cmd.Context(), nil, apiURL, args[0], args[1], companyID)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	p := newPrinter(cmd.OutOrStdout())
	c := newConsumer(p)
	closeOnCancel(ctx, c)

	snap, err := c.Send(ctx, args[0], companyID, args[1])
	for i := 0; i < maxResumes && !noResume && errors.Is(err, client.ErrConnectionLost); i++ {
		fmt.Fprintln(cmd.ErrOrStderr(), "\n[conexão perdida, retomando]")
		snap, err = c.Resume(ctx)
	}
	if errors.Is(err, client.ErrNoStream) {
		fmt.Fprintln(cmd.ErrOrStderr(), "\n[stream não está mais disponível; mensagens gravadas:]")
		return printHistory(cmd, c, args[0])
	}
	return p.finish(cmd, snap, err)
}

func runAttach(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	p := newPrinter(cmd.OutOrStdout())
	c := newConsumer(p)
	closeOnCancel(ctx, c)

	snap, err := c.Attach(ctx, args[0], lastEventID)
	if errors.Is(err, client.ErrNoStream) {
		fmt.Fprintln(cmd.ErrOrStderr(), "nenhum stream retido; mensagens gravadas:")
		return printHistory(cmd, c, args[0])
	}
	return p.finish(cmd, snap, err)
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := newConsumer(nil).Status(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !st.Active {
		fmt.Fprintln(cmd.OutOrStdout(), "sem stream retido")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "stream %s: %s (último evento %d)\n", st.StreamID, st.Status, st.LastEventID)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	return printHistory(cmd, newConsumer(nil), args[0])
}

func printHistory(cmd *cobra.Command, c *client.Consumer, chatID string) error {
	msgs, err := c.Messages(cmd.Context(), chatID)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", m.Role, m.Content)
	}
	return nil
}

func newConsumer(p *printer) *client.Consumer {
	opts := client.Options{BaseURL: apiURL, Token: token}
	if p != nil {
		opts.OnUpdate = p.update
	}
	return client.New(opts)
}

// closeOnCancel fecha a conexão quando ctx termina. A geração continua
// no servidor.
func closeOnCancel(ctx context.Context, c *client.Consumer) {
	go func() {
		<-ctx.Done()
		c.Close()
	}()
}

// printer escreve apenas o trecho novo do conteúdo a cada atualização
type printer struct {
	mu      sync.Mutex
	w       io.Writer
	written int
	title   string
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

func (p *printer) update(s client.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// reprodução desde o início após uma reconexão completa
	if len(s.Content) < p.written {
		p.written = 0
		fmt.Fprintln(p.w)
	}
	if len(s.Content) > p.written {
		fmt.Fprint(p.w, s.Content[p.written:])
		p.written = len(s.Content)
	}
	if s.Title != "" && s.Title != p.title {
		p.title = s.Title
	}
}

func (p *printer) finish(cmd *cobra.Command, snap client.Snapshot, err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.written > 0 && !strings.HasSuffix(snap.Content, "\n") {
		fmt.Fprintln(p.w)
	}
	if p.title != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "[título: %s]\n", p.title)
	}

	var serr *client.StreamError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, client.ErrClosed):
		fmt.Fprintf(cmd.ErrOrStderr(), "[desconectado; retome com: chatctl attach %s --last-event-id %d]\n", snap.ChatID, snap.LastEventID)
		return nil
	case errors.As(err, &serr):
		return fmt.Errorf("a resposta falhou (%s); o conteúdo parcial foi mantido", serr.Error())
	}
	return err
}
