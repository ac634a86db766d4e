package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hugohenrick/companychat/internal/domain/chat"
	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are a finance assistant for small companies. " +
	"Answer questions about taxes, invoices and expenses clearly and concisely."

// OpenAIConfig contém as configurações do backend compatível com a API da OpenAI
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAI é um Generator que repassa os deltas de uma chat completion em
// streaming
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI cria um Generator para a API da OpenAI (ou compatível)
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY não configurada")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

// Name implementa Generator.Name
func (g *OpenAI) Name() string {
	return g.model
}

// Generate implementa Generator.Generate
func (g *OpenAI) Generate(ctx context.Context, req Request, emit EmitFunc) error {
	if req.Message == "" {
		return ErrEmptyPrompt
	}

	s, err := g.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: buildMessages(req),
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("erro ao abrir stream do modelo: %w", err)
	}
	defer s.Close()

	for {
		resp, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("erro ao ler stream do modelo: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := emit(delta); err != nil {
			return err
		}
	}
}

func buildMessages(req Request) []openai.ChatCompletionMessage {
	msgs := []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	}}

	for _, m := range req.History {
		role := openai.ChatMessageRoleUser
		if m.Role == chat.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	// o histórico normalmente já termina na mensagem atual
	if n := len(req.History); n == 0 || req.History[n-1].Content != req.Message || req.History[n-1].Role != chat.RoleUser {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Message,
		})
	}
	return msgs
}
