package assistant

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// Topic agrupa as palavras-chave, a resposta e o título de um assunto
type Topic struct {
	Keyword  string
	Response string
	Title    string
}

// Respostas roteirizadas usadas quando não há um modelo configurado. A
// ordem define a prioridade quando mais de uma palavra-chave aparece.
var scriptedTopics = []Topic{
	{
		Keyword: "tax",
		Title:   "Tax Compliance Discussion",
		Response: "For your tax filing, start by gathering every income statement, receipt and " +
			"prior-year return for the company. Make sure quarterly estimated payments were " +
			"recorded, reconcile payroll withholdings against the ledger and flag any deductible " +
			"expenses that still lack documentation. If deadlines are close, consider filing an " +
			"extension and keep a copy of every submission for your records.",
	},
	{
		Keyword: "invoice",
		Title:   "Invoice Management Discussion",
		Response: "To keep invoices under control, issue them as soon as work is delivered, use " +
			"sequential numbering and include clear payment terms. Track outstanding invoices " +
			"weekly, send reminders before the due date and reconcile every payment received " +
			"against the matching invoice so your receivables stay accurate.",
	},
	{
		Keyword: "expense",
		Title:   "Expense Tracking Discussion",
		Response: "Good expense tracking starts with capturing receipts at the moment of purchase. " +
			"Categorize each expense consistently, separate personal from business spending and " +
			"review the totals every month against your budget. Reimbursements should always be " +
			"approved and linked to the original receipt.",
	},
}

var scriptedDefaults = []string{
	"I can help with taxes, invoices and expenses for your company. Tell me a bit more about " +
		"what you need and I will walk you through the next steps.",
	"Thanks for the question. Could you share more details about the accounts or documents " +
		"involved so I can give you a precise answer?",
	"Happy to help. Most finance questions are easier to answer with the period, the amounts and " +
		"the documents in hand, so feel free to include them.",
}

// Scripted é um Generator determinístico que escolhe uma resposta pronta
// a partir de palavras-chave da mensagem e a emite palavra por palavra
type Scripted struct {
	delay time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewScripted cria um Scripted com o intervalo entre fragmentos e a
// semente usada para escolher a resposta padrão
func NewScripted(delay time.Duration, seed uint64) *Scripted {
	return &Scripted{
		delay: delay,
		rnd:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Name implementa Generator.Name
func (s *Scripted) Name() string {
	return "scripted"
}

// Generate implementa Generator.Generate
func (s *Scripted) Generate(ctx context.Context, req Request, emit EmitFunc) error {
	if strings.TrimSpace(req.Message) == "" {
		return ErrEmptyPrompt
	}

	for i, fragment := range Fragments(s.Respond(req.Message)) {
		if i > 0 && s.delay > 0 {
			timer := time.NewTimer(s.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(fragment); err != nil {
			return err
		}
	}
	return nil
}

// Respond escolhe o texto completo da resposta para a mensagem
func (s *Scripted) Respond(message string) string {
	if t, ok := MatchTopic(message); ok {
		return t.Response
	}

	s.mu.Lock()
	i := s.rnd.IntN(len(scriptedDefaults))
	s.mu.Unlock()
	return scriptedDefaults[i]
}

// MatchTopic procura a primeira palavra-chave contida na mensagem
func MatchTopic(message string) (Topic, bool) {
	lower := strings.ToLower(message)
	for _, t := range scriptedTopics {
		if strings.Contains(lower, t.Keyword) {
			return t, true
		}
	}
	return Topic{}, false
}

// Fragments divide um texto em espaços em branco, um fragmento por
// palavra. A partir da segunda palavra o fragmento começa com um espaço,
// de modo que a concatenação reproduz o texto normalizado.
func Fragments(text string) []string {
	words := strings.Fields(text)
	out := make([]string, 0, len(words))
	for i, w := range words {
		if i > 0 {
			w = " " + w
		}
		out = append(out, w)
	}
	return out
}
