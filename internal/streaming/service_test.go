package streaming

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugohenrick/companychat/internal/adapter/repository"
	"github.com/hugohenrick/companychat/internal/adapter/repository/memory"
	"github.com/hugohenrick/companychat/internal/assistant"
	"github.com/hugohenrick/companychat/internal/domain/chat"
	"github.com/hugohenrick/companychat/internal/domain/company"
	"github.com/hugohenrick/companychat/internal/observability"
	"github.com/hugohenrick/companychat/pkg/logger"
	"github.com/hugohenrick/companychat/pkg/stream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type funcGenerator func(ctx context.Context, req assistant.Request, emit assistant.EmitFunc) error

func (f funcGenerator) Generate(ctx context.Context, req assistant.Request, emit assistant.EmitFunc) error {
	return f(ctx, req, emit)
}

func (funcGenerator) Name() string { return "test" }

type lockerFunc func(ctx context.Context, chatID uuid.UUID, ttl time.Duration) (func(), error)

func (f lockerFunc) Acquire(ctx context.Context, chatID uuid.UUID, ttl time.Duration) (func(), error) {
	return f(ctx, chatID, ttl)
}

type fixture struct {
	svc       *Service
	chats     *memory.ChatRepository
	companies *memory.CompanyRepository
	metrics   *observability.Metrics
	company   *company.Company
	owner     Principal
}

type fixtureOption func(*fixtureOptions)

type fixtureOptions struct {
	cfg       Config
	retention time.Duration
	gen       assistant.Generator
	locker    Locker
}

func withGenerator(g assistant.Generator) fixtureOption {
	return func(o *fixtureOptions) { o.gen = g }
}

func withIdleTimeout(d time.Duration) fixtureOption {
	return func(o *fixtureOptions) { o.cfg.IdleTimeout = d }
}

func withRetention(d time.Duration) fixtureOption {
	return func(o *fixtureOptions) { o.retention = d }
}

func withLocker(l Locker) fixtureOption {
	return func(o *fixtureOptions) { o.locker = l }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	o := fixtureOptions{
		cfg:       DefaultConfig(),
		retention: time.Minute,
		gen:       assistant.NewScripted(0, 1),
	}
	for _, opt := range opts {
		opt(&o)
	}

	comp, err := company.NewCompany("Acme")
	require.NoError(t, err)
	comp.SubscriptionStatus = company.SubscriptionActive

	companies := memory.NewCompanyRepository(comp)
	chats := memory.NewChatRepository()
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	svc := NewService(o.cfg, chats, repository.NewCompanyValidator(companies), o.gen,
		NewRegistry(o.retention), o.locker, metrics, logger.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})

	return &fixture{
		svc:       svc,
		chats:     chats,
		companies: companies,
		metrics:   metrics,
		company:   comp,
		owner:     Principal{UserID: uuid.NewString(), CompanyID: comp.ID},
	}
}

func (f *fixture) open(t *testing.T, p Principal, chatID uuid.UUID, msg string) (*Subscription, Mode) {
	t.Helper()
	target, err := f.svc.AuthorizePost(context.Background(), p, "", chatID.String())
	require.NoError(t, err)
	sub, mode, err := f.svc.Open(context.Background(), p, target, msg)
	require.NoError(t, err)
	return sub, mode
}

func drain(t *testing.T, sub *Subscription) []stream.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var evs []stream.Event
	for {
		ev, err := sub.Recv(ctx)
		if errors.Is(err, io.EOF) {
			return evs
		}
		require.NoError(t, err)
		evs = append(evs, ev)
	}
}

func contentOf(evs []stream.Event) string {
	var b strings.Builder
	for _, ev := range evs {
		if ev.Type == stream.TypeContent {
			b.WriteString(ev.Content)
		}
	}
	return b.String()
}

func terminals(evs []stream.Event) int {
	n := 0
	for _, ev := range evs {
		if ev.Terminal() {
			n++
		}
	}
	return n
}

func TestOpen_TaxRoundTrip(t *testing.T) {
	f := newFixture(t)
	chatID := uuid.New()

	sub, mode := f.open(t, f.owner, chatID, "What do I need for my tax filing?")
	assert.Equal(t, ModeNew, mode)
	evs := drain(t, sub)
	f.svc.Release(sub)

	require.NotEmpty(t, evs)
	for i, ev := range evs {
		assert.Equal(t, int64(i+1), ev.Seq)
		assert.NoError(t, ev.Validate())
	}

	topic, ok := assistant.MatchTopic("tax")
	require.True(t, ok)
	assert.Equal(t, strings.Join(strings.Fields(topic.Response), " "), contentOf(evs))

	n := len(evs)
	require.GreaterOrEqual(t, n, 3)
	assert.Equal(t, "Tax Compliance Discussion", evs[n-2].Title)
	assert.Equal(t, stream.TypeMetadata, evs[n-2].Type)
	assert.Equal(t, stream.TypeDone, evs[n-1].Type)
	assert.Equal(t, 1, terminals(evs))

	msgs, err := f.chats.GetMessagesByChatID(context.Background(), chatID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.RoleUser, msgs[0].Role)
	assert.Equal(t, chat.RoleAssistant, msgs[1].Role)
	assert.Equal(t, contentOf(evs), msgs[1].Content)
	assert.Equal(t, "scripted", msgs[1].Metadata["generator"])

	c, err := f.chats.GetChatByID(context.Background(), chatID)
	require.NoError(t, err)
	assert.Equal(t, "Tax Compliance Discussion", c.Title)
	assert.Equal(t, f.owner.UserID, c.UserID)
	assert.Equal(t, chat.VisibilityPrivate, c.Visibility)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.StreamsFinished.WithLabelValues("done")))
}

func TestOpen_SecondPostAttachesToRunningGeneration(t *testing.T) {
	gate := make(chan struct{})
	var calls atomic.Int32
	gen := funcGenerator(func(ctx context.Context, req assistant.Request, emit assistant.EmitFunc) error {
		calls.Add(1)
		if err := emit("first"); err != nil {
			return err
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
		return emit(" second")
	})

	f := newFixture(t, withGenerator(gen))
	chatID := uuid.New()

	sub1, mode1 := f.open(t, f.owner, chatID, "hello")
	sub2, mode2 := f.open(t, f.owner, chatID, "hello again")
	assert.Equal(t, ModeNew, mode1)
	assert.Equal(t, ModeAttach, mode2)
	assert.Same(t, sub1.Handle(), sub2.Handle())
	assert.Equal(t, 2, sub1.Handle().Subscribers())

	close(gate)

	var wg sync.WaitGroup
	results := make([][]stream.Event, 2)
	for i, sub := range []*Subscription{sub1, sub2} {
		wg.Add(1)
		go func(i int, sub *Subscription) {
			defer wg.Done()
			results[i] = drain(t, sub)
		}(i, sub)
	}
	wg.Wait()

	assert.Equal(t, results[0], results[1])
	assert.Equal(t, "first second", contentOf(results[0]))
	assert.Equal(t, int32(1), calls.Load())

	msgs, err := f.chats.GetMessagesByChatID(context.Background(), chatID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)
}

func TestOpen_StaleTargetCannotJoinAnotherUsersStream(t *testing.T) {
	gate := make(chan struct{})
	gen := funcGenerator(func(ctx context.Context, req assistant.Request, emit assistant.EmitFunc) error {
		if err := emit("segredo da Ana"); err != nil {
			return err
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	f := newFixture(t, withGenerator(gen))
	chatID := uuid.New()
	bruno := Principal{UserID: uuid.NewString(), CompanyID: f.company.ID}

	// Bruno é autorizado enquanto o chat ainda não existe
	stale, err := f.svc.AuthorizePost(context.Background(), bruno, "", chatID.String())
	require.NoError(t, err)
	require.Nil(t, stale.Chat)

	sub, mode := f.open(t, f.owner, chatID, "hello")
	assert.Equal(t, ModeNew, mode)

	_, _, err = f.svc.Open(context.Background(), bruno, stale, "quero ver")
	assert.ErrorIs(t, err, ErrNotChatOwner)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, 1, sub.Handle().Subscribers())

	close(gate)
	drain(t, sub)

	msgs, err := f.chats.GetMessagesByChatID(context.Background(), chatID)
	require.NoError(t, err)
	for _, m := range msgs {
		assert.NotEqual(t, "quero ver", m.Content)
	}
}

func TestAttach_PinnedStreamReplacedByNewTurn(t *testing.T) {
	f := newFixture(t)
	chatID := uuid.New()

	first, _ := f.open(t, f.owner, chatID, "tax question")
	firstID := first.Handle().ID
	drain(t, first)
	f.svc.Release(first)

	pinned, mode, err := f.svc.Attach(context.Background(), f.owner, chatID.String(), 2, firstID)
	require.NoError(t, err)
	assert.Equal(t, ModeResume, mode)
	f.svc.Release(pinned)

	second, _ := f.open(t, f.owner, chatID, "invoice question")
	secondID := second.Handle().ID
	drain(t, second)
	f.svc.Release(second)
	require.NotEqual(t, firstID, secondID)

	_, _, err = f.svc.Attach(context.Background(), f.owner, chatID.String(), 2, firstID)
	assert.ErrorIs(t, err, ErrStreamReplaced)
	assert.ErrorIs(t, err, ErrNoStream)

	current, _, err := f.svc.Attach(context.Background(), f.owner, chatID.String(), 2, secondID)
	require.NoError(t, err)
	rest := drain(t, current)
	f.svc.Release(current)
	require.NotEmpty(t, rest)
	assert.Equal(t, int64(3), rest[0].Seq)
}

func TestAttach_ReplayAndLastEventID(t *testing.T) {
	f := newFixture(t)
	chatID := uuid.New()

	sub, _ := f.open(t, f.owner, chatID, "invoice question")
	all := drain(t, sub)
	f.svc.Release(sub)

	replay, mode, err := f.svc.Attach(context.Background(), f.owner, chatID.String(), 0, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, ModeAttach, mode)
	assert.Equal(t, all, drain(t, replay))
	f.svc.Release(replay)

	resumed, mode, err := f.svc.Attach(context.Background(), f.owner, chatID.String(), 3, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, ModeResume, mode)
	rest := drain(t, resumed)
	f.svc.Release(resumed)
	require.NotEmpty(t, rest)
	assert.Equal(t, int64(4), rest[0].Seq)
	assert.Equal(t, all[3:], rest)

	status, err := f.svc.Status(context.Background(), f.owner, chatID.String())
	require.NoError(t, err)
	assert.True(t, status.Active)
	assert.Equal(t, StateDone, status.State)
	assert.Equal(t, int64(len(all)), status.LastEventID)
}

func TestAttach_NoStream(t *testing.T) {
	f := newFixture(t)
	c, err := chat.NewChat(uuid.New(), f.company.ID, f.owner.UserID)
	require.NoError(t, err)
	require.NoError(t, f.chats.CreateChat(context.Background(), c))

	_, _, err = f.svc.Attach(context.Background(), f.owner, c.ID.String(), 0, uuid.Nil)
	assert.ErrorIs(t, err, ErrNoStream)

	status, err := f.svc.Status(context.Background(), f.owner, c.ID.String())
	require.NoError(t, err)
	assert.False(t, status.Active)
}

func TestRetention_DiscardsFinishedHandle(t *testing.T) {
	f := newFixture(t, withRetention(30*time.Millisecond))
	chatID := uuid.New()

	sub, _ := f.open(t, f.owner, chatID, "expense report")
	drain(t, sub)

	// com consumidor conectado o handle não expira
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, f.svc.Sweep())
	f.svc.Release(sub)

	require.Eventually(t, func() bool {
		return f.svc.Sweep() == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, _, err := f.svc.Attach(context.Background(), f.owner, chatID.String(), 0, uuid.Nil)
	assert.ErrorIs(t, err, ErrNoStream)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.HandlesSwept))
}

func TestRunSweeper_StopsWithContext(t *testing.T) {
	f := newFixture(t, withRetention(10*time.Millisecond))
	chatID := uuid.New()

	sub, _ := f.open(t, f.owner, chatID, "invoice status")
	drain(t, sub)
	f.svc.Release(sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.RunSweeper(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.HandlesSwept) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper não terminou após o cancelamento")
	}
}

func TestGeneration_ErrorAfterFragments(t *testing.T) {
	gen := funcGenerator(func(ctx context.Context, req assistant.Request, emit assistant.EmitFunc) error {
		for _, w := range []string{"one", " two", " three"} {
			if err := emit(w); err != nil {
				return err
			}
		}
		return errors.New("backend caiu")
	})
	f := newFixture(t, withGenerator(gen))
	chatID := uuid.New()

	sub, _ := f.open(t, f.owner, chatID, "hello")
	evs := drain(t, sub)

	require.Len(t, evs, 4)
	assert.Equal(t, "one two three", contentOf(evs))
	assert.Equal(t, stream.TypeError, evs[3].Type)
	assert.Equal(t, stream.CodeGenerationFailed, evs[3].Code)
	assert.Equal(t, 1, terminals(evs))
	assert.Equal(t, StateFailed, sub.Handle().State())

	msgs, err := f.chats.GetMessagesByChatID(context.Background(), chatID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.RoleUser, msgs[0].Role)
}

func TestGeneration_IdleTimeout(t *testing.T) {
	gen := funcGenerator(func(ctx context.Context, req assistant.Request, emit assistant.EmitFunc) error {
		if err := emit("hello"); err != nil {
			return err
		}
		<-ctx.Done()
		return ctx.Err()
	})
	f := newFixture(t, withGenerator(gen), withIdleTimeout(50*time.Millisecond))

	sub, _ := f.open(t, f.owner, uuid.New(), "hello")
	evs := drain(t, sub)

	require.Len(t, evs, 2)
	assert.Equal(t, stream.CodeIdleTimeout, evs[1].Code)
}

func TestGeneration_EmptyResponse(t *testing.T) {
	gen := funcGenerator(func(ctx context.Context, req assistant.Request, emit assistant.EmitFunc) error {
		return nil
	})
	f := newFixture(t, withGenerator(gen))
	chatID := uuid.New()

	sub, _ := f.open(t, f.owner, chatID, "hello")
	evs := drain(t, sub)

	require.Len(t, evs, 1)
	assert.Equal(t, stream.CodeEmptyResponse, evs[0].Code)

	c, err := f.chats.GetChatByID(context.Background(), chatID)
	require.NoError(t, err)
	assert.Empty(t, c.Title)
}

func TestGeneration_PersistenceFailure(t *testing.T) {
	f := newFixture(t)
	f.chats.CompleteTurnErr = errors.New("disco cheio")
	chatID := uuid.New()

	sub, _ := f.open(t, f.owner, chatID, "tax")
	evs := drain(t, sub)

	last := evs[len(evs)-1]
	assert.Equal(t, stream.CodePersistenceFailed, last.Code)
	assert.Equal(t, 1, terminals(evs))
	for _, ev := range evs {
		assert.NotEqual(t, stream.TypeMetadata, ev.Type)
	}
}

func TestGeneration_TitleOnlyForUntitledChat(t *testing.T) {
	f := newFixture(t)

	c, err := chat.NewChat(uuid.New(), f.company.ID, f.owner.UserID)
	require.NoError(t, err)
	c.Title = "Existing"
	require.NoError(t, f.chats.CreateChat(context.Background(), c))

	sub, _ := f.open(t, f.owner, c.ID, "tax")
	evs := drain(t, sub)
	for _, ev := range evs {
		assert.NotEqual(t, stream.TypeMetadata, ev.Type)
	}

	got, err := f.chats.GetChatByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Existing", got.Title)
}

func TestGeneration_TitleFromFirstUserMessage(t *testing.T) {
	f := newFixture(t)
	chatID := uuid.New()

	c, err := chat.NewChat(chatID, f.company.ID, f.owner.UserID)
	require.NoError(t, err)
	require.NoError(t, f.chats.CreateChat(context.Background(), c))
	first, err := chat.NewMessage(chatID, chat.RoleUser, "Plan: the quarterly invoice run")
	require.NoError(t, err)
	require.NoError(t, f.chats.AppendMessage(context.Background(), first))

	sub, _ := f.open(t, f.owner, chatID, "and taxes?")
	evs := drain(t, sub)

	var titles []string
	for _, ev := range evs {
		if ev.Type == stream.TypeMetadata {
			titles = append(titles, ev.Title)
		}
	}
	assert.Equal(t, []string{"Invoice Management Discussion"}, titles)
}

func TestGeneration_SplitCodepointIsReassembled(t *testing.T) {
	word := "ação"
	raw := []byte(word)
	gen := funcGenerator(func(ctx context.Context, req assistant.Request, emit assistant.EmitFunc) error {
		// "ç" ocupa os bytes 1 e 2
		if err := emit(string(raw[:2])); err != nil {
			return err
		}
		return emit(string(raw[2:]))
	})
	f := newFixture(t, withGenerator(gen))

	sub, _ := f.open(t, f.owner, uuid.New(), "hello")
	evs := drain(t, sub)

	assert.Equal(t, word, contentOf(evs))
	for _, ev := range evs {
		assert.NoError(t, ev.Validate())
	}
}

func TestShutdown_EndsRunningGeneration(t *testing.T) {
	gen := funcGenerator(func(ctx context.Context, req assistant.Request, emit assistant.EmitFunc) error {
		if err := emit("partial"); err != nil {
			return err
		}
		<-ctx.Done()
		return ctx.Err()
	})
	f := newFixture(t, withGenerator(gen))
	chatID := uuid.New()

	sub, _ := f.open(t, f.owner, chatID, "hello")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.svc.Shutdown(ctx))

	evs := drain(t, sub)
	require.Len(t, evs, 2)
	assert.Equal(t, stream.CodeShutdown, evs[1].Code)

	target, err := f.svc.AuthorizePost(context.Background(), f.owner, "", uuid.NewString())
	require.NoError(t, err)
	_, _, err = f.svc.Open(context.Background(), f.owner, target, "again")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpen_LockHeldIsConflict(t *testing.T) {
	locker := lockerFunc(func(context.Context, uuid.UUID, time.Duration) (func(), error) {
		return nil, ErrLockHeld
	})
	f := newFixture(t, withLocker(locker))
	chatID := uuid.New()

	target, err := f.svc.AuthorizePost(context.Background(), f.owner, "", chatID.String())
	require.NoError(t, err)
	_, _, err = f.svc.Open(context.Background(), f.owner, target, "hello")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 0, f.svc.Registry().Len())

	_, err = f.chats.GetChatByID(context.Background(), chatID)
	assert.ErrorIs(t, err, chat.ErrChatNotFound)
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := Principal{UserID: uuid.NewString(), CompanyID: f.company.ID}
	private, err := chat.NewChat(uuid.New(), f.company.ID, f.owner.UserID)
	require.NoError(t, err)
	require.NoError(t, f.chats.CreateChat(ctx, private))
	shared, err := chat.NewChat(uuid.New(), f.company.ID, f.owner.UserID)
	require.NoError(t, err)
	shared.Visibility = chat.VisibilityShared
	require.NoError(t, f.chats.CreateChat(ctx, shared))

	t.Run("empresa diferente da do token", func(t *testing.T) {
		_, err := f.svc.AuthorizePost(ctx, f.owner, uuid.NewString(), private.ID.String())
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("ID de chat inválido", func(t *testing.T) {
		_, err := f.svc.AuthorizePost(ctx, f.owner, "", "not-a-uuid")
		assert.ErrorIs(t, err, ErrBadRequest)
	})

	t.Run("chat privado de outro usuário", func(t *testing.T) {
		_, err := f.svc.AuthorizePost(ctx, other, "", private.ID.String())
		assert.ErrorIs(t, err, ErrForbidden)
		_, err = f.svc.AuthorizeRead(ctx, other, private.ID.String())
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("chat compartilhado é lido mas não respondido por outro usuário", func(t *testing.T) {
		_, err := f.svc.AuthorizeRead(ctx, other, shared.ID.String())
		assert.NoError(t, err)
		_, err = f.svc.AuthorizePost(ctx, other, "", shared.ID.String())
		assert.ErrorIs(t, err, ErrNotChatOwner)
	})

	t.Run("chat novo", func(t *testing.T) {
		target, err := f.svc.AuthorizePost(ctx, f.owner, f.company.ID, uuid.NewString())
		require.NoError(t, err)
		assert.Nil(t, target.Chat)
		assert.Equal(t, f.company.ID, target.CompanyID)
	})

	t.Run("empresa sem assinatura", func(t *testing.T) {
		comp, err := company.NewCompany("Sem plano")
		require.NoError(t, err)
		require.NoError(t, f.companies.Create(ctx, comp))

		_, err = f.svc.AuthorizePost(ctx, Principal{UserID: "u", CompanyID: comp.ID}, "", uuid.NewString())
		assert.ErrorIs(t, err, ErrForbidden)
		assert.ErrorIs(t, err, company.ErrNoSubscription)
	})

	t.Run("empresa inativa", func(t *testing.T) {
		comp, err := company.NewCompany("Bloqueada")
		require.NoError(t, err)
		comp.SubscriptionStatus = company.SubscriptionActive
		comp.Status = company.StatusBlocked
		require.NoError(t, f.companies.Create(ctx, comp))

		_, err = f.svc.AuthorizePost(ctx, Principal{UserID: "u", CompanyID: comp.ID}, "", uuid.NewString())
		assert.ErrorIs(t, err, company.ErrCompanyNotActive)
	})

	t.Run("mensagem", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.ValidateMessage("   "), ErrEmptyMessage)
		assert.ErrorIs(t, f.svc.ValidateMessage(strings.Repeat("a", 4001)), ErrMessageTooLong)
		assert.NoError(t, f.svc.ValidateMessage("ok"))
	})
}

func TestService_LogsFinishedGeneration(t *testing.T) {
	log, logs := logger.NewObserved(zapcore.InfoLevel)

	comp, err := company.NewCompany("Acme")
	require.NoError(t, err)
	comp.SubscriptionStatus = company.SubscriptionTrialing
	companies := memory.NewCompanyRepository(comp)

	svc := NewService(DefaultConfig(), memory.NewChatRepository(), repository.NewCompanyValidator(companies),
		assistant.NewScripted(0, 7), NewRegistry(time.Minute), nil,
		observability.NewMetrics(prometheus.NewRegistry()), log)

	p := Principal{UserID: "u1", CompanyID: comp.ID}
	target, err := svc.AuthorizePost(context.Background(), p, "", uuid.NewString())
	require.NoError(t, err)
	sub, _, err := svc.Open(context.Background(), p, target, "good morning")
	require.NoError(t, err)
	drain(t, sub)

	require.Eventually(t, func() bool {
		return logs.FilterMessage("Geração finalizada").Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
	entry := logs.FilterMessage("Geração finalizada").All()[0]
	assert.Equal(t, "done", entry.ContextMap()["outcome"])
}
