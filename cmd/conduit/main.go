package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"conduit-ai/internal/adapter/backend"
	"conduit-ai/internal/adapter/gateway"
	"conduit-ai/internal/adapter/store"
	"conduit-ai/internal/domain"
	"conduit-ai/internal/infra/config"
	"conduit-ai/internal/infra/logger"
	"conduit-ai/internal/infra/tracer"
	"conduit-ai/internal/usecase"
	"conduit-ai/internal/usecase/automation"
	"conduit-ai/internal/usecase/buttons"
	"conduit-ai/internal/usecase/calls"
	"conduit-ai/internal/usecase/eventbus"
	"conduit-ai/internal/usecase/stream"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	switch os.Args[1] {
	case "health":
		if err := runHealth(); err != nil {
			fmt.Fprintf(os.Stderr, "health: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("backend reachable")
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'conduit --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`conduit - streamed AI backend response core

USAGE:
    conduit [COMMAND] [FLAGS]

COMMANDS:
    health      Probe backend availability with escalating timeouts

    (no command) - Run the interactive stream console

FLAGS:
    -h, --help         Show this help message
    --config PATH      Specify config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: CONDUIT_API_KEY, CONDUIT_BASE_URL, CONDUIT_LOG_LEVEL`)
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("CONDUIT_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. State store
	kv, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer kv.Close()

	// 4. Automation & buttons
	settings, err := automation.NewSettings(policyFromConfig(cfg.Automation), kv)
	if err != nil {
		return fmt.Errorf("automation settings: %w", err)
	}
	engine := automation.NewEngine(settings)
	tracker := buttons.NewTracker(kv)

	// 5. Event bus
	bus := eventbus.New(log)
	defer bus.Close()

	// 6. Stream core
	classifier := usecase.NewErrorClassifier()
	validator := calls.NewValidator()
	poller := usecase.NewPoller(classifier, validator, logger.ForComponent(log, "poller"), pollerOptions(cfg.Poller)...)
	service := usecase.NewService(poller, bus, engine, tracker, nil, log)

	// 7. Backend transport
	client := backend.NewClient(cfg.Backend, logger.ForComponent(log, "backend"))

	// 8. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 9. Gateway
	if cfg.Gateway.Enabled {
		gw := gateway.NewServer(bus, cfg.Gateway.Addr, logger.ForComponent(log, "gateway"))
		go func() {
			if err := gw.Start(ctx); err != nil {
				log.Error("gateway server error", "error", err)
			}
		}()
	}

	log.Info("conduit starting",
		"backend", cfg.Backend.BaseURL,
		"store", cfg.Store.Path,
		"gateway", cfg.Gateway.Enabled,
	)

	return console(ctx, service, client)
}

// console reads prompts from stdin, one per line, and streams each
// response to stdout. Deltas pass through an ordering applier so the
// printed text matches assembly order even though the bus dispatches
// handlers concurrently.
func console(ctx context.Context, service *usecase.Service, client *backend.Client) error {
	conversationID := time.Now().UTC().Format("20060102T150405")

	applier := stream.NewOrderedApplier(func(delta domain.ContentDelta) {
		fmt.Print(delta.Text)
		if delta.Final {
			fmt.Println()
		}
	})
	unsubscribe := subscribeDeltas(service, applier, conversationID)
	defer unsubscribe()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			fmt.Print("> ")
			continue
		}
		if prompt == "exit" || prompt == "quit" {
			return nil
		}

		handle, err := client.OpenStream(ctx, backend.QueryRequest{
			ConversationID: conversationID,
			Prompt:         prompt,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "query: %v\n", err)
			fmt.Print("> ")
			continue
		}

		result := service.Query(ctx, conversationID, handle)
		if result.Outcome != domain.OutcomeCompleted {
			handle.Abandon()
			fmt.Fprintf(os.Stderr, "stream %s: %v\n", result.Outcome, result.Err)
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}

// subscribeDeltas routes this conversation's content deltas into the
// applier. Other conversations' events on a shared bus are ignored.
func subscribeDeltas(service *usecase.Service, applier *stream.OrderedApplier, conversationID string) func() {
	handler := func(_ context.Context, event domain.Event) {
		if event.ConversationID != conversationID {
			return
		}
		var delta domain.ContentDelta
		if err := json.Unmarshal(event.Payload, &delta); err != nil {
			return
		}
		applier.Offer(delta)
	}
	unsubDelta := service.Bus().Subscribe(domain.EventContentDelta, handler)
	unsubFinal := service.Bus().Subscribe(domain.EventContentFinal, handler)
	return func() {
		unsubDelta()
		unsubFinal()
	}
}

func runHealth() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	client := backend.NewClient(cfg.Backend, logger.ForComponent(log, "backend"))
	return client.Health(context.Background())
}

// policyFromConfig maps the YAML automation section onto the domain
// policy used as the persisted-state fallback.
func policyFromConfig(cfg config.AutomationConfig) domain.AutomationPolicy {
	kind := func(kp config.KindPolicyConfig) domain.KindPolicy {
		return domain.KindPolicy{
			Enabled:       kp.Enabled,
			AllowAnything: kp.AllowAnything,
			AllowList:     kp.AllowList,
			DenyList:      kp.DenyList,
		}
	}
	return domain.AutomationPolicy{
		Kinds: map[domain.ActionKind]domain.KindPolicy{
			domain.ActionEdit:     kind(cfg.Edit),
			domain.ActionConsole:  kind(cfg.Console),
			domain.ActionTerminal: kind(cfg.Terminal),
			domain.ActionFileRun:  kind(cfg.FileRun),
		},
	}
}

func pollerOptions(cfg config.PollerConfig) []usecase.PollerOption {
	var opts []usecase.PollerOption
	if cfg.Interval > 0 {
		opts = append(opts, usecase.WithInterval(cfg.Interval))
	}
	if cfg.MaxAttempts > 0 {
		opts = append(opts, usecase.WithMaxAttempts(cfg.MaxAttempts))
	}
	if cfg.Inactivity > 0 {
		opts = append(opts, usecase.WithInactivityStop(cfg.Inactivity))
	}
	return opts
}
