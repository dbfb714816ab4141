package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dealradar-io/dealradar/internal/agent"
	apiPkg "github.com/dealradar-io/dealradar/internal/api"
	"github.com/dealradar-io/dealradar/internal/automation"
	"github.com/dealradar-io/dealradar/internal/calendar"
	"github.com/dealradar-io/dealradar/internal/config"
	slackconn "github.com/dealradar-io/dealradar/internal/connector/slack"
	"github.com/dealradar-io/dealradar/internal/connector/webhook"
	"github.com/dealradar-io/dealradar/internal/crm"
	"github.com/dealradar-io/dealradar/internal/logbuf"
	"github.com/dealradar-io/dealradar/internal/mailbox"
	"github.com/dealradar-io/dealradar/internal/plan"
	"github.com/dealradar-io/dealradar/internal/provider"
	"github.com/dealradar-io/dealradar/internal/scheduler"
	"github.com/dealradar-io/dealradar/internal/state"
	"github.com/dealradar-io/dealradar/pkg/protocol"
)

func main() {
	configPath := flag.String("config", "dealradar.yaml", "Path to config YAML file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("dealradard starting", "provider", cfg.Provider.Type, "model", cfg.Provider.Model)

	// 1. LLM provider
	var prov provider.Provider
	switch cfg.Provider.Type {
	case "openai":
		var opts []provider.OpenAIOption
		if cfg.Provider.BaseURL != "" {
			opts = append(opts, provider.WithBaseURL(cfg.Provider.BaseURL))
		}
		if cfg.Provider.Model != "" {
			opts = append(opts, provider.WithModel(cfg.Provider.Model))
		}
		prov = provider.NewOpenAI(cfg.Provider.APIKey, opts...)
	default: // "anthropic"
		var opts []provider.AnthropicOption
		if cfg.Provider.BaseURL != "" {
			opts = append(opts, provider.WithAnthropicBaseURL(cfg.Provider.BaseURL))
		}
		if cfg.Provider.Model != "" {
			opts = append(opts, provider.WithAnthropicModel(cfg.Provider.Model))
		}
		prov = provider.NewAnthropic(cfg.Provider.APIKey, opts...)
	}

	// 2. Upstream clients
	crmOpts := []crm.Option{
		crm.WithCache(crm.NewRecordCache(cfg.CRM.CacheTTL.Std())),
		crm.WithLogger(logger.With("component", "crm")),
	}
	if cfg.CRM.BaseURL != "" {
		crmOpts = append(crmOpts, crm.WithBaseURL(cfg.CRM.BaseURL))
	}
	if cfg.CRM.Object != "" {
		crmOpts = append(crmOpts, crm.WithObject(cfg.CRM.Object))
	}
	crmClient := crm.New(cfg.CRM.APIKey, crmOpts...)

	var planClient *plan.Client
	if cfg.Plan.APIKey != "" && cfg.Plan.DatabaseID != "" {
		planOpts := []plan.Option{plan.WithLogger(logger.With("component", "plan"))}
		if cfg.Plan.BaseURL != "" {
			planOpts = append(planOpts, plan.WithBaseURL(cfg.Plan.BaseURL))
		}
		planClient = plan.New(cfg.Plan.APIKey, cfg.Plan.DatabaseID, planOpts...)
	}

	var calClient *calendar.Client
	if cfg.Calendar.APIKey != "" {
		calOpts := []calendar.Option{calendar.WithHomeDomain(cfg.Calendar.HomeDomain)}
		if cfg.Calendar.BaseURL != "" {
			calOpts = append(calOpts, calendar.WithBaseURL(cfg.Calendar.BaseURL))
		}
		if cfg.Calendar.CalendarID != "" {
			calOpts = append(calOpts, calendar.WithCalendarID(cfg.Calendar.CalendarID))
		}
		calClient = calendar.New(cfg.Calendar.APIKey, calOpts...)
	}

	var mail *mailbox.Client
	if cfg.Mailbox.Host != "" {
		mail = mailbox.NewClient(mailbox.Config{
			Host:     cfg.Mailbox.Host,
			Port:     cfg.Mailbox.Port,
			Username: cfg.Mailbox.Username,
			Password: cfg.Mailbox.Password,
			TLS:      cfg.Mailbox.TLS,
			Folder:   cfg.Mailbox.Folder,
		}, logger.With("component", "mailbox"))
	}

	// 3. Durable automation state
	os.MkdirAll(cfg.DataDir, 0o755)
	store, err := state.Open(filepath.Join(cfg.DataDir, "state.db"))
	if err != nil {
		logger.Error("failed to open state store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// 4. Agents
	agentDeps := agent.Deps{
		CRM:          crmClient,
		Plan:         planClient,
		Calendar:     calClient,
		SearchAPIKey: cfg.Search.BraveAPIKey,
		Model:        cfg.Provider.Model,
		Logger:       logger,
	}
	if mail != nil {
		agentDeps.Mailbox = mail
	}
	assistant := agent.NewAssistant(prov, agentDeps)
	researcher := agent.NewResearcher(prov, agentDeps)
	planner := agent.NewPlanner(prov, agentDeps)
	extractor := agent.NewSignalExtractor(prov, agentDeps, false)

	// "plan ..." and "research ..." asks go to the specialists;
	// everything else is the assistant's.
	ask := func(ctx context.Context, text string) (string, error) {
		ag := assistant
		switch {
		case strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), "plan "):
			ag = planner
		case strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), "research "):
			ag = researcher
		}
		res, err := ag.Run(ctx, text)
		if err != nil {
			return "", err
		}
		return ag.Reply(res), nil
	}

	logSignal := func(ctx context.Context, report protocol.SignalReport) error {
		return crmClient.AddNote(ctx, report.RecordID, report.NoteTitle, report.NoteContent())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	group, ctx := errgroup.WithContext(ctx)

	// 5. Slack connector
	var slack *slackconn.Connector
	if cfg.Slack.BotToken != "" {
		slack, err = slackconn.New(slackconn.Config{
			BotToken: cfg.Slack.BotToken,
			AppToken: cfg.Slack.AppToken,
		}, slackconn.Handlers{
			Ask:     ask,
			Extract: extractor.Extract,
			Log:     logSignal,
		}, logger.With("connector", "slack"))
		if err != nil {
			logger.Error("failed to init slack connector", "error", err)
			os.Exit(1)
		}
		group.Go(func() error { return slack.Start(ctx) })
		logger.Info("slack connector started")
	}

	// 6. Scheduled automations
	sched := scheduler.New(logger.With("component", "scheduler"))
	autoDeps := automation.Deps{
		CRM:        crmClient,
		Plan:       planClient,
		Calendar:   calClient,
		State:      store,
		Extractor:  extractor,
		Researcher: researcher,
		Planner:    planner,
		Channel:    cfg.Slack.Channel,
		Logger:     logger.With("component", "automation"),
	}
	if mail != nil {
		autoDeps.Mailbox = mail
	}
	if slack != nil {
		autoDeps.Poster = slack
	}
	for _, job := range automation.Jobs(autoDeps) {
		if cfg.Jobs.JobDisabled(job.Name()) {
			logger.Info("job disabled", "job", job.Name())
			continue
		}
		if err := sched.Register(job, cfg.Jobs.Schedules[job.Name()]); err != nil {
			logger.Error("failed to register job", "job", job.Name(), "error", err)
			os.Exit(1)
		}
	}
	group.Go(func() error { return sched.Start(ctx) })
	logger.Info("scheduler started", "jobs", sched.Len())

	// 7. REST API with the inbound recap webhook
	// Webhook recaps arrive with no human in the loop, so that
	// extractor logs confirmed signals itself.
	var recapHook http.Handler
	if cfg.Webhook.Secret != "" {
		autoExtractor := agent.NewSignalExtractor(prov, agentDeps, true)
		recapHook = webhook.New(webhook.Config{Secret: cfg.Webhook.Secret},
			autoExtractor.Extract, store, logger.With("component", "webhook"))
	}
	apiSrv := apiPkg.NewServer(sched, ask, apiPkg.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
		Key:  cfg.API.Key,
	}, logger.With("component", "api"), logBuf, recapHook)
	group.Go(func() error { return apiSrv.Start(ctx) })
	logger.Info("api server started", "port", cfg.API.Port)

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("component failed", "error", err)
		os.Exit(1)
	}
	logger.Info("dealradard stopped")
}
