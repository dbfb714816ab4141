package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dealradar-io/dealradar/internal/agent"
	"github.com/dealradar-io/dealradar/internal/calendar"
	"github.com/dealradar-io/dealradar/internal/config"
	"github.com/dealradar-io/dealradar/internal/crm"
	"github.com/dealradar-io/dealradar/internal/plan"
	"github.com/dealradar-io/dealradar/internal/provider"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "health":
		cmdHealth()
	case "jobs":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: radarctl jobs <list|run>")
			os.Exit(1)
		}
		switch os.Args[2] {
		case "list":
			cmdJobsList()
		case "run":
			if len(os.Args) < 4 {
				fmt.Fprintln(os.Stderr, "usage: radarctl jobs run <name>")
				os.Exit(1)
			}
			cmdJobsRun(os.Args[3])
		default:
			fmt.Fprintf(os.Stderr, "unknown jobs subcommand: %s\n", os.Args[2])
			os.Exit(1)
		}
	case "ask":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: radarctl ask <question>")
			os.Exit(1)
		}
		cmdAsk(strings.Join(os.Args[2:], " "))
	case "logs":
		cmdLogs(os.Args[2:])
	case "chat":
		cmdChat(os.Args[2:])
	case "smoke":
		cmdSmoke(os.Args[2:])
	case "config":
		if len(os.Args) < 4 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: radarctl config validate <path>")
			os.Exit(1)
		}
		cmdConfigValidate(os.Args[3])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// --- API client commands ---

func cmdHealth() {
	body, err := apiGet("/api/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(body))
}

func cmdJobsList() {
	body, err := apiGet("/api/jobs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	var jobs []struct {
		Name      string    `json:"name"`
		Schedule  string    `json:"schedule"`
		Runs      int       `json:"runs"`
		LastRun   time.Time `json:"last_run"`
		LastError string    `json:"last_error"`
	}
	json.Unmarshal(body, &jobs)
	for _, j := range jobs {
		last := "-"
		if !j.LastRun.IsZero() {
			last = j.LastRun.Format("Jan 2 15:04")
		}
		line := fmt.Sprintf("%-16s %-16s runs=%-4d last=%s", j.Name, j.Schedule, j.Runs, last)
		if j.LastError != "" {
			line += "  ERR: " + j.LastError
		}
		fmt.Println(line)
	}
}

func cmdJobsRun(name string) {
	body, err := apiPost("/api/jobs/"+name+"/run", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(body))
}

func cmdAsk(question string) {
	payload, _ := json.Marshal(map[string]string{"question": question})
	body, err := apiPost("/api/ask", payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	var resp struct {
		Answer string `json:"answer"`
	}
	json.Unmarshal(body, &resp)
	fmt.Println(resp.Answer)
}

func cmdLogs(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	level := fs.String("level", "", "Minimum level (info|warn|error)")
	limit := fs.Int("limit", 100, "Max entries")
	fs.Parse(args)

	query := fmt.Sprintf("?limit=%d", *limit)
	if *level != "" {
		query += "&level=" + *level
	}
	body, err := apiGet("/api/logs" + query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	var entries []struct {
		Time    time.Time `json:"time"`
		Level   string    `json:"level"`
		Message string    `json:"message"`
	}
	json.Unmarshal(body, &entries)
	for _, e := range entries {
		fmt.Printf("%s %-5s %s\n", e.Time.Format("15:04:05"), e.Level, e.Message)
	}
}

// --- local chat (talks straight to the model, no daemon) ---

func cmdChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", "dealradar.yaml", "Path to config YAML file")
	verbose := fs.Bool("v", false, "Verbose logging")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logLevel := slog.LevelWarn
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	var prov provider.Provider
	switch cfg.Provider.Type {
	case "openai":
		var opts []provider.OpenAIOption
		if cfg.Provider.Model != "" {
			opts = append(opts, provider.WithModel(cfg.Provider.Model))
		}
		if cfg.Provider.BaseURL != "" {
			opts = append(opts, provider.WithBaseURL(cfg.Provider.BaseURL))
		}
		prov = provider.NewOpenAI(cfg.Provider.APIKey, opts...)
	default:
		var opts []provider.AnthropicOption
		if cfg.Provider.Model != "" {
			opts = append(opts, provider.WithAnthropicModel(cfg.Provider.Model))
		}
		if cfg.Provider.BaseURL != "" {
			opts = append(opts, provider.WithAnthropicBaseURL(cfg.Provider.BaseURL))
		}
		prov = provider.NewAnthropic(cfg.Provider.APIKey, opts...)
	}

	deps := agent.Deps{
		CRM:          crm.New(cfg.CRM.APIKey, crm.WithCache(crm.NewRecordCache(cfg.CRM.CacheTTL.Std()))),
		SearchAPIKey: cfg.Search.BraveAPIKey,
		Model:        cfg.Provider.Model,
		Logger:       logger,
	}
	if cfg.Plan.APIKey != "" && cfg.Plan.DatabaseID != "" {
		deps.Plan = plan.New(cfg.Plan.APIKey, cfg.Plan.DatabaseID)
	}
	if cfg.Calendar.APIKey != "" {
		deps.Calendar = calendar.New(cfg.Calendar.APIKey, calendar.WithHomeDomain(cfg.Calendar.HomeDomain))
	}

	assistant := agent.NewAssistant(prov, deps)
	ctx := context.Background()

	fmt.Println("radarctl chat (type 'quit' to exit)")
	fmt.Printf("Model: %s\n\n", cfg.Provider.Model)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		res, err := assistant.Run(ctx, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(assistant.Reply(res))
		fmt.Println()
	}
}

// cmdSmoke checks that every configured collaborator is reachable.
// Read-only: it lists, never writes.
func cmdSmoke(args []string) {
	fs := flag.NewFlagSet("smoke", flag.ExitOnError)
	configPath := fs.String("config", "dealradar.yaml", "Path to config YAML file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: FAIL (%v)\n", err)
		os.Exit(1)
	}
	fmt.Println("config: ok")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	failed := false
	check := func(name string, err error) {
		if err != nil {
			failed = true
			fmt.Printf("%s: FAIL (%v)\n", name, err)
			return
		}
		fmt.Printf("%s: ok\n", name)
	}

	var crmOpts []crm.Option
	if cfg.CRM.BaseURL != "" {
		crmOpts = append(crmOpts, crm.WithBaseURL(cfg.CRM.BaseURL))
	}
	if cfg.CRM.Object != "" {
		crmOpts = append(crmOpts, crm.WithObject(cfg.CRM.Object))
	}
	_, err = crm.New(cfg.CRM.APIKey, crmOpts...).ListDeals(ctx)
	check("crm", err)

	if cfg.Plan.APIKey != "" && cfg.Plan.DatabaseID != "" {
		_, err = plan.New(cfg.Plan.APIKey, cfg.Plan.DatabaseID).ListAll(ctx)
		check("plan", err)
	} else {
		fmt.Println("plan: skipped (not configured)")
	}

	if cfg.Calendar.APIKey != "" {
		_, err = calendar.New(cfg.Calendar.APIKey).UpcomingEvents(ctx, time.Hour)
		check("calendar", err)
	} else {
		fmt.Println("calendar: skipped (not configured)")
	}

	if failed {
		os.Exit(1)
	}
}

func cmdConfigValidate(path string) {
	_, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("config is valid")
}

// --- Helpers ---

func apiGet(path string) ([]byte, error) {
	return apiDo("GET", path, nil)
}

func apiPost(path string, body []byte) ([]byte, error) {
	return apiDo("POST", path, body)
}

func apiDo(method, path string, body []byte) ([]byte, error) {
	base := envOr("RADAR_API_URL", "http://localhost:8080")

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, base+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := os.Getenv("RADAR_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(out))
	}
	return out, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Println("radarctl — dealradar management CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  health               Check daemon health")
	fmt.Println("  jobs list            List automation jobs and their status")
	fmt.Println("  jobs run <name>      Trigger a job immediately")
	fmt.Println("  ask <question>       Ask the assistant through the daemon")
	fmt.Println("  logs                 Tail recent daemon logs (--level, --limit)")
	fmt.Println("  chat                 Local assistant REPL (--config, no daemon needed)")
	fmt.Println("  smoke                Read-only reachability check of configured services")
	fmt.Println("  config validate <p>  Validate config file")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  RADAR_API_URL  Daemon URL (default: http://localhost:8080)")
	fmt.Println("  RADAR_API_KEY  API key for authentication")
}
