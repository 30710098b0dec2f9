// Command dedalus submits a natural-language request to the Dedalus API,
// letting hosted MCP servers (and optional local ones) answer it, and prints
// the final output. Run with no arguments it asks for a 3-day weather
// forecast for New York City through the avalogica weather MCP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/mdwillman/dedalus/pkg/dedalus"
	"github.com/mdwillman/dedalus/pkg/mcptool"
	"github.com/mdwillman/dedalus/pkg/runner"
)

// Defaults mirror the request this tool was built around: a 3-day NYC
// forecast answered by the hosted avalogica weather MCP server.
const (
	defaultPrompt = "Get a 3-day weather forecast for New York City (40.7128, -74.0060)."
	defaultModel  = "openai/gpt-5-mini"
)

var defaultServers = []string{"mdwillman/avalogica-weather-mcp"}

// stringList collects repeatable string flags.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dedalus [flags] [instruction...]\n\nSubmits an instruction to the Dedalus API and prints the final output.\nWithout an instruction, requests a 3-day weather forecast for New York City.\n\nFlags:\n")
		flag.PrintDefaults()
	}

	envFile := flag.String("env", ".env", "path to .env file (ignored if missing)")
	configPath := flag.String("config", "", "path to YAML configuration file")
	model := flag.String("model", "", "model identifier (overrides config)")
	var servers stringList
	flag.Var(&servers, "server", "hosted MCP server slug (repeatable; overrides config)")
	stream := flag.Bool("stream", false, "stream text deltas as they arrive")
	plain := flag.Bool("plain", false, "print the final output without the terminal UI")
	ask := flag.Bool("ask", false, "prompt interactively for the instruction")
	timeout := flag.Duration("timeout", 0, "overall timeout for the run (0 = none)")
	flag.Parse()

	if err := loadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	opts := cliOptions{
		configPath: *configPath,
		model:      *model,
		servers:    servers,
		stream:     *stream,
		plain:      *plain,
		ask:        *ask,
		timeout:    *timeout,
		args:       flag.Args(),
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type cliOptions struct {
	configPath string
	model      string
	servers    []string
	stream     bool
	plain      bool
	ask        bool
	timeout    time.Duration
	args       []string
}

func run(opts cliOptions) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, opts.timeout)
		defer cancelTimeout()
	}

	var cfg Config
	if opts.configPath != "" {
		var err error
		cfg, err = loadConfig(opts.configPath)
		if err != nil {
			return err
		}
	}

	req, err := buildRequest(opts, cfg)
	if err != nil {
		return err
	}

	client := dedalus.NewFromEnv()
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}
	if cfg.APIKey != "" {
		client.Auth.Key = cfg.APIKey
	}

	baseDelay, err := cfg.Retry.BaseDelayDuration()
	if err != nil {
		return err
	}
	comp := runner.WithRetry(client, runner.RetryOpts{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  baseDelay,
	})

	localTools, closeSessions, err := connectLocalServers(ctx, cfg.LocalServers)
	if err != nil {
		return err
	}
	defer closeSessions()
	req.Tools = append(req.Tools, localTools...)

	r := runner.New(comp)

	if opts.plain {
		return runPlain(ctx, r, req)
	}

	result, err := runTUI(ctx, r, req)
	if err != nil {
		return err
	}

	if out := renderFinal(req, result); out != "" {
		fmt.Println(out)
	}

	return nil
}

// buildRequest resolves the instruction, model, and server list with the
// precedence flags > config > defaults.
func buildRequest(opts cliOptions, cfg Config) (runner.Request, error) {
	instruction := strings.TrimSpace(strings.Join(opts.args, " "))

	// The interactive form needs a terminal; on piped stdin fall through to
	// the positional arguments or the default.
	if opts.ask && isatty.IsTerminal(os.Stdin.Fd()) {
		asked, err := askInstruction()
		if err != nil {
			return runner.Request{}, err
		}
		if asked != "" {
			instruction = asked
		}
	}

	if instruction == "" {
		instruction = defaultPrompt
	}

	model := opts.model
	if model == "" {
		model = cfg.Model
	}
	if model == "" {
		model = defaultModel
	}

	servers := opts.servers
	if len(servers) == 0 {
		servers = cfg.MCPServers
	}
	if len(servers) == 0 {
		servers = defaultServers
	}

	return runner.Request{
		Input:      instruction,
		Model:      model,
		MCPServers: servers,
		System:     cfg.System,
		Stream:     opts.stream,
		MaxTurns:   cfg.MaxTurns,
	}, nil
}

// connectLocalServers connects every configured local MCP server and
// collects their tools. The returned func closes all sessions.
func connectLocalServers(ctx context.Context, configs []LocalServerConfig) ([]runner.Tool, func(), error) {
	var (
		tools    []runner.Tool
		sessions []*mcptool.Session
	)

	closeAll := func() {
		for _, s := range sessions {
			_ = s.Close()
		}
	}

	for _, lc := range configs {
		var (
			session *mcptool.Session
			err     error
		)

		if lc.URL != "" {
			session, err = mcptool.ConnectSSE(ctx, lc.URL)
		} else {
			session, err = mcptool.Connect(ctx, lc.Command, lc.Args...)
		}
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("local server %q: %w", lc.Name, err)
		}
		sessions = append(sessions, session)

		st, err := session.Tools(ctx)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("local server %q: %w", lc.Name, err)
		}
		tools = append(tools, st...)
	}

	return tools, closeAll, nil
}

// runPlain executes the request without the terminal UI. Streamed deltas go
// straight to stdout; otherwise the final output is printed once.
func runPlain(ctx context.Context, r *runner.Runner, req runner.Request) error {
	if req.Stream {
		// Deltas cover the final answer; just terminate the line after.
		if _, err := r.RunStream(ctx, req, func(delta string) { fmt.Print(delta) }); err != nil {
			return err
		}
		fmt.Println()
		return nil
	}

	result, err := r.Run(ctx, req)
	if err != nil {
		return err
	}

	fmt.Println(result.FinalOutput)

	return nil
}
