package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyike/chat2vis/config"
	"github.com/dyike/chat2vis/internal/client"
	"github.com/dyike/chat2vis/internal/debug"
	"github.com/dyike/chat2vis/internal/server"
	"github.com/dyike/chat2vis/internal/service"
	"github.com/dyike/chat2vis/internal/session"
	"github.com/dyike/chat2vis/internal/storage"
	"github.com/dyike/chat2vis/internal/storage/sqlite"
	"github.com/dyike/chat2vis/models"
	"github.com/dyike/chat2vis/pkg/app"
)

type rootOptions struct {
	configPath string
	debug      bool
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "chat2vis",
		Short: "chat2vis - ask questions about your database, get answers and charts",
		Long: `chat2vis answers natural-language questions about a SQL database.
General questions are answered in text; requests for a chart produce the
plotting code and the rendered figure.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.debug {
				return os.Setenv("CHAT2VIS_DEBUG", "true")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Default behavior: start an interactive chat
			return runChat(cmd, opts, "")
		},
	}

	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug mode")
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Configuration file path")

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newAskCmd(opts))
	rootCmd.AddCommand(newChatCmd(opts))
	rootCmd.AddCommand(newSessionsCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func loadManager(opts *rootOptions) (*config.Manager, error) {
	var mopts []config.ManagerOption
	if opts.configPath != "" {
		mopts = append(mopts, config.WithConfigPath(opts.configPath))
	}
	mgr, err := config.NewManager(mopts...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return mgr, nil
}

// effectiveConfig is the file config with environment overrides applied, the
// same view the engine is built from.
func effectiveConfig(mgr *config.Manager) config.Config {
	cfg := mgr.Get()
	cfg.ApplyEnv()
	return cfg
}

// localStack is the in-process chat service used by serve, ask and chat.
type localStack struct {
	cfg     config.Config
	runtime *app.Runtime
	archive *storage.Archive
	svc     *service.ChatService
}

func openLocalStack(mgr *config.Manager, opts ...app.Option) (*localStack, error) {
	cfg := effectiveConfig(mgr)
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	store := session.NewStore()
	rt, err := app.NewRuntime(mgr, app.Deps{History: store}, append([]app.Option{app.WithEnv(true)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	archive, err := storage.OpenArchive(&cfg)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return &localStack{
		cfg:     cfg,
		runtime: rt,
		archive: archive,
		svc:     service.NewChatService(rt, store, archive),
	}, nil
}

func (s *localStack) Close() {
	s.runtime.Close()
	if err := s.archive.Close(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("close archive: "+err.Error()))
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			mgr, err := loadManager(opts)
			if err != nil {
				return err
			}
			cfg := effectiveConfig(mgr)
			// The debugger has to be registered before the graph compiles.
			if err := debug.NewEinoDebugger(&cfg).Initialize(ctx); err != nil {
				return err
			}

			stack, err := openLocalStack(mgr, app.WithNotifier(reloadNotifier(cmd.OutOrStdout())))
			if err != nil {
				return err
			}
			defer stack.Close()

			if addr == "" {
				addr = stack.cfg.HTTPAddr
			}
			go stack.svc.RunJanitor(ctx, stack.cfg.SessionTTL.Std())

			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Listening on "+addr))
			return server.New(&stack.cfg, stack.svc).Run(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to http_addr from the config)")
	return cmd
}

// reloadNotifier reports engine rebuilds triggered by config edits while the
// server runs.
func reloadNotifier(w io.Writer) func(topic, payload string) {
	return func(topic, payload string) {
		switch topic {
		case "engine.reloaded":
			var ev struct {
				Version uint64 `json:"version"`
			}
			_ = json.Unmarshal([]byte(payload), &ev)
			fmt.Fprintln(w, okStyle.Render(fmt.Sprintf("Engine v%d ready", ev.Version)))
		case "engine.reload_failed":
			var ev struct {
				Error string `json:"error"`
			}
			_ = json.Unmarshal([]byte(payload), &ev)
			fmt.Fprintln(w, errorStyle.Render("Config change rejected, keeping the running engine: "+ev.Error))
		}
	}
}

// Asker answers one question within a session and returns the session id
// that was used.
type Asker interface {
	Ask(ctx context.Context, sessionID, text string) (string, *models.Answer, error)
}

// remoteAsker sends questions to a running chat2vis server.
type remoteAsker struct {
	c *client.Client
}

func (r remoteAsker) Ask(ctx context.Context, sessionID, text string) (string, *models.Answer, error) {
	reply, err := r.c.Ask(ctx, sessionID, text)
	if err != nil {
		return "", nil, err
	}
	return reply.SessionID, reply.Answer, nil
}

// openAsker returns a remote asker when serverURL is set and an in-process
// one otherwise. The returned func releases it.
func openAsker(opts *rootOptions, serverURL string) (Asker, func(), error) {
	if serverURL != "" {
		return remoteAsker{c: client.New(serverURL, 0)}, func() {}, nil
	}
	mgr, err := loadManager(opts)
	if err != nil {
		return nil, nil, err
	}
	stack, err := openLocalStack(mgr)
	if err != nil {
		return nil, nil, err
	}
	return stack.svc, stack.Close, nil
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var (
		sessionID string
		serverURL string
		showCode  bool
	)

	cmd := &cobra.Command{
		Use:   "ask [QUESTION]",
		Short: "Ask a single question",
		Long: `Ask a single question and print the answer.
Example: chat2vis ask "Plot the number of tracks per genre"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asker, release, err := openAsker(opts, serverURL)
			if err != nil {
				return err
			}
			defer release()

			id, ans, err := asker.Ask(cmd.Context(), sessionID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, RenderAnswer(ans, showCode))
			fmt.Fprintln(out, mutedStyle.Render("session: "+id))
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Continue an existing session")
	cmd.Flags().StringVar(&serverURL, "server", "", "Ask a running server instead of answering in-process")
	cmd.Flags().BoolVar(&showCode, "code", false, "Also print generated plotting code")
	return cmd
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts, serverURL)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Chat with a running server instead of answering in-process")
	return cmd
}

func runChat(cmd *cobra.Command, opts *rootOptions, serverURL string) error {
	asker, release, err := openAsker(opts, serverURL)
	if err != nil {
		return err
	}
	defer release()
	return runInteractive(cmd.Context(), cmd.OutOrStdout(), asker, surveyPrompt)
}

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Browse archived sessions",
	}

	var (
		cursor int64
		limit  int
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List archived sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := openArchive(opts)
			if err != nil {
				return err
			}
			defer archive.Close()

			sessions, err := archive.Sessions(cmd.Context(), cursor, limit)
			if err != nil {
				return err
			}
			printSessions(cmd.OutOrStdout(), sessions)
			return nil
		},
	}
	listCmd.Flags().Int64Var(&cursor, "cursor", 0, "Only list sessions older than this cursor")
	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of sessions")

	var showCode bool
	showCmd := &cobra.Command{
		Use:   "show [SESSION_ID]",
		Short: "Print the transcript of an archived session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := openArchive(opts)
			if err != nil {
				return err
			}
			defer archive.Close()

			turns, err := archive.Messages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printTranscript(cmd.OutOrStdout(), turns, showCode)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&showCode, "code", false, "Also print generated plotting code")

	cmd.AddCommand(listCmd, showCmd)
	return cmd
}

func openArchive(opts *rootOptions) (*storage.Archive, error) {
	mgr, err := loadManager(opts)
	if err != nil {
		return nil, err
	}
	cfg := effectiveConfig(mgr)
	archive, err := storage.OpenArchive(&cfg)
	if err != nil {
		return nil, err
	}
	if archive == nil {
		return nil, storage.ErrArchiveDisabled
	}
	return archive, nil
}

func printSessions(w io.Writer, sessions []models.ArchivedSession) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No archived sessions."))
		return
	}
	for _, s := range sessions {
		status := okStyle.Render(s.Status)
		if s.Status != sqlite.StatusDone {
			status = errorStyle.Render(s.Status)
		}
		fmt.Fprintf(w, "%s  %s  %s  %d turns  %s\n",
			s.ID, s.UpdatedAt.Format(time.DateTime), status, s.Turns, s.Title)
	}
}

func printTranscript(w io.Writer, turns []models.Turn, showCode bool) {
	for _, t := range turns {
		fmt.Fprintln(w, titleStyle.Render(t.Role))
		ans := &models.Answer{Content: t.Content, Code: t.Code, Chart: t.Chart}
		fmt.Fprintln(w, RenderAnswer(ans, showCode))
	}
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadManager(opts)
			if err != nil {
				return err
			}
			return showConfig(cmd.OutOrStdout(), effectiveConfig(mgr))
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadManager(opts)
			if err != nil {
				return err
			}
			if err := effectiveConfig(mgr).Validate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Configuration is valid"))
			return nil
		},
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadManager(opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), mgr.Path())
			return nil
		},
	}

	var doc string
	setCmd := &cobra.Command{
		Use:   "set [KEY VALUE]",
		Short: "Change configuration values",
		Long: `Change one value by its JSON name, or several with --json.
A running server picks the change up and rebuilds its engine.
Example: chat2vis config set max_rows 20
         chat2vis config set --json '{"llm_provider": "deepseek", "max_iterations": 8}'`,
		Args: func(cmd *cobra.Command, args []string) error {
			if doc != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadManager(opts)
			if err != nil {
				return err
			}
			if doc != "" {
				err = mgr.UpdateFromJSON(doc)
			} else {
				err = mgr.Set(args[0], args[1])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Updated "+mgr.Path()))
			return nil
		},
	}
	setCmd.Flags().StringVar(&doc, "json", "", "JSON document merged into the configuration")

	cmd.AddCommand(showCmd, validateCmd, pathCmd, setCmd)
	return cmd
}

// showConfig prints cfg as JSON with API keys masked.
func showConfig(w io.Writer, cfg config.Config) error {
	cfg.OpenAIAPIKey = mask(cfg.OpenAIAPIKey)
	cfg.DeepSeekAPIKey = mask(cfg.DeepSeekAPIKey)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func mask(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chat2vis %s\n", Version)
		},
	}
}
