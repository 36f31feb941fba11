package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/rs/zerolog"

	"github.com/novapush/novadash/internal/config"
	"github.com/novapush/novadash/internal/logger"
	"github.com/novapush/novadash/internal/logstore"
	"github.com/novapush/novadash/internal/monitoring"
	"github.com/novapush/novadash/internal/realtime"
	"github.com/novapush/novadash/internal/subscription"
	"github.com/novapush/novadash/internal/tui"
	"github.com/novapush/novadash/pkg/client"
	"github.com/novapush/novadash/pkg/domain"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// tokenFilePath returns ~/.novadash/token.
func tokenFilePath() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "token"), nil
}

// credentials returns the auth token source using precedence: env var > file.
func credentials() (client.Credentials, error) {
	if tok := os.Getenv("NOVADASH_TOKEN"); tok != "" {
		return client.NewMemoryToken(tok), nil
	}
	path, err := tokenFilePath()
	if err != nil {
		return nil, err
	}
	return client.NewFileToken(path), nil
}

func run(args []string, stdout, stderr io.Writer) error {
	cmd := ""
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "--version", "version", "-v":
		fmt.Fprintln(stdout, "novadash "+version)
		return nil
	case "help", "--help", "-h":
		printHelp(stdout)
		return nil
	case "login":
		return runLogin(args, stdout)
	case "logout":
		return runLogout(stdout)
	case "", "logs", "metrics", "watch", "send":
	default:
		return fmt.Errorf("unknown command %q (see: novadash help)", cmd)
	}

	cfg, err := config.Load(os.Getenv("NOVADASH_CONFIG"))
	if err != nil {
		return err
	}
	if cmd == "" {
		return runTUI(cfg, stdout)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := logger.New(cfg.Log.Env, cfg.Log.Level, stderr)
	if err != nil {
		return err
	}
	rt, err := newWiring(cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	switch cmd {
	case "logs":
		err = runLogs(ctx, rt, args, stdout, stderr)
	case "metrics":
		err = runMetrics(ctx, rt, args, stdout)
	case "watch":
		err = runWatch(ctx, rt, stdout)
	case "send":
		err = runSend(ctx, rt, args, stdout)
	}
	if client.IsUnauthorized(err) {
		printLoginHint(stderr)
	}
	return err
}

// wiring holds the sync layer for one process.
type wiring struct {
	cfg     *config.Config
	log     zerolog.Logger
	creds   client.Credentials
	client  *client.Client
	manager *realtime.Manager
	metrics *monitoring.Metrics
	feeds   *subscription.Feeds
	closers []func() error
}

func newWiring(cfg *config.Config, log zerolog.Logger) (*wiring, error) {
	creds, err := credentials()
	if err != nil {
		return nil, err
	}
	rt := &wiring{
		cfg:     cfg,
		log:     log,
		creds:   creds,
		metrics: monitoring.NewMetrics(),
	}
	rt.client = client.New(cfg.API.BaseURL, creds,
		client.WithTimeout(cfg.API.Timeout),
		client.WithLogger(log),
	)

	rt.feeds = &subscription.Feeds{
		Source:  rt.client,
		Store:   logstore.New(),
		Timeout: cfg.API.Timeout,
		Logger:  log,
		Monitor: rt.metrics,
	}
	if dialer := rt.newDialer(); dialer != nil {
		rt.manager = realtime.NewManager(dialer,
			realtime.WithDialTimeout(cfg.Realtime.DialTimeout),
			realtime.WithLogger(log),
			realtime.WithMetrics(rt.metrics),
		)
		rt.closers = append(rt.closers, rt.manager.Close)
		rt.feeds.Transport = rt.manager
	}

	if cfg.Metrics.Addr != "" {
		rt.serveMetrics()
	}
	return rt, nil
}

// newDialer returns nil when the push channel is disabled.
func (rt *wiring) newDialer() realtime.Dialer {
	switch rt.cfg.Realtime.Transport {
	case config.TransportSocketIO:
		return &realtime.SocketIODialer{
			URL:    rt.cfg.RealtimeURL(),
			Token:  rt.creds.Token,
			Logger: rt.log,
		}
	case config.TransportRedis:
		rc := realtime.NewRedisClient(rt.cfg.Redis.Addr, rt.cfg.Redis.Password, rt.cfg.Redis.DB)
		rt.closers = append(rt.closers, rc.Close)
		return &realtime.RedisDialer{
			Client: rc,
			Prefix: rt.cfg.Redis.ChannelPrefix,
			Topics: []string{realtime.TopicLogUpdate},
			Logger: rt.log,
		}
	}
	return nil
}

func (rt *wiring) serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle(rt.cfg.Metrics.Path, rt.metrics.Handler())
	srv := &http.Server{
		Addr:              rt.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.log.Error().Err(err).Str("addr", srv.Addr).Msg("metrics server")
		}
	}()
	rt.log.Info().Str("addr", srv.Addr).Str("path", rt.cfg.Metrics.Path).Msg("serving metrics")
	rt.closers = append(rt.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}

// Close releases resources in reverse order of creation.
func (rt *wiring) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.log.Debug().Err(err).Msg("shutdown")
		}
	}
	rt.closers = nil
}

func runTUI(cfg *config.Config, stdout io.Writer) error {
	f, err := logger.OpenFile(cfg.Log.File)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	log, err := logger.New(cfg.Log.Env, cfg.Log.Level, f)
	if err != nil {
		return err
	}
	rt, err := newWiring(cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.creds.Token() == "" {
		printLoginHint(stdout)
		return nil
	}
	// Only force re-login on actual auth failures (401), not transient errors.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.Timeout)
	_, err = rt.client.GetLogs(ctx)
	cancel()
	if client.IsUnauthorized(err) {
		printLoginHint(stdout)
		return nil
	}

	app := tui.NewApp(rt.feeds, tui.Options{WebURL: cfg.WebURL(), BaseURL: cfg.API.BaseURL})
	p := tea.NewProgram(app, tea.WithAltScreen())
	final, err := p.Run()
	if a, ok := final.(tui.App); ok {
		a.Close()
	}
	if err != nil {
		return fmt.Errorf("tui error: %w", err)
	}
	return nil
}

func runLogs(ctx context.Context, rt *wiring, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	fs.SetOutput(stderr)
	status := fs.String("status", "", "only show this status (pending, sent, delivered, failed)")
	channel := fs.String("channel", "", "only show this channel (email, sms, push)")
	query := fs.String("q", "", "match id, recipient or template name")
	limit := fs.Int("limit", 0, "show at most this many rows, newest first (0 = all)")
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter := logstore.LogFilter{
		Status:  domain.Status(*status),
		Channel: domain.Channel(*channel),
		Query:   *query,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return fmt.Errorf("unknown status %q", *status)
	}
	if filter.Channel != "" && !filter.Channel.Valid() {
		return fmt.Errorf("unknown channel %q", *channel)
	}

	snap, err := rt.feeds.FetchLogs(ctx)
	if err != nil {
		return err
	}
	rows := snap.Filter(filter)
	if *limit > 0 && len(rows) > *limit {
		rows = rows[:*limit]
	}
	if snap.Rejected > 0 {
		fmt.Fprintf(stderr, "%d malformed records skipped\n", snap.Rejected)
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(stdout, "No notifications.")
		return nil
	}
	fmt.Fprintln(stdout, logsTable(rows))
	return nil
}

func logsTable(rows []domain.NotificationEvent) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "CHANNEL", "STATUS", "RECIPIENT", "TEMPLATE", "SENT", "ERROR")
	for _, e := range rows {
		recipient := e.RecipientName
		if recipient == "" {
			recipient = e.RecipientID
		}
		t.Row(
			e.ID,
			e.Channel.Label(),
			string(e.Status),
			recipient,
			e.TemplateName,
			e.SentAt.Local().Format("2006-01-02 15:04:05"),
			e.ErrorMessage,
		)
	}
	return t.Render()
}

func runMetrics(ctx context.Context, rt *wiring, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("metrics", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rt.feeds.Location = time.Local
	m, err := rt.feeds.FetchMetrics(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}
	printMetrics(stdout, m)
	return nil
}

func printMetrics(w io.Writer, m domain.DashboardMetrics) {
	fmt.Fprintf(w, "Total sent:     %d\n", m.TotalSent)
	fmt.Fprintf(w, "Success rate:   %d%%\n", m.SuccessRate)
	fmt.Fprintf(w, "Active users:   %d\n", m.ActiveUsers)
	fmt.Fprintf(w, "Avg delivery:   %s\n", m.AvgDeliveryTime)
	fmt.Fprintln(w, "\nThis week:")
	for _, d := range m.WeeklyData {
		fmt.Fprintf(w, "  %s  %4d delivered  %4d failed\n", d.Name, d.Deliveries, d.Failures)
	}
	if len(m.ChannelDistribution) > 0 {
		fmt.Fprintln(w, "\nChannels:")
		for _, c := range m.ChannelDistribution {
			fmt.Fprintf(w, "  %-6s %3d%%\n", c.Name, c.Value)
		}
	}
	if len(m.RecentActivity) > 0 {
		fmt.Fprintln(w, "\nRecent:")
		for _, a := range m.RecentActivity {
			fmt.Fprintf(w, "  %-6s %-26s %3d%%  %s\n", a.Channel.Label(), a.ID, a.SuccessRate, a.Timestamp.Local().Format(time.DateTime))
		}
	}
}

// runWatch mounts a headless metrics hook and prints one line per refresh
// until interrupted.
func runWatch(ctx context.Context, rt *wiring, stdout io.Writer) error {
	rt.feeds.Location = time.Local
	var last time.Time
	h := rt.feeds.Metrics(func(st subscription.State[domain.DashboardMetrics]) {
		if line, ok := watchLine(st, last); ok {
			fmt.Fprintln(stdout, line)
			if st.Err == nil {
				last = st.UpdatedAt
			}
		}
	})
	h.Mount(ctx)
	<-ctx.Done()
	h.Unmount()
	return nil
}

// watchLine formats a settled state that differs from the last printed one.
func watchLine(st subscription.State[domain.DashboardMetrics], last time.Time) (string, bool) {
	if st.IsLoading {
		return "", false
	}
	mode := "connecting"
	switch {
	case st.Polling:
		mode = "polling"
	case st.Live:
		mode = "live"
	}
	if st.Err != nil {
		return fmt.Sprintf("%s [%s] error: %v", time.Now().Format(time.TimeOnly), mode, st.Err), true
	}
	if !st.HasData || !st.UpdatedAt.After(last) {
		return "", false
	}
	m := st.Data
	return fmt.Sprintf("%s [%s] sent=%d success=%d%% users=%d avg=%s",
		st.UpdatedAt.Format(time.TimeOnly), mode, m.TotalSent, m.SuccessRate, m.ActiveUsers, m.AvgDeliveryTime), true
}

// varsFlag collects repeated -var key=value pairs.
type varsFlag map[string]string

func (v varsFlag) String() string {
	parts := make([]string, 0, len(v))
	for k, val := range v {
		parts = append(parts, k+"="+val)
	}
	return strings.Join(parts, ",")
}

func (v varsFlag) Set(s string) error {
	k, val, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("want key=value, got %q", s)
	}
	v[strings.TrimSpace(k)] = val
	return nil
}

func splitRecipients(s string) []string {
	var out []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func runSend(ctx context.Context, rt *wiring, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	channel := fs.String("channel", "", "delivery channel (email, sms, push)")
	template := fs.String("template", "", "template ID")
	to := fs.String("to", "", "comma-separated recipient IDs")
	vars := varsFlag{}
	fs.Var(vars, "var", "template variable key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := rt.client.SendNotification(ctx, client.SendRequest{
		Channel:    domain.Channel(*channel),
		TemplateID: *template,
		Recipients: splitRecipients(*to),
		Variables:  vars,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Queued. Correlation ID: %s\n", res.CorrelationID)
	return nil
}

func runLogin(args []string, stdout io.Writer) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return errors.New("usage: novadash login <token>")
	}
	path, err := tokenFilePath()
	if err != nil {
		return err
	}
	ft := client.NewFileToken(path)
	if err := ft.Save(strings.TrimSpace(args[0])); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Token saved to %s\n", ft.Path())
	return nil
}

func runLogout(stdout io.Writer) error {
	path, err := tokenFilePath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(stdout, "Already logged out.")
		return nil
	}
	if err := client.NewFileToken(path).Clear(); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Logged out.")
	return nil
}
