package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/dm-chat/chatclient"
)

var rootCmd = &cobra.Command{
	Use:   "dm-chat",
	Short: "Terminal client for a direct-message conversation (websocket feed + HTTP publish)",
	RunE:  runChat,
}

var (
	flagPage           string
	flagCSRFToken      string
	flagTimeZone       string
	flagDisplayName    string
	flagReconnectDelay time.Duration
	flagDataPath       string
	flagHistory        int
	flagMetricsPort    int
	flagLogLevel       string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagPage, "page", "http://localhost:4000/message/1", "conversation page URL; its last path segment selects the stream")
	flags.StringVar(&flagCSRFToken, "csrf-token", "", "anti-forgery token (default: read from the page or DMCHAT_CSRF_TOKEN)")
	flags.StringVar(&flagTimeZone, "timezone", "", "IANA time zone sent with messages (default: host zone)")
	flags.StringVar(&flagDisplayName, "display-name", "Direct", "name shown next to every message")
	flags.DurationVar(&flagReconnectDelay, "reconnect-delay", chatclient.DefaultReconnectDelay, "pause before resubscribing after an unexpected close")
	flags.StringVar(&flagDataPath, "data-path", "", "optional directory to persist the conversation log via PebbleDB")
	flags.IntVar(&flagHistory, "history", 200, "entries replayed from the persisted log on start (0 = all)")
	flags.IntVar(&flagMetricsPort, "metrics-port", -1, "optional local port for /metrics and /healthz (negative to disable)")
	flags.StringVar(&flagLogLevel, "log-level", "info", "diagnostic log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute dm-chat command")
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := setupLogging(flagLogLevel); err != nil {
		return err
	}
	secrets, err := loadSecrets()
	if err != nil {
		return err
	}
	hc, err := newHTTPClient(flagPage, secrets.SessionCookie)
	if err != nil {
		return err
	}

	page, err := resolvePage(ctx, hc, secrets)
	if err != nil {
		return err
	}
	log.Info().Str("conversation", page.TargetID).Str("timezone", page.TimeZone).Msg("[dm-chat] page loaded")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := chatclient.NewMetrics(reg)

	var dataPath string
	if flagDataPath != "" {
		dataPath = filepath.Join(flagDataPath, page.TargetID)
	}
	view := newTerminalView(os.Stdout, chatclient.SanitizeDisplayName(flagDisplayName), page.Location())
	client, err := chatclient.New(page, chatclient.Config{
		View:           view,
		HTTPClient:     hc,
		ReconnectDelay: flagReconnectDelay,
		DataPath:       dataPath,
		HistoryLimit:   flagHistory,
		Metrics:        metrics,
	})
	if err != nil {
		return fmt.Errorf("new client: %w", err)
	}

	// Optional local metrics server on --metrics-port
	var httpSrv *http.Server
	if flagMetricsPort >= 0 {
		httpSrv = &http.Server{Addr: fmt.Sprintf(":%d", flagMetricsPort), Handler: newMetricsHandler(reg), ReadHeaderTimeout: 5 * time.Second, IdleTimeout: 60 * time.Second}
		log.Info().Msgf("[dm-chat] serving metrics at http://127.0.0.1:%d/metrics", flagMetricsPort)
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("[dm-chat] metrics http stopped")
			}
		}()
	}

	go readCompose(ctx, os.Stdin, client)

	// Run blocks until Ctrl+C, then waits for the subscription and pending publishes.
	runErr := client.Run(ctx)

	if httpSrv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(sctx); err != nil && err != context.Canceled {
			log.Warn().Err(err).Msg("[dm-chat] metrics http shutdown error")
		}
	}
	view.ScrollToLatest()
	if err := client.Close(); err != nil {
		log.Warn().Err(err).Msg("[dm-chat] transcript close error")
	}
	log.Info().Msg("[dm-chat] shutdown complete")
	return runErr
}

func setupLogging(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	zerolog.SetGlobalLevel(lvl)
	// Diagnostics go to stderr so they never interleave with the log on stdout.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	return nil
}

// resolvePage builds the page context. An explicit token skips fetching the
// page.
func resolvePage(ctx context.Context, hc *http.Client, s secrets) (chatclient.Page, error) {
	token := flagCSRFToken
	if token == "" {
		token = s.CSRFToken
	}

	var page chatclient.Page
	var err error
	if token != "" {
		page, err = chatclient.ParsePage(flagPage)
		page = page.WithCSRFToken(token)
	} else {
		page, err = chatclient.LoadPage(ctx, hc, flagPage)
	}
	if err != nil {
		return chatclient.Page{}, err
	}

	if flagTimeZone != "" {
		if _, err := time.LoadLocation(flagTimeZone); err != nil {
			return chatclient.Page{}, fmt.Errorf("timezone %q: %w", flagTimeZone, err)
		}
		page = page.WithTimeZone(flagTimeZone)
	}
	return page, nil
}

// readCompose submits every stdin line as a message.
func readCompose(ctx context.Context, r io.Reader, client *chatclient.Client) {
	sc := bufio.NewScanner(r)
	field := &chatclient.ComposeField{}
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		field.Set(sc.Text())
		client.Submit(ctx, field)
	}
	if err := sc.Err(); err != nil {
		log.Warn().Err(err).Msg("[dm-chat] read input")
		return
	}
	log.Debug().Msg("[dm-chat] input closed; still listening")
}
