package serve

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/cmd/backend"
	"github.com/chirino/movie-service/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var readHeaderTimeoutSecs int = 5
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the movie recommendation HTTP server",
		Flags: slices.Concat(
			backend.LogFlags(&cfg),
			serverFlags(&cfg, &readHeaderTimeoutSecs),
			backend.StoreFlags(&cfg),
			backend.CacheFlags(&cfg),
			backend.CatalogFlags(&cfg),
			backend.SemanticFlags(&cfg),
			agentFlags(&cfg),
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := backend.Prepare(&cfg); err != nil {
				return err
			}
			cfg.Listener.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			cfg.ManagementListener.ReadHeaderTimeout = cfg.Listener.ReadHeaderTimeout
			cfg.ManagementListenerEnabled = cmd.IsSet("management-port")
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func serverFlags(cfg *config.Config, readHeaderTimeoutSecs *int) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "tls-cert-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_TLS_CERT_FILE"),
			Destination: &cfg.Listener.TLSCertFile,
			Usage:       "TLS certificate file; a self-signed certificate is generated when unset",
		},
		&cli.StringFlag{
			Name:        "tls-key-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_TLS_KEY_FILE"),
			Destination: &cfg.Listener.TLSKeyFile,
			Usage:       "TLS private key file",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Seconds to wait for in-flight requests on shutdown",
		},
		&cli.Int64Flag{
			Name:        "max-body-size",
			Category:    "Server:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_MAX_BODY_SIZE"),
			Destination: &cfg.MaxBodySize,
			Value:       cfg.MaxBodySize,
			Usage:       "Maximum request body size in bytes",
		},
		&cli.BoolFlag{
			Name:        "cors",
			Category:    "Server:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_CORS_ENABLED"),
			Destination: &cfg.CORSEnabled,
			Usage:       "Enable CORS headers",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "Server:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Usage:       "Comma-separated allowed origins; empty allows any",
		},
		&cli.BoolFlag{
			Name:        "management-access-log",
			Category:    "Server:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_MANAGEMENT_ACCESS_LOG"),
			Destination: &cfg.ManagementAccessLog,
			Usage:       "Enable HTTP access logging for management endpoints (/health, /ready, /metrics)",
		},

		// ── Network Listener ──────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.BoolFlag{
			Name:        "plain-text",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_PLAIN_TEXT"),
			Destination: &cfg.Listener.EnablePlainText,
			Value:       cfg.Listener.EnablePlainText,
			Usage:       "Enable plaintext HTTP/1.1 + h2c",
		},
		&cli.BoolFlag{
			Name:        "tls",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_TLS"),
			Destination: &cfg.Listener.EnableTLS,
			Value:       cfg.Listener.EnableTLS,
			Usage:       "Enable TLS HTTP/1.1 + HTTP/2",
		},

		// ── Management Network Listener ───────────────────────────
		&cli.IntFlag{
			Name:        "management-port",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_MANAGEMENT_PORT"),
			Destination: &cfg.ManagementListener.Port,
			Value:       cfg.ManagementListener.Port,
			Usage:       "Dedicated port for health and metrics (0 = OS-assigned random port); when unset, served on the main port",
		},
		&cli.BoolFlag{
			Name:        "management-plain-text",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_MANAGEMENT_PLAIN_TEXT"),
			Destination: &cfg.ManagementListener.EnablePlainText,
			Value:       cfg.ManagementListener.EnablePlainText,
			Usage:       "Enable plaintext HTTP for management server",
		},
		&cli.BoolFlag{
			Name:        "management-tls",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_MANAGEMENT_TLS"),
			Destination: &cfg.ManagementListener.EnableTLS,
			Value:       cfg.ManagementListener.EnableTLS,
			Usage:       "Enable TLS for management server",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       "service=movie-service",
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	}
}

func agentFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "agent-kind",
			Category:    "Agent:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_AGENT_KIND"),
			Destination: &cfg.AgentType,
			Value:       cfg.AgentType,
			Usage:       "Conversational agent (ollama|none)",
		},
		&cli.StringFlag{
			Name:        "ollama-model",
			Category:    "Agent:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_OLLAMA_MODEL"),
			Destination: &cfg.OllamaModel,
			Value:       cfg.OllamaModel,
			Usage:       "Ollama chat model",
		},
		&cli.FloatFlag{
			Name:        "agent-temperature",
			Category:    "Agent:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_AGENT_TEMPERATURE"),
			Destination: &cfg.AgentTemperature,
			Value:       cfg.AgentTemperature,
			Usage:       "Sampling temperature of the agent",
		},
		&cli.IntFlag{
			Name:        "agent-context-movies",
			Category:    "Agent:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_AGENT_CONTEXT_MOVIES"),
			Destination: &cfg.AgentContextMovies,
			Value:       cfg.AgentContextMovies,
			Usage:       "Semantic matches added to the agent prompt (0 disables grounding)",
		},
		&cli.DurationFlag{
			Name:        "agent-timeout",
			Category:    "Agent:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_AGENT_TIMEOUT"),
			Destination: &cfg.AgentTimeout,
			Value:       cfg.AgentTimeout,
			Usage:       "Upper bound on one agent reply",
		},
		&cli.BoolFlag{
			Name:        "mcp",
			Category:    "Agent:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_MCP_ENABLED"),
			Destination: &cfg.MCPEnabled,
			Value:       cfg.MCPEnabled,
			Usage:       "Expose the movie tools over MCP",
		},
		&cli.StringFlag{
			Name:        "mcp-path",
			Category:    "Agent:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_MCP_PATH"),
			Destination: &cfg.MCPPath,
			Value:       cfg.MCPPath,
			Usage:       "HTTP path of the MCP endpoint",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}

func maxBodySizeMiddleware(maxBodySize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBodySize > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		}
		c.Next()
	}
}
