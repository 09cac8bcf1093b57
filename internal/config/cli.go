package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/peterbourgon/ff"
)

// Cli holds every flag/env-configurable value the control plane binary
// needs to boot, following the teacher's flat Cli struct idiom
// (config/cli.go).
type Cli struct {
	HTTPAddress        string
	WebSocketAddress    string
	DBConnectionString string
	PathTranslations   map[string]string
	APIToken           string

	HeartbeatTimeout  time.Duration
	JobStallTimeout   time.Duration
	HeartbeatInterval time.Duration

	MaxActiveExecutions int
	MaxAttempts         int

	RequireAllServersSuccess bool
	MoviesRoot               string
	TVRoot                   string

	TemplatesDir string
	ProfilesFile string
}

// ParseCli parses flags+env following the teacher's ff.Parse(..., WithEnvVarPrefix)
// idiom (main.go), returning a populated Cli.
func ParseCli(args []string) (Cli, error) {
	cli := Cli{}
	fs := flag.NewFlagSet("ingestctl", flag.ContinueOnError)

	fs.StringVar(&cli.HTTPAddress, "http-addr", "127.0.0.1:7979", "Address to bind the internal orchestrator HTTP API")
	fs.StringVar(&cli.WebSocketAddress, "ws-addr", "0.0.0.0:7980", "Address to bind the encoder dispatch WebSocket listener")
	fs.StringVar(&cli.DBConnectionString, "db-connection-string", "", "Postgres connection string, e.g. host=X port=X user=X password=X dbname=X")
	var pathTranslations string
	fs.StringVar(&pathTranslations, "path-translations", "", "Comma-separated serverPrefix=remotePrefix pairs for encoder path translation")
	fs.DurationVar(&cli.HeartbeatTimeout, "heartbeat-timeout", HeartbeatTimeout, "Time after which a silent encoder connection is force-terminated")
	fs.DurationVar(&cli.JobStallTimeout, "job-stall-timeout", JobStallTimeout, "Time without progress after which an encoding job is declared stalled")
	fs.DurationVar(&cli.HeartbeatInterval, "heartbeat-interval", HeartbeatInterval, "Interval between encoder heartbeat/stall sweeps")
	fs.IntVar(&cli.MaxActiveExecutions, "max-active-executions", MaxActiveExecutions, "Stored in config.MaxActiveExecutions; the pipeline executor does not enforce it")
	fs.IntVar(&cli.MaxAttempts, "max-attempts", DefaultMaxAttempts, "Default max attempts for encoder assignments")
	fs.BoolVar(&cli.RequireAllServersSuccess, "require-all-servers-success", RequireAllServersSuccess, "Whether delivery must succeed on every target server to report success")
	fs.StringVar(&cli.MoviesRoot, "movies-root", MoviesRoot, "Root directory for delivered movie files")
	fs.StringVar(&cli.TVRoot, "tv-root", TVRoot, "Root directory for delivered TV files")
	fs.StringVar(&cli.TemplatesDir, "templates-dir", "templates", "Directory of PipelineTemplate YAML definitions")
	fs.StringVar(&cli.ProfilesFile, "profiles-file", "profiles.yaml", "YAML file mapping encode profile id to dispatch.Profile")
	fs.StringVar(&cli.APIToken, "api-token", "", "Bearer token required on the internal orchestrator HTTP API; empty disables auth (development only)")
	_ = fs.String("config", "", "config file (optional)")

	if err := ff.Parse(fs, args,
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("INGESTCTL"),
	); err != nil {
		return cli, err
	}

	// Publish the parsed tunables to the package-level vars the rest of the
	// module reads.
	HeartbeatTimeout = cli.HeartbeatTimeout
	JobStallTimeout = cli.JobStallTimeout
	HeartbeatInterval = cli.HeartbeatInterval
	MaxActiveExecutions = cli.MaxActiveExecutions
	DefaultMaxAttempts = cli.MaxAttempts
	RequireAllServersSuccess = cli.RequireAllServersSuccess
	MoviesRoot = cli.MoviesRoot
	TVRoot = cli.TVRoot

	cli.PathTranslations = parsePathTranslations(pathTranslations)
	return cli, nil
}

func parsePathTranslations(s string) map[string]string {
	out := map[string]string{}
	if s == "" {
		return out
	}
	for _, pair := range strings.Split(s, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[kv[0]] = kv[1]
	}
	return out
}

// hostname returns the local host name, or "" if it cannot be read (kept
// analogous to the teacher's os.Hostname() use in main.go). Nothing in the
// module calls it.
func hostname() string {
	h, _ := os.Hostname()
	return h
}
