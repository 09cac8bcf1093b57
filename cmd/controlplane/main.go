// Command controlplane boots the ingest control plane: the orchestrator's
// HTTP API, the encoder dispatch fabric's WebSocket listener, and the
// cron-driven recovery/dispatch scheduler, following the teacher's
// errgroup-coordinated main.go shape.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/livepeer-forks/ingestctl/internal/api"
	"github.com/livepeer-forks/ingestctl/internal/app"
	"github.com/livepeer-forks/ingestctl/internal/breaker"
	"github.com/livepeer-forks/ingestctl/internal/config"
	"github.com/livepeer-forks/ingestctl/internal/dispatch"
	"github.com/livepeer-forks/ingestctl/internal/logx"
	"github.com/livepeer-forks/ingestctl/internal/metrics"
	"github.com/livepeer-forks/ingestctl/internal/orchestrator"
	"github.com/livepeer-forks/ingestctl/internal/pipeline"
	"github.com/livepeer-forks/ingestctl/internal/pipeline/steps"
	"github.com/livepeer-forks/ingestctl/internal/recovery"
	"github.com/livepeer-forks/ingestctl/internal/scheduler"
	"github.com/livepeer-forks/ingestctl/internal/store"
	"github.com/livepeer-forks/ingestctl/internal/store/postgres"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

func main() {
	cli, err := config.ParseCli(os.Args[1:])
	if err != nil {
		glog.Fatalf("failed to parse flags: %v", err)
	}

	st, err := openStore(cli)
	if err != nil {
		glog.Fatalf("failed to open store: %v", err)
	}

	templates, err := loadTemplates(cli.TemplatesDir)
	if err != nil {
		glog.Fatalf("failed to load pipeline templates: %v", err)
	}
	profiles, err := loadProfiles(cli.ProfilesFile)
	if err != nil {
		glog.Fatalf("failed to load encode profiles: %v", err)
	}

	m := metrics.New()
	// Constructed so every external-service call site in internal/collaborators
	// has a Registry to wrap itself in once a concrete collaborator lands;
	// the Non-goals keep those collaborators interface-only for now, so
	// nothing consumes this yet (see DESIGN.md).
	_ = breaker.NewRegistry(st, m)

	exec := pipeline.NewExecutor(st, pipeline.NewRegistry(), templates, nil)
	orch := orchestrator.New(st, exec, nil, templates, profiles)
	exec.Trans = orch
	translator := dispatch.NewTranslator(pathMappingsFrom(cli.PathTranslations))
	disp := dispatch.NewDispatcher(st, m, translator, orch)
	disp.Profiles = profiles
	orch.Dispatcher = disp

	reg := exec.Registry
	reg.Register(steps.Search{})
	reg.Register(steps.Download{})
	reg.Register(steps.Encode{Dispatcher: disp, Profiles: profiles})
	reg.Register(steps.Deliver{Store: st})
	reg.Register(steps.Approval{})
	reg.Register(steps.Conditional{})
	reg.Register(steps.Notification{})

	for _, tmpl := range templates {
		if err := reg.ValidateTemplate(tmpl); err != nil {
			glog.Fatalf("invalid pipeline template %s: %v", tmpl.ID, err)
		}
	}

	workers := recovery.New(st, orch, nil)
	sched := scheduler.New(context.Background())
	if err := sched.RegisterRecovery(workers); err != nil {
		glog.Fatalf("failed to register recovery jobs: %v", err)
	}
	if err := sched.RegisterDispatch(disp); err != nil {
		glog.Fatalf("failed to register dispatch jobs: %v", err)
	}
	sched.Start()

	handlers := &api.Handlers{Orchestrator: orch}
	httpServer := &http.Server{Addr: cli.HTTPAddress, Handler: handlers.Router(cli.APIToken)}
	wsServer := &http.Server{Addr: cli.WebSocketAddress, Handler: dispatch.NewServer(disp)}

	application := app.New(sched, disp, httpServer, wsServer)

	group, ctx := errgroup.WithContext(context.Background())

	group.Go(func() error {
		logx.LogNoID("starting orchestrator HTTP API", "addr", cli.HTTPAddress)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		logx.LogNoID("starting encoder dispatch listener", "addr", cli.WebSocketAddress)
		if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		return handleSignals(ctx)
	})

	err = group.Wait()
	glog.Infof("shutting down: %v", err)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("error during shutdown: %v", err)
	}
}

func openStore(cli config.Cli) (store.Store, error) {
	if cli.DBConnectionString == "" {
		glog.Infof("no db-connection-string set, using in-memory store (development only)")
		return store.NewMemory(), nil
	}
	return postgres.Open(cli.DBConnectionString)
}

// loadTemplates reads every *.yaml file in dir as a PipelineTemplate,
// keyed by its own declared ID.
func loadTemplates(dir string) (map[string]pipeline.Template, error) {
	templates := map[string]pipeline.Template{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			glog.Infof("templates dir %s does not exist, starting with no pipeline templates", dir)
			return templates, nil
		}
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", entry.Name(), err)
		}
		tmpl, err := pipeline.ParseTemplate(data)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", entry.Name(), err)
		}
		templates[tmpl.ID] = tmpl
	}
	return templates, nil
}

// loadProfiles reads a YAML file mapping profile id -> dispatch.Profile
// (the profile's own Id/Name fields are redundant with the map key but kept
// so a Profile value is still self-describing once sent over the wire).
func loadProfiles(path string) (map[string]dispatch.Profile, error) {
	profiles := map[string]dispatch.Profile{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			glog.Infof("profiles file %s does not exist, starting with no encode profiles", path)
			return profiles, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("parse profiles file %s: %w", path, err)
	}
	return profiles, nil
}

func pathMappingsFrom(translations map[string]string) []dispatch.PrefixMapping {
	mappings := make([]dispatch.PrefixMapping, 0, len(translations))
	for serverPrefix, remotePrefix := range translations {
		mappings = append(mappings, dispatch.PrefixMapping{ServerPrefix: serverPrefix, RemotePrefix: remotePrefix})
	}
	return mappings
}

func handleSignals(ctx context.Context) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	select {
	case s := <-c:
		return fmt.Errorf("caught signal=%v", s)
	case <-ctx.Done():
		return nil
	}
}
