// Command edgelinkd runs a Node-RED compatible flows file as a standalone dataflow
// engine process. Grounded on original_source's src/main.rs and cliargs.rs for the
// CLI surface and startup sequencing, adapted to Go idiom (pflag instead of clap,
// signal.NotifyContext instead of a hand-rolled CancellationToken).
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/edgeflow/edgelink/internal/config"
	"github.com/edgeflow/edgelink/internal/ctxstore"
	"github.com/edgeflow/edgelink/internal/env"
	"github.com/edgeflow/edgelink/internal/engine"
	"github.com/edgeflow/edgelink/internal/jsonloader"
	"github.com/edgeflow/edgelink/internal/jsonseq"
	"github.com/edgeflow/edgelink/internal/logger"
	"github.com/edgeflow/edgelink/internal/model"
	nodescommon "github.com/edgeflow/edgelink/internal/nodes/common"
	"github.com/edgeflow/edgelink/internal/nodes/function"
	"github.com/edgeflow/edgelink/internal/nodes/inject"
	"github.com/edgeflow/edgelink/internal/registry"
)

const appVersion = "0.1.0"

type cliArgs struct {
	flowsPath string
	home      string
	logPath   string
	verbose   int
	stdin     bool
	runEnv    string
}

func parseArgs(argv []string) (*cliArgs, error) {
	fs := pflag.NewFlagSet("edgelinkd", pflag.ContinueOnError)
	home := fs.String("home", "", "Home directory of EdgeLink, default is `~/.edgelink`")
	logPath := fs.StringP("log-path", "l", "", "Directory for log files, overriding runtime.log.dir; no log configuration file is read.")
	verbose := fs.IntP("verbose", "v", 2, "Use verbose output, '0' means quiet, no output printed to stdout.")
	stdin := fs.Bool("stdin", false, "Read flows JSON from stdin.")
	runEnv := fs.String("env", "", "Set the running environment in 'dev' or 'prod', default is `dev`")

	if err := fs.Parse(argv); err != nil {
		return nil, err
	}

	args := &cliArgs{
		home:    *home,
		logPath: *logPath,
		verbose: *verbose,
		stdin:   *stdin,
		runEnv:  *runEnv,
	}
	if rest := fs.Args(); len(rest) > 0 {
		args.flowsPath = rest[0]
	} else {
		args.flowsPath = defaultFlowsPath()
	}
	return args, nil
}

func defaultFlowsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".node-red/flows.json"
	}
	return filepath.Join(home, ".node-red", "flows.json")
}

func main() {
	args, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if args.verbose > 0 {
		fmt.Fprintf(os.Stderr, "EdgeLink v%s\n", appVersion)
	}

	if err := run(args); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

func run(args *cliArgs) error {
	if args.home != "" {
		// config.Load looks for config.toml in ./configs, . and ~/.edgelink whatever
		// $EDGELINK_HOME says; setting it here only changes the runtime.engine.home
		// default, which the assignment below overrides anyway.
		os.Setenv("EDGELINK_HOME", args.home)
	}
	cfg, _, err := config.Load("")
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if args.home != "" {
		cfg.Runtime.Engine.Home = args.home
	}
	if args.runEnv != "" {
		cfg.Runtime.Engine.RunEnv = args.runEnv
	}
	logDir := cfg.Runtime.Log.Dir
	if args.logPath != "" {
		logDir = args.logPath
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Runtime.Log.Level,
		Format:     cfg.Runtime.Log.Format,
		LogDir:     logDir,
		MaxSizeMB:  cfg.Runtime.Log.MaxSizeMB,
		MaxBackups: cfg.Runtime.Log.MaxBackups,
		MaxAgeDays: cfg.Runtime.Log.MaxAgeDays,
		Compress:   true,
	}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logger.Sync()
	log := logger.WithEngine()

	log.Info("starting edgelinkd", zap.String("version", appVersion), zap.String("run_env", cfg.Runtime.Engine.RunEnv))

	reg := registry.New()
	if err := nodescommon.Register(reg); err != nil {
		return fmt.Errorf("failed to register common node types: %w", err)
	}
	if err := function.Register(reg); err != nil {
		return fmt.Errorf("failed to register function node types: %w", err)
	}
	if err := inject.Register(reg); err != nil {
		return fmt.Errorf("failed to register the inject node type: %w", err)
	}

	flowsValue, injections, err := loadFlows(args)
	if err != nil {
		return fmt.Errorf("failed to load flows: %w", err)
	}

	resolved, err := jsonloader.LoadFlowsElements(flowsValue)
	if err != nil {
		return fmt.Errorf("failed to parse flows: %w", err)
	}

	ctxMgr, err := buildContextManager(cfg)
	if err != nil {
		return fmt.Errorf("failed to build context stores: %w", err)
	}
	for name, store := range ctxMgr.Stores() {
		if err := store.Open(context.Background()); err != nil {
			return fmt.Errorf("failed to open context store %q: %w", name, err)
		}
	}

	rootEnv, _ := env.NewBuilder().WithProcessEnv().Build()

	eng := engine.New(reg, ctxMgr, rootEnv, cfg.Runtime.Flow.NodeMsgQueueCapacity, log)
	if err := eng.Build(resolved); err != nil {
		return fmt.Errorf("failed to build the engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("failed to start the engine: %w", err)
	}
	log.Info("engine started, press Ctrl-C to terminate")

	for _, inj := range injections {
		nodeID, err := model.ParseElementId(inj.NodeID)
		if err != nil {
			log.Warn("skipping an injection record with an unparsable node id", zap.String("nid", inj.NodeID))
			continue
		}
		payload, err := msgRecordToVariant(inj.Msg)
		if err != nil {
			log.Warn("skipping an injection record with an unparsable msg", zap.Error(err))
			continue
		}
		if err := eng.Inject(ctx, nodeID, payload); err != nil {
			log.Warn("failed to deliver a stdin injection record", zap.String("nid", inj.NodeID), zap.Error(err))
		}
	}

	<-ctx.Done()
	log.Info("shutting down")
	return eng.Stop()
}

// loadFlows reads the flows array either from args.flowsPath or from stdin, in
// either raw-JSON or RFC 7464 JSON-text-sequence form, per spec §6.
func loadFlows(args *cliArgs) ([]jsonloader.RawElement, []jsonseq.InjectionRecord, error) {
	if !args.stdin {
		data, err := os.ReadFile(args.flowsPath)
		if err != nil {
			return nil, nil, err
		}
		var elements []jsonloader.RawElement
		if err := json.Unmarshal(data, &elements); err != nil {
			return nil, nil, err
		}
		return elements, nil, nil
	}

	buf, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, nil, err
	}
	if len(buf) > 0 && buf[0] == 0x1E {
		return loadJSONSeq(buf)
	}
	var elements []jsonloader.RawElement
	if err := json.Unmarshal(buf, &elements); err != nil {
		return nil, nil, err
	}
	return elements, nil, nil
}

func loadJSONSeq(buf []byte) ([]jsonloader.RawElement, []jsonseq.InjectionRecord, error) {
	r := jsonseq.NewReader(bytes.NewReader(buf))

	record, err := r.Next()
	if err != nil {
		return nil, nil, fmt.Errorf("expected at least one JSON sequence record for the flows array: %w", err)
	}
	var elements []jsonloader.RawElement
	if err := json.Unmarshal(record, &elements); err != nil {
		return nil, nil, err
	}

	var injections []jsonseq.InjectionRecord
	for {
		record, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		var inj jsonseq.InjectionRecord
		if err := json.Unmarshal(record, &inj); err != nil {
			return nil, nil, err
		}
		injections = append(injections, inj)
	}
	return elements, injections, nil
}

func msgRecordToVariant(body map[string]interface{}) (model.Variant, error) {
	raw, err := json.Marshal(body["payload"])
	if err != nil {
		return model.Variant{}, err
	}
	var v model.Variant
	if err := json.Unmarshal(raw, &v); err != nil {
		return model.Variant{}, err
	}
	return v, nil
}

func buildContextManager(cfg *config.Config) (*ctxstore.Manager, error) {
	builder := ctxstore.NewManagerBuilder()
	if cfg.Runtime.Context.Default != "" {
		builder = builder.WithDefault(cfg.Runtime.Context.Default)
	}
	return builder.Build()
}
