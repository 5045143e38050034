package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/emberlang/emberscript/ember"
)

func main() {
	if err := runCLI(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCLI(args []string) error {
	if len(args) < 2 {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return runREPL()
		}
		return usageError()
	}
	switch args[1] {
	case "run":
		return runCommand(args[2:])
	case "check":
		return checkCommand(args[2:])
	case "repl":
		return runREPL()
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		return usageError()
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(new(flagErrorSink))
	configPath := fs.String("config", "", "YAML config file with engine settings")
	timeout := fs.Duration("timeout", 0, "override the script run time limit")
	watch := fs.Bool("watch", false, "re-run the script whenever the file changes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	remaining := fs.Args()
	if len(remaining) == 0 {
		return errors.New("ember run: script path required")
	}
	scriptPath, err := filepath.Abs(remaining[0])
	if err != nil {
		return fmt.Errorf("resolve script path: %w", err)
	}

	fileCfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	engineCfg := fileCfg.engineConfig()
	if *timeout > 0 {
		engineCfg.MaxRunTime = *timeout
	}
	engine := ember.NewEngine(engineCfg)
	if err := fileCfg.applyGlobals(engine.Domain()); err != nil {
		return err
	}
	setScriptArgs(engine.Domain(), scriptPath, remaining[1:])
	go engine.Run()
	defer engine.Shutdown()
	ctx := engine.NewContext()

	if *watch {
		return watchScript(engine, ctx, scriptPath)
	}
	source, err := os.ReadFile(scriptPath)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	return executeScript(engine, ctx, string(source), filepath.Base(scriptPath), 0)
}

// executeScript starts source on the engine's loop and blocks until the
// thread finishes, printing the result or a caret-annotated error.
func executeScript(engine *ember.Engine, ctx *ember.ExecutionContext, source, name string, flags ember.StartFlags) error {
	done := make(chan ember.Value, 1)
	engine.Start(ctx, source, ember.StartOptions{
		Name:  name,
		Flags: flags,
		OnDone: func(v ember.Value) {
			done <- v
		},
	})
	result := <-done
	if result.IsError() {
		serr := result.Err()
		fmt.Fprintln(os.Stderr, errorStyle.Render(serr.Error()))
		if frame := serr.CodeFrame(source); frame != "" {
			fmt.Fprintln(os.Stderr, mutedStyle.Render(frame))
		}
		return fmt.Errorf("%s: execution failed", name)
	}
	if !result.IsNull() {
		fmt.Println(result.String())
	}
	return nil
}

// watchScript runs the script once and re-runs it after every change to the
// file, superseding a still-running instance. Interrupt stops the watch.
func watchScript(engine *ember.Engine, ctx *ember.ExecutionContext, scriptPath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(scriptPath)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(scriptPath), err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	name := filepath.Base(scriptPath)
	runOnce := func() {
		source, err := os.ReadFile(scriptPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("read script: %v", err)))
			return
		}
		if err := executeScript(engine, ctx, string(source), name, ember.StartAbortRunning); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}

	runOnce()
	fmt.Fprintln(os.Stderr, mutedStyle.Render(fmt.Sprintf("watching %s (interrupt to stop)", name)))

	var rerun <-chan time.Time
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != scriptPath {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Editors fire bursts of events per save; collapse them.
			rerun = time.After(100 * time.Millisecond)
		case <-rerun:
			rerun = nil
			runOnce()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch: %w", err)
		case <-interrupt:
			return nil
		}
	}
}

func checkCommand(args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(new(flagErrorSink))
	if err := fs.Parse(args); err != nil {
		return err
	}
	remaining := fs.Args()
	if len(remaining) == 0 {
		return errors.New("ember check: script path required")
	}
	failed := false
	for _, path := range remaining {
		source, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}
		engine := ember.NewEngine(ember.Config{Output: io.Discard})
		if serr := engine.Check(string(source)); serr != nil {
			failed = true
			fmt.Fprintf(os.Stderr, "%s: %s\n", path, errorStyle.Render(serr.Error()))
			if frame := serr.CodeFrame(string(source)); frame != "" {
				fmt.Fprintln(os.Stderr, mutedStyle.Render(frame))
			}
		}
	}
	if failed {
		return errors.New("check failed")
	}
	return nil
}

// setScriptArgs exposes the script path and trailing CLI arguments to the
// script as the globals "script" and "args".
func setScriptArgs(domain *ember.Domain, scriptPath string, args []string) {
	arr := ember.NewArrayNode()
	for _, a := range args {
		arr.Append(ember.NewStringNode(a))
	}
	domain.SetGlobal("script", ember.NewText(scriptPath), 0)
	domain.SetGlobal("args", ember.NewStructured(arr), 0)
}

// cliConfig is the YAML shape of the -config file.
type cliConfig struct {
	MaxRunTime   string         `yaml:"max_run_time"`
	MaxBlockTime string         `yaml:"max_block_time"`
	Globals      map[string]any `yaml:"globals"`
}

func loadConfig(path string) (*cliConfig, error) {
	cfg := &cliConfig{}
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if _, err := cfg.duration(cfg.MaxRunTime, "max_run_time"); err != nil {
		return nil, err
	}
	if _, err := cfg.duration(cfg.MaxBlockTime, "max_block_time"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *cliConfig) duration(raw, field string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config %s: %w", field, err)
	}
	return d, nil
}

func (c *cliConfig) engineConfig() ember.Config {
	cfg := ember.Config{}
	if d, _ := c.duration(c.MaxRunTime, ""); d > 0 {
		cfg.MaxRunTime = d
	}
	if d, _ := c.duration(c.MaxBlockTime, ""); d > 0 {
		cfg.MaxBlockTime = d
	}
	return cfg
}

// applyGlobals presets domain globals from the config file. Only scalar
// values are accepted.
func (c *cliConfig) applyGlobals(domain *ember.Domain) error {
	for name, raw := range c.Globals {
		var v ember.Value
		switch t := raw.(type) {
		case nil:
			v = ember.NewNull()
		case bool:
			v = ember.NewBool(t)
		case int:
			v = ember.NewNumber(float64(t))
		case float64:
			v = ember.NewNumber(t)
		case string:
			v = ember.NewText(t)
		default:
			return fmt.Errorf("config global %q: unsupported value %v", name, raw)
		}
		domain.SetGlobal(name, v, 0)
	}
	return nil
}

func usageError() error {
	printUsage()
	return errors.New("invalid command")
}

func printUsage() {
	prog := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [flags]\n", prog)
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  run [flags] <script> [args...]")
	fmt.Fprintln(os.Stderr, "    execute a script file")
	fmt.Fprintln(os.Stderr, "    -config <file>   YAML engine settings")
	fmt.Fprintln(os.Stderr, "    -timeout <dur>   override the run time limit")
	fmt.Fprintln(os.Stderr, "    -watch           re-run on file change")
	fmt.Fprintln(os.Stderr, "  check <script>...")
	fmt.Fprintln(os.Stderr, "    scan scripts for syntax errors without executing")
	fmt.Fprintln(os.Stderr, "  repl")
	fmt.Fprintln(os.Stderr, "    interactive session (default on a terminal)")
}

type flagErrorSink struct{}

func (flagErrorSink) Write(p []byte) (int, error) {
	return len(p), nil
}
