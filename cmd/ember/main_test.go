package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emberlang/emberscript/ember"
)

func TestRunCLIHelp(t *testing.T) {
	if err := runCLI([]string{"ember", "help"}); err != nil {
		t.Fatalf("runCLI help failed: %v", err)
	}
}

func TestRunCLIInvalidCommand(t *testing.T) {
	err := runCLI([]string{"ember", "unknown"})
	if err == nil {
		t.Fatalf("expected invalid command error")
	}
	if !strings.Contains(err.Error(), "invalid command") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunCommandRequiresScriptPath(t *testing.T) {
	err := runCommand(nil)
	if err == nil {
		t.Fatalf("expected script path error")
	}
	if !strings.Contains(err.Error(), "script path required") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunCommandExecutesScriptAndPrintsResult(t *testing.T) {
	scriptPath := writeScript(t, `var x = 6
x * 7`)

	out, err := captureStdout(t, func() error {
		return runCommand([]string{scriptPath})
	})
	if err != nil {
		t.Fatalf("runCommand failed: %v", err)
	}
	if got := strings.TrimSpace(out); got != "42" {
		t.Fatalf("unexpected stdout: %q", got)
	}
}

func TestRunCommandExposesScriptArguments(t *testing.T) {
	scriptPath := writeScript(t, `log(args[0])
args[1]`)

	out, err := captureStdout(t, func() error {
		return runCommand([]string{scriptPath, "tuner", "440"})
	})
	if err != nil {
		t.Fatalf("runCommand failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || lines[0] != "tuner" || lines[1] != "440" {
		t.Fatalf("unexpected stdout: %q", out)
	}
}

func TestRunCommandReportsExecutionFailure(t *testing.T) {
	scriptPath := writeScript(t, `1 / 0`)

	_, err := captureStdout(t, func() error {
		return runCommand([]string{scriptPath})
	})
	if err == nil {
		t.Fatalf("expected execution failure")
	}
	if !strings.Contains(err.Error(), "execution failed") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckCommandAcceptsValidScript(t *testing.T) {
	scriptPath := writeScript(t, `var total = 0
while (total < 5) {
	total = total + 1
}
log(total)`)

	if err := checkCommand([]string{scriptPath}); err != nil {
		t.Fatalf("checkCommand failed: %v", err)
	}
}

func TestCheckCommandIgnoresUnknownNames(t *testing.T) {
	scriptPath := writeScript(t, `setvolume(11)`)

	if err := checkCommand([]string{scriptPath}); err != nil {
		t.Fatalf("checkCommand should not resolve names: %v", err)
	}
}

func TestCheckCommandReportsSyntaxError(t *testing.T) {
	scriptPath := writeScript(t, `var x = "unclosed`)

	err := checkCommand([]string{scriptPath})
	if err == nil {
		t.Fatalf("expected syntax failure")
	}
	if !strings.Contains(err.Error(), "check failed") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckCommandRequiresScriptPath(t *testing.T) {
	err := checkCommand(nil)
	if err == nil {
		t.Fatalf("expected script path error")
	}
	if !strings.Contains(err.Error(), "script path required") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadConfigParsesDurationsAndGlobals(t *testing.T) {
	path := writeFile(t, "config.yaml", `max_run_time: 2s
max_block_time: 20ms
globals:
  volume: 11
  device: amp
  active: true
`)

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	engineCfg := cfg.engineConfig()
	if engineCfg.MaxRunTime.Seconds() != 2 {
		t.Fatalf("unexpected max_run_time: %v", engineCfg.MaxRunTime)
	}
	if engineCfg.MaxBlockTime.Milliseconds() != 20 {
		t.Fatalf("unexpected max_block_time: %v", engineCfg.MaxBlockTime)
	}

	engine := ember.NewEngine(ember.Config{Output: io.Discard})
	if err := cfg.applyGlobals(engine.Domain()); err != nil {
		t.Fatalf("applyGlobals failed: %v", err)
	}
	v, ok := engine.Domain().MemberByName("volume", ember.MaskContent)
	if !ok || v.Number() != 11 {
		t.Fatalf("global volume not applied: %v %v", v, ok)
	}
	v, ok = engine.Domain().MemberByName("device", ember.MaskContent)
	if !ok || v.String() != "amp" {
		t.Fatalf("global device not applied: %v %v", v, ok)
	}
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	path := writeFile(t, "config.yaml", `max_run_time: fast`)

	_, err := loadConfig(path)
	if err == nil {
		t.Fatalf("expected duration parse error")
	}
	if !strings.Contains(err.Error(), "max_run_time") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunCommandAppliesConfigGlobals(t *testing.T) {
	configPath := writeFile(t, "config.yaml", `globals:
  volume: 11
`)
	scriptPath := writeScript(t, `volume * 2`)

	out, err := captureStdout(t, func() error {
		return runCommand([]string{"-config", configPath, scriptPath})
	})
	if err != nil {
		t.Fatalf("runCommand failed: %v", err)
	}
	if got := strings.TrimSpace(out); got != "22" {
		t.Fatalf("unexpected stdout: %q", got)
	}
}

func writeScript(t *testing.T, source string) string {
	t.Helper()
	return writeFile(t, "script.ember", source)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	runErr := fn()
	_ = w.Close()
	os.Stdout = orig

	var buf bytes.Buffer
	if _, copyErr := io.Copy(&buf, r); copyErr != nil {
		t.Fatalf("read stdout: %v", copyErr)
	}
	_ = r.Close()
	return buf.String(), runErr
}
