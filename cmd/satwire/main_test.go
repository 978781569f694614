package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// parse runs parseFlags and returns the exit decision and stdout.
func parse(args ...string) (code int, exit bool, stdout string) {
	var out, errb bytes.Buffer
	_, exit, code = parseFlags(args, &out, &errb)
	return code, exit, out.String()
}

func TestParseFlagsDefaults(t *testing.T) {
	var out, errb bytes.Buffer
	cfg, exit, code := parseFlags(nil, &out, &errb)
	if exit || code != 0 {
		t.Fatalf("exit=%v code=%d stderr=%s", exit, code, errb.String())
	}
	if cfg.Network != "mainnet" || cfg.Port != 8333 {
		t.Fatalf("got network %s port %d, want mainnet 8333", cfg.Network, cfg.Port)
	}
}

func TestParseFlagsNetworkPort(t *testing.T) {
	var out, errb bytes.Buffer
	cfg, exit, _ := parseFlags([]string{"--network", "testnet3"}, &out, &errb)
	if exit {
		t.Fatalf("unexpected exit: %s", errb.String())
	}
	if cfg.Port != 18333 {
		t.Fatalf("port = %d, want testnet3 default 18333", cfg.Port)
	}

	cfg, exit, _ = parseFlags([]string{"--network", "regtest", "--port", "0"}, &out, &errb)
	if exit {
		t.Fatalf("unexpected exit: %s", errb.String())
	}
	if cfg.Port != 0 {
		t.Fatalf("explicit port = %d, want 0", cfg.Port)
	}
}

func TestParseFlagsConnectRepeatable(t *testing.T) {
	var out, errb bytes.Buffer
	cfg, exit, _ := parseFlags([]string{
		"--connect", "127.0.0.1:8333",
		"--connect", "tcp://seed.example.org:8333",
		"--maxconns", "4",
		"--loglevel", "debug",
	}, &out, &errb)
	if exit {
		t.Fatalf("unexpected exit: %s", errb.String())
	}
	if len(cfg.Peers) != 2 || cfg.Peers[1] != "tcp://seed.example.org:8333" {
		t.Fatalf("peers = %v", cfg.Peers)
	}
	if cfg.MaxConnections != 4 || cfg.Log.Level != "debug" {
		t.Fatalf("maxconns=%d loglevel=%s", cfg.MaxConnections, cfg.Log.Level)
	}
}

func TestParseFlagsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "satwire.toml")
	body := "network = \"signet\"\npeers = [\"10.0.0.1:38333\"]\n\n[log]\nlevel = \"warn\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	var out, errb bytes.Buffer
	cfg, exit, _ := parseFlags([]string{"--config", path, "--loglevel", "error",
		"--connect", "10.0.0.2:38333"}, &out, &errb)
	if exit {
		t.Fatalf("unexpected exit: %s", errb.String())
	}
	if cfg.Network != "signet" || cfg.Port != 38333 {
		t.Fatalf("network %s port %d, want signet 38333", cfg.Network, cfg.Port)
	}
	if cfg.Log.Level != "error" {
		t.Fatalf("flag did not override file: level %s", cfg.Log.Level)
	}
	if len(cfg.Peers) != 2 {
		t.Fatalf("peers = %v, want file and flag peers", cfg.Peers)
	}
}

func TestParseFlagsErrors(t *testing.T) {
	tests := []struct {
		args []string
		code int
	}{
		{[]string{"--nope"}, 2},
		{[]string{"stray"}, 2},
		{[]string{"--network", "litecoin"}, 1},
		{[]string{"--connect", "nohost"}, 1},
		{[]string{"--config", "/does/not/exist.toml"}, 1},
		{[]string{"--connect", ""}, 2},
	}
	for _, tt := range tests {
		code, exit, _ := parse(tt.args...)
		if !exit || code != tt.code {
			t.Errorf("%v: exit=%v code=%d, want exit code %d", tt.args, exit, code, tt.code)
		}
	}
}

func TestVersionFlag(t *testing.T) {
	code, exit, stdout := parse("--version")
	if !exit || code != 0 {
		t.Fatalf("exit=%v code=%d", exit, code)
	}
	if !strings.Contains(stdout, "satwire "+version) {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestRunExitCodes(t *testing.T) {
	if code := run([]string{"--version"}); code != 0 {
		t.Fatalf("run --version = %d, want 0", code)
	}
	if code := run([]string{"--network", "nowhere"}); code != 1 {
		t.Fatalf("run with bad network = %d, want 1", code)
	}
}
