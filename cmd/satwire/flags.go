package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/satwire/satwire/node"
)

// stringsValue implements flag.Value for a flag that may be repeated.
type stringsValue struct {
	p *[]string
}

func (v *stringsValue) String() string {
	if v.p == nil {
		return ""
	}
	return strings.Join(*v.p, ",")
}

func (v *stringsValue) Set(s string) error {
	if s == "" {
		return fmt.Errorf("empty value")
	}
	*v.p = append(*v.p, s)
	return nil
}

// options holds the raw CLI values before they are merged into a Config.
type options struct {
	config    string
	port      int
	network   string
	connect   []string
	logLevel  string
	logFormat string
	maxConns  int
	proxy     string
	version   bool
}

// newFlagSet binds every CLI flag to opts. Defaults come from
// node.DefaultConfig; only flags given on the command line override the
// config file.
func newFlagSet(opts *options) *flag.FlagSet {
	def := node.DefaultConfig()
	fs := flag.NewFlagSet("satwire", flag.ContinueOnError)
	fs.StringVar(&opts.config, "config", "", "TOML config file")
	fs.IntVar(&opts.port, "port", def.Port, "P2P listening port (0 picks a free port)")
	fs.StringVar(&opts.network, "network", def.Network,
		"network: "+strings.Join(node.NetworkNames(), ", "))
	fs.Var(&stringsValue{p: &opts.connect}, "connect", "peer host:port to dial (repeatable)")
	fs.StringVar(&opts.logLevel, "loglevel", def.Log.Level, "log level (debug, info, warn, error)")
	fs.StringVar(&opts.logFormat, "logformat", def.Log.Format, "log format (text, json)")
	fs.IntVar(&opts.maxConns, "maxconns", def.MaxConnections, "maximum number of channels")
	fs.StringVar(&opts.proxy, "proxy", "", "SOCKS5 proxy for outbound connections (host:port)")
	fs.BoolVar(&opts.version, "version", false, "print version and exit")
	return fs
}

// apply merges the flags that were set on the command line into cfg.
func (o *options) apply(fs *flag.FlagSet, cfg *node.Config) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["network"] {
		cfg.Network = o.network
		if !set["port"] {
			if n, ok := node.LookupNetwork(o.network); ok {
				cfg.Port = int(n.Port)
			}
		}
	}
	if set["port"] {
		cfg.Port = o.port
	}
	if set["connect"] {
		cfg.Peers = append(cfg.Peers, o.connect...)
	}
	if set["loglevel"] {
		cfg.Log.Level = o.logLevel
	}
	if set["logformat"] {
		cfg.Log.Format = o.logFormat
	}
	if set["maxconns"] {
		cfg.MaxConnections = o.maxConns
	}
	if set["proxy"] {
		cfg.P2P.Proxy = o.proxy
	}
}
