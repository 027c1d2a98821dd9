// Package config is the configuration collaborator spec.md §6 describes:
// peer base URLs, the set of accepted bearer tokens, the distinguished
// outbound token, the data directory, the HTTP port, and the per-peer
// timeout. Sourced from flags, with environment variables supplying the
// default for any flag not passed on the command line, in the teacher's style (cmd/server/main.go's flag.* calls) — no config file, no
// viper; the collaborator interface is narrow enough that a config library
// would be pure ceremony (see DESIGN.md).
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the core consumes per spec.md §6.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr string
	// DataDir is the directory rooting the embedded KV store.
	DataDir string
	// Peers is the list of peer base URLs this node replicates writes to.
	Peers []string
	// Tokens is the set of bearer tokens the HTTP surface accepts.
	Tokens map[string]struct{}
	// OutboundToken is the single token used when replicating to peers.
	// Kept distinct from Tokens per spec.md §9's own open-question note:
	// an outbound identity is not necessarily "first of the accepted set".
	OutboundToken string
	// PeerTimeout bounds each individual peer POST during fan-out.
	PeerTimeout time.Duration
	// Development selects the zap encoder (console vs. JSON).
	Development bool
}

// Load parses flags (falling back to environment variables for anything not
// passed on the command line) and validates the result.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("docserver", flag.ContinueOnError)

	addr := fs.String("addr", envOr("DOCSTORE_ADDR", ":8080"), "HTTP listen address")
	dataDir := fs.String("data-dir", envOr("DOCSTORE_DATA_DIR", "/tmp/docstore"), "Directory for the embedded store")
	peers := fs.String("peers", envOr("DOCSTORE_PEERS", ""), "Comma-separated peer base URLs")
	tokens := fs.String("tokens", envOr("DOCSTORE_TOKENS", ""), "Comma-separated accepted bearer tokens")
	outboundToken := fs.String("outbound-token", envOr("DOCSTORE_OUTBOUND_TOKEN", ""), "Bearer token used when pushing to peers")
	peerTimeoutMS := fs.Int("peer-timeout-ms", envOrInt("DOCSTORE_PEER_TIMEOUT_MS", 3000), "Per-peer replication timeout, in milliseconds")
	development := fs.Bool("dev", envOrBool("DOCSTORE_DEV", false), "Use human-readable development logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{
		Addr:          *addr,
		DataDir:       *dataDir,
		Peers:         splitNonEmpty(*peers),
		Tokens:        toSet(splitNonEmpty(*tokens)),
		OutboundToken: *outboundToken,
		PeerTimeout:   time.Duration(*peerTimeoutMS) * time.Millisecond,
		Development:   *development,
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate mirrors the teacher's W+R>N sanity check in cmd/server/main.go,
// adapted to this system's simpler parameter set: there is no quorum to
// reason about, so the checks are narrower — at least one accepted token,
// an outbound token set whenever there are peers to push to, and a positive
// peer timeout.
func (c *Config) validate() error {
	if len(c.Tokens) == 0 {
		return fmt.Errorf("config: at least one bearer token must be configured")
	}
	if len(c.Peers) > 0 && c.OutboundToken == "" {
		return fmt.Errorf("config: outbound-token must be set when peers are configured")
	}
	if c.PeerTimeout <= 0 {
		return fmt.Errorf("config: peer-timeout-ms must be positive")
	}
	return nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func toSet(vals []string) map[string]struct{} {
	set := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		set[v] = struct{}{}
	}
	return set
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
