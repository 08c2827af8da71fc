// cmd/dtnexd is the DTNEX gossip agent's process entrypoint, grounded on
// cmd/web4-node/main.go's flag-parsed subcommand dispatch (run/status)
// generalized to DTNEX's own config surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"dtnex/internal/config"
	"dtnex/internal/diagnostics"
	"dtnex/internal/echo"
	"dtnex/internal/graph"
	"dtnex/internal/logging"
	"dtnex/internal/metastore"
	"dtnex/internal/metrics"
	"dtnex/internal/router"
	"dtnex/internal/supervisor"
	"dtnex/internal/transport"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		printUsage(stdout)
		return 0
	}
	switch args[0] {
	case "run":
		return runAgent(args[1:], stdout, stderr)
	case "graph":
		return runGraph(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: dtnexd <run|graph> [args]")
	fmt.Fprintln(w, "  run   --node-id <id> --listen <host:port> [--neighbor <id>]... [--peer <id>=<host:port>]... [--devtls]")
	fmt.Fprintln(w, "  graph --router-db <path> --out <file.dot>")
}

type peerList map[uint64]string

func (p peerList) String() string { return fmt.Sprintf("%v", map[uint64]string(p)) }

func (p peerList) Set(s string) error {
	parts := strings.SplitN(s, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("expected <node-id>=<host:port>, got %q", s)
	}
	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid node id %q: %w", parts[0], err)
	}
	p[id] = parts[1]
	return nil
}

type uintList []uint64

func (u *uintList) String() string { return fmt.Sprintf("%v", *u) }

func (u *uintList) Set(s string) error {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid node id %q: %w", s, err)
	}
	*u = append(*u, id)
	return nil
}

func runAgent(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := config.Defaults()
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(stderr, "load env config: %v\n", err)
		return 1
	}

	nodeID := fs.Uint64("node-id", cfg.LocalNodeID, "local DTN node id")
	listen := fs.String("listen", cfg.ListenAddr, "transport listen address (host:port)")
	routerDB := fs.String("router-db", cfg.RouterDBPath, "path to the router's sqlite contact/range store")
	devTLS := fs.Bool("devtls", cfg.DevTLS, "allow self-signed dev TLS certificates (unsafe)")
	sharedKey := fs.String("shared-key", cfg.SharedKey, "MAC shared secret")
	metaName := fs.String("metadata-name", cfg.LocalMetadataName, "local node descriptor name")
	metaContact := fs.String("metadata-contact", cfg.LocalMetadataContact, "local node descriptor contact")
	bpechoEnabled := fs.Bool("bpecho", cfg.BpechoEnabled, "enable the bpecho-compatible responder")
	bpechoListen := fs.String("bpecho-listen", cfg.BpechoListenAddr, "bpecho responder's own transport listen address")
	graphEnabled := fs.Bool("graph", cfg.GraphEnabled, "enable periodic GraphViz export")
	graphFile := fs.String("graph-file", cfg.GraphFile, "GraphViz output file")
	diagAddr := fs.String("diagnostics-addr", cfg.DiagnosticsAddr, "metrics/pprof listen address, empty to disable")
	logLevel := fs.String("log-level", cfg.LogLevel, "log level (debug|info|warn|error)")

	var neighbors uintList
	fs.Var(&neighbors, "neighbor", "neighbor node id (repeatable)")
	peers := make(peerList)
	fs.Var(peers, "peer", "node-id=host:port address for a neighbor's transport listener (repeatable)")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg.LocalNodeID = *nodeID
	cfg.ListenAddr = *listen
	cfg.RouterDBPath = *routerDB
	cfg.DevTLS = *devTLS
	cfg.SharedKey = *sharedKey
	cfg.LocalMetadataName = *metaName
	cfg.LocalMetadataContact = *metaContact
	cfg.BpechoEnabled = *bpechoEnabled
	cfg.BpechoListenAddr = *bpechoListen
	cfg.GraphEnabled = *graphEnabled
	cfg.GraphFile = *graphFile
	cfg.DiagnosticsAddr = *diagAddr
	cfg.LogLevel = *logLevel
	if len(neighbors) > 0 {
		cfg.Neighbors = neighbors
	}
	if len(peers) > 0 {
		cfg.PeerAddrs = peers
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "invalid configuration: %v\n", err)
		return 1
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "build logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	mx := metrics.New()
	diag, err := diagnostics.Start(cfg.DiagnosticsAddr, mx.Registry, log)
	if err != nil {
		fmt.Fprintf(stderr, "start diagnostics endpoint: %v\n", err)
		return 1
	}
	defer diag.Close(context.Background())

	build := func(ctx context.Context, cfg config.Config) (router.Adapter, transport.Adapter, error) {
		rtr, err := router.OpenSQLiteAdapter(ctx, cfg.RouterDBPath, cfg.LocalNodeID, cfg.Neighbors)
		if err != nil {
			return nil, nil, err
		}
		addrBook := transport.NewAddressBook(cfg.PeerAddrs)
		trans, err := transport.NewQUICTransport(ctx, cfg.ListenAddr, cfg.LocalNodeID, cfg.SharedKey, addrBook, cfg.DevTLS)
		if err != nil {
			rtr.Close()
			return nil, nil, err
		}
		if cfg.BpechoEnabled {
			bpechoTrans, err := transport.NewQUICTransport(ctx, cfg.BpechoListenAddr, cfg.LocalNodeID, cfg.SharedKey, addrBook, cfg.DevTLS)
			if err != nil {
				rtr.Close()
				trans.Close()
				return nil, nil, err
			}
			responder := echo.New(bpechoTrans, cfg.BpechoServiceNumber, uint16(cfg.BundleTTL.Seconds()), log)
			go responder.Run(ctx)
			go func() { <-ctx.Done(); bpechoTrans.Close() }()
		}
		return rtr, trans, nil
	}

	fmt.Fprintf(stdout, "dtnexd starting node_id=%d listen=%s\n", cfg.LocalNodeID, cfg.ListenAddr)
	sup := supervisor.New(cfg, build, mx, log)
	ctx := context.Background()
	if err := sup.Run(ctx); err != nil {
		fmt.Fprintf(stderr, "run failed: %v\n", err)
		return 1
	}
	return 0
}

func runGraph(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("graph", flag.ContinueOnError)
	fs.SetOutput(stderr)
	routerDB := fs.String("router-db", ":memory:", "path to the router's sqlite contact/range store")
	out := fs.String("out", "", "output .dot path, or empty for stdout")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	ctx := context.Background()
	rtr, err := router.OpenSQLiteAdapter(ctx, *routerDB, 0, nil)
	if err != nil {
		fmt.Fprintf(stderr, "open router db: %v\n", err)
		return 1
	}
	defer rtr.Close()

	w := stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintf(stderr, "create %s: %v\n", *out, err)
			return 1
		}
		defer f.Close()
		w = f
	}

	// The metadata store is in-memory and owned by the running agent
	// process; a standalone graph dump has no access to it, so node labels
	// come from the router's contact list alone.
	if err := graph.Write(ctx, w, metastore.New(), rtr); err != nil {
		fmt.Fprintf(stderr, "render graph: %v\n", err)
		return 1
	}
	return 0
}
