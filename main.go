package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/requestlog"

	"github.com/sammck-go/comlink/comlink"
	"github.com/sammck-go/comlink/comlink/transport"
)

var help = `
  Usage: comlinkd [command] [--help]

  Commands:

    demo    - exercises the proxy protocol (GET/APPLY/CONSTRUCT/RELEASE,
              a thrown error, a proxy-marked callback argument, and a finalizer
              hook) over an in-process channel pair and prints the results
    serve   - exposes the demo object over a WebSocket endpoint
    connect - wraps a demo object served elsewhere and calls it

  Read more:
    https://github.com/sammck-go/comlink

`

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

var wsDialer = websocket.Dialer{}

func sigIntHandler(ctx context.Context, cancel context.CancelFunc) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	signal.Stop(sig)
	cancel()
}

func main() {
	ctx, ctxCancel := context.WithCancel(context.Background())
	defer ctxCancel()

	flag.Usage = func() { fmt.Print(help) }
	flag.Parse()
	args := flag.Args()

	subcmd := ""
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "demo":
		runDemo()
	case "serve":
		go sigIntHandler(ctx, ctxCancel)
		runServe(ctx, args)
	case "connect":
		runConnect(ctx, args)
	default:
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
}

var serveHelp = `
  Usage: comlinkd serve [options]

  Options:

    --host, Listening host (defaults to 0.0.0.0)
    --port, Listening port (defaults to 8080)
    --origins, Comma-separated allow-list of accepted WebSocket Origin
      headers; "*" (the default) accepts every origin
    --origins-file, Optional path to a file containing one allowed origin
      per line; reloaded automatically on change
    -v, Enable debug request logging

`

func runServe(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	host := flags.String("host", "0.0.0.0", "")
	port := flags.String("port", "8080", "")
	origins := flags.String("origins", "*", "")
	originsFile := flags.String("origins-file", "", "")
	verbose := flags.Bool("v", false, "")
	flags.Usage = func() { fmt.Print(serveHelp) }
	flags.Parse(args)

	logLevel := comlink.LogLevelInfo
	if *verbose {
		logLevel = comlink.LogLevelDebug
	}
	logger := comlink.NewLogger("serve", logLevel)

	policy, err := newReloadableOriginPolicy(logger, *origins, *originsFile)
	if err != nil {
		logger.Fatalf("building origin policy: %s", err)
	}
	defer policy.Close()

	addr := *host + ":" + *port

	h := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleUpgrade(logger, policy, w, r)
	}))
	if logLevel >= comlink.LogLevelDebug {
		h = requestlog.Wrap(h)
	}

	srv := &http.Server{Addr: addr, Handler: h}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	logger.ILogf("listening on %s...", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("serving: %s", err)
	}
}

func handleUpgrade(logger comlink.Logger, policy *reloadableOriginPolicy, w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WLogf("failed to upgrade to websocket: %s", err)
		return
	}
	origin := r.Header.Get("Origin")
	ep := transport.NewWebSocketEndpoint(conn, origin)
	comlink.Expose(newDemoRoot(logger), ep, comlink.WithOrigins(policy.Current()))
	logger.ILogf("exposed demo root to %s (origin %q)", r.RemoteAddr, origin)
}

var connectHelp = `
  Usage: comlinkd connect <url>

  Connects to a comlinkd serve instance and runs the full demo exercise
  over a real WebSocket endpoint instead of an in-process pair, including
  a CONSTRUCT result and a proxy-marked callback argument: both mint a
  fresh sub-channel multiplexed over the same WebSocket connection
  (comlink/submux.go), so no second socket is dialed for them.

`

func runConnect(ctx context.Context, args []string) {
	logger := comlink.NewLogger("connect", comlink.LogLevelInfo)
	if len(args) < 1 {
		fmt.Print(connectHelp)
		os.Exit(1)
	}
	url := args[0]
	dial := func(ctx context.Context) (comlink.Endpoint, error) {
		conn, _, err := wsDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return transport.NewWebSocketEndpoint(conn, ""), nil
	}
	ep := transport.NewReconnectingEndpoint(ctx, dial)
	ep.MaxInterval = 30 * time.Second
	if err := ep.Start(); err != nil {
		logger.Fatalf("dialing %s: %s", url, err)
	}
	defer ep.Close()
	root := comlink.Wrap(ep)
	defer root.Release()

	v, err := root.Path("Counter").Get(ctx)
	if err != nil {
		logger.Fatalf("GET Counter: %s", err)
	}
	logger.ILogf("Counter = %v", v)

	r, err := root.Path("Inc").Call(ctx)
	if err != nil {
		logger.Fatalf("Inc(): %s", err)
	}
	logger.ILogf("Inc() = %v", r)

	if _, err := root.Path("Throws").Call(ctx); err != nil {
		logger.ILogf("Throws() rejected as expected: %s", err)
	}

	counter, err := root.Path("Counters").Construct(ctx, 10)
	if err != nil {
		logger.Fatalf("Counters(10): %s", err)
	}
	r, err = counter.Path("Next").Call(ctx)
	if err != nil {
		logger.Fatalf("counter.Next(): %s", err)
	}
	logger.ILogf("counter.Next() = %v (over its own sub-channel)", r)
	if err := counter.Release(); err != nil {
		logger.Fatalf("counter.Release(): %s", err)
	}

	double := &callback{fn: func(args []interface{}) (interface{}, error) {
		n, _ := args[0].(float64)
		return n * 2, nil
	}}
	r, err = root.Path("RunCallback").Call(ctx, comlink.Proxy(double))
	if err != nil {
		logger.Fatalf("RunCallback(): %s", err)
	}
	logger.ILogf("RunCallback() = %v", r)
}
