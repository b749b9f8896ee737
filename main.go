package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"LiveBoard/internal/client"
	"LiveBoard/internal/export"
	"LiveBoard/internal/hub"
	lnet "LiveBoard/internal/net"
	"LiveBoard/internal/state"
)

const (
	defaultPort     = 8888
	discoverTimeout = 3 * time.Second
	shutdownTimeout = 5 * time.Second
)

type options struct {
	addr          string
	port          int
	mdns          bool
	reapAbandoned bool
	exportPath    string
}

func main() {
	if err := mainInner(); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(1)
	}
}

func mainInner() error {
	var opts options
	flag.StringVar(&opts.addr, "addr", "", "interface to listen on when hosting")
	flag.IntVar(&opts.port, "port", defaultPort, "port to listen on when hosting")
	flag.BoolVar(&opts.mdns, "mdns", true, "advertise or discover the board over mDNS")
	flag.BoolVar(&opts.reapAbandoned, "reap-abandoned", false, "discard strokes left unfinished by a disconnected session")
	flag.StringVar(&opts.exportPath, "export", "", "write the board to this PDF file on exit")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [join [link] | %s<host:port>]\n", os.Args[0], client.Scheme)
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flag.Args()
	switch {
	case len(args) == 0:
		return runHost(ctx, opts)
	case args[0] == "join":
		link := ""
		if len(args) > 1 {
			link = args[1]
		}
		return runJoin(ctx, link, opts)
	case strings.HasPrefix(args[0], client.Scheme):
		return runJoin(ctx, args[0], opts)
	}
	flag.Usage()
	return fmt.Errorf("unknown command %q", args[0])
}

func runHost(ctx context.Context, opts options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg := hub.DefaultConfig()
	cfg.ReapAbandoned = opts.reapAbandoned
	store := state.NewStore(nil)
	h := hub.New(store, cfg)

	listener, err := net.Listen("tcp", net.JoinHostPort(opts.addr, strconv.Itoa(opts.port)))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	srv := &http.Server{
		Handler:           hub.NewServer(h).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := h.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs <- fmt.Errorf("hub stopped: %w", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http server stopped: %w", err)
		}
	}()

	if opts.mdns {
		announcer, err := lnet.Advertise(opts.port)
		if err != nil {
			slog.Warn("board will not be discoverable", "err", err)
		} else {
			defer func() { _ = announcer.Shutdown() }()
		}
	}
	slog.Info("hosting board", "listen", listener.Addr().String(), "link", lnet.ShareLink(lnet.GetOutgoingIP(), opts.port))

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case runErr = <-errs:
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "err", err)
	}
	cancel()
	wg.Wait()

	if opts.exportPath != "" {
		if err := export.ExportPDF(opts.exportPath, store.SnapshotHistory()); err != nil {
			return errors.Join(runErr, err)
		}
		slog.Info("exported board", "path", opts.exportPath)
	}
	return runErr
}

func runJoin(ctx context.Context, link string, opts options) error {
	if link == "" {
		if !opts.mdns {
			return errors.New("no board link given and mDNS discovery is disabled")
		}
		found, err := lnet.Discover(discoverTimeout)
		if err != nil {
			return err
		}
		slog.Info("discovered board", "addr", found)
		link = found
	}

	conn, err := client.Dial(ctx, link)
	if err != nil {
		return err
	}
	defer conn.Close()

	r := client.NewReplica(conn.Emitter())
	r.OnChange(func() {
		f := r.Frame()
		slog.Debug("board changed", "session", r.SessionID(), "history", len(f.History), "remote", len(f.Remote), "cursors", len(f.Cursors))
	})
	slog.Info("joined board", "link", link)

	runErr := conn.Run(ctx, r)
	if opts.exportPath != "" {
		if err := export.ExportPDF(opts.exportPath, r.History()); err != nil {
			return errors.Join(runErr, err)
		}
		slog.Info("exported board", "path", opts.exportPath)
	}
	return runErr
}
