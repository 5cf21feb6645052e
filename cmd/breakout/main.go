// Command breakout runs a dedicated server, a host that also plays, or a
// client that joins one, depending on BREAKOUT_MODE.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"breakout/config"
	"breakout/discovery"
	"breakout/mirror"
	"breakout/network"
	"breakout/protocol"
	"breakout/room"
	"breakout/store"
	"breakout/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	log.Printf("starting in %s mode", cfg.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
	log.Println("bye")
}

func logger(prefix string) *log.Logger {
	return log.New(os.Stderr, prefix+": ", log.LstdFlags)
}

func run(ctx context.Context, cfg config.Config) error {
	schema, err := room.NewSchema()
	if err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	hello := protocol.Hello{V: protocol.Version, Name: cfg.PlayerName}

	g, ctx := errgroup.WithContext(ctx)
	opts := room.Options{
		Autopilot:    cfg.Autopilot,
		PingInterval: cfg.PingInterval,
		Logger:       logger("room"),
	}

	var (
		srv     *transport.Server
		matches network.MatchLister
	)
	switch cfg.Mode {
	case config.ModeServer, config.ModeHost:
		srv = transport.NewServer(schema.Table, logger("transport"))
		defer srv.Close()
		opts.Server = srv

		if cfg.DatabaseURL != "" {
			st, err := store.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()
			rec := store.NewRecorder(st, 0, logger("store"))
			opts.Matches = rec
			matches = st
			g.Go(func() error { return rec.Run(ctx) })
		}
		if cfg.RedisAddr != "" {
			m := mirror.NewRedis(cfg.RedisAddr, logger("mirror"))
			opts.Sink = m
			g.Go(func() error { return m.Run(ctx) })
		}
		if cfg.Mode == config.ModeHost {
			c, err := transport.Loopback(srv, hello, logger("transport"))
			if err != nil {
				return fmt.Errorf("seat host player: %w", err)
			}
			defer c.Close()
			opts.Client = c
		}

	case config.ModeClient:
		url, err := serverURL(ctx, cfg)
		if err != nil {
			return err
		}
		c, err := network.Dial(ctx, url, hello, schema.Table, cfg.DialAttempts, logger("network"))
		if err != nil {
			return fmt.Errorf("join %s: %w", url, err)
		}
		defer c.Close()
		opts.Client = c
	}

	r, err := room.New(schema, opts)
	if err != nil {
		return fmt.Errorf("room: %w", err)
	}
	g.Go(func() error { return r.Run(ctx) })

	if srv != nil {
		if err := serve(ctx, g, cfg, srv, query(r), matches); err != nil {
			return err
		}
	} else {
		g.Go(func() error { return watch(ctx, r) })
	}
	return g.Wait()
}

// query asks the room loop for a snapshot.
func query(r *room.Room) network.StatusFunc {
	return func(ctx context.Context) (any, error) {
		reply := make(chan room.Snapshot, 1)
		select {
		case r.Inbox <- room.Query{Reply: reply}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		select {
		case s := <-reply:
			return s, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func serve(ctx context.Context, g *errgroup.Group, cfg config.Config, srv *transport.Server, status network.StatusFunc, matches network.MatchLister) error {
	l := logger("network")
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           network.NewRouter(srv, status, matches, l),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if cfg.Discovery {
		port, err := listenPort(cfg.ListenAddr)
		if err != nil {
			return err
		}
		name := cfg.PlayerName
		if name == "" {
			name, _ = os.Hostname()
		}
		adv, err := discovery.Advertise(name, port)
		if err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			adv.Shutdown()
			return nil
		})
	}
	g.Go(func() error {
		l.Printf("listening on %s", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return nil
}

func serverURL(ctx context.Context, cfg config.Config) (string, error) {
	if cfg.ServerURL != "" {
		return cfg.ServerURL, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	h, err := discovery.First(ctx, logger("discovery"))
	if err != nil {
		return "", err
	}
	log.Printf("found %s at %s", h.Instance, h.URL())
	return h.URL(), nil
}

func listenPort(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("listen addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return 0, fmt.Errorf("listen addr %q: %w", addr, err)
	}
	return port, nil
}

// watch logs the client's room status whenever it changes.
func watch(ctx context.Context, r *room.Room) error {
	ask := query(r)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	var last string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			v, err := ask(ctx)
			if err != nil {
				continue
			}
			s := v.(room.Snapshot)
			line := fmt.Sprintf("%s, %s, %d bricks", s.Status, s.State, s.Bricks)
			if s.LatencyMS > 0 {
				line += fmt.Sprintf(", %dms", s.LatencyMS)
			}
			if line != last {
				log.Println(line)
				last = line
			}
		}
	}
}
