package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"qrmenu-be/internal/board"
	"qrmenu-be/internal/logger"
	"qrmenu-be/internal/order"

	"github.com/spf13/viper"
)

type options struct {
	server     string
	token      string
	role       string
	restaurant string
	interval   time.Duration
}

// parseOptions reads flags, falling back to BOARD_* environment variables.
func parseOptions(args []string) (options, error) {
	v := viper.New()
	v.SetEnvPrefix("BOARD")
	v.AutomaticEnv()
	v.SetDefault("SERVER", "http://localhost:8080")
	v.SetDefault("ROLE", "vendor")
	v.SetDefault("INTERVAL", board.DefaultPollInterval)

	var opts options
	fs := flag.NewFlagSet("board", flag.ContinueOnError)
	fs.StringVar(&opts.server, "server", v.GetString("SERVER"), "order service base URL")
	fs.StringVar(&opts.token, "token", v.GetString("TOKEN"), "bearer token")
	fs.StringVar(&opts.role, "role", v.GetString("ROLE"), "kitchen, vendor or admin")
	fs.StringVar(&opts.restaurant, "restaurant", v.GetString("RESTAURANT"), "restaurant id (kitchen and vendor)")
	fs.DurationVar(&opts.interval, "interval", v.GetDuration("INTERVAL"), "poll interval")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	logger.Init(os.Getenv("APP_ENV"), "warn")
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdin, os.Stdout); err != nil {
		log.Fatalf("board: %v", err)
	}
}

func run(ctx context.Context, opts options, in io.Reader, out io.Writer) error {
	caps, err := board.ForRole(opts.role, opts.restaurant)
	if err != nil {
		return err
	}

	b := board.New(board.NewClient(opts.server, opts.token), caps)
	b.SetInterval(opts.interval)

	var outMu sync.Mutex
	render := func() {
		outMu.Lock()
		defer outMu.Unlock()
		if err := board.Render(out, b, time.Now()); err != nil {
			fmt.Fprintf(out, "render failed: %v\n", err)
		}
	}
	say := func(format string, a ...any) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintf(out, format+"\n", a...)
	}
	b.OnChange(render)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var events chan order.Event
	if sub, err := board.NewSubscriber(opts.server, opts.token, caps); err == nil {
		events = make(chan order.Event, 64)
		go sub.Run(ctx, events)
	} else if !errors.Is(err, board.ErrPollOnly) {
		return err
	}

	done := make(chan struct{})
	go func() {
		b.Run(ctx, events)
		close(done)
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			<-done
			return nil
		case line, ok := <-lines:
			if !ok {
				cancel()
				<-done
				return nil
			}
			if line == "" {
				continue
			}

			cmd, err := board.ParseCommand(line)
			if err != nil {
				say("%v", err)
				continue
			}
			msg, err := b.Execute(ctx, cmd)
			if errors.Is(err, board.ErrQuit) {
				cancel()
				<-done
				return nil
			}
			if err != nil {
				say("%v", err)
				continue
			}
			say("%s", msg)
		}
	}
}
