package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guseggert/watchdog/watchdog"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	serveFlags := []cli.Flag{
		&cli.StringFlag{
			Name:  "listen-addr",
			Usage: "The address for the control server to listen on.",
			Value: watchdog.DefaultListenAddr,
		},
		&cli.DurationFlag{
			Name:  "ping-interval",
			Usage: "Interval between self-pings. Defaults to half of WATCHDOG_USEC, or 10s.",
		},
		&cli.DurationFlag{
			Name:  "ping-timeout",
			Usage: "Timeout for a single self-ping.",
			Value: watchdog.DefaultPingTimeout,
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Minimum log level. One of [debug,info,warn,error].",
			Value: "info",
		},
	}

	app := &cli.App{
		Name:   "watchdog",
		Usage:  "HTTP control plane that feeds the supervisor's watchdog",
		Flags:  serveFlags,
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the control server and self-ping loop (default).",
				Flags:  serveFlags,
				Action: serve,
			},
			{
				Name:      "ctl",
				Usage:     "Send a control operation to a running watchdog.",
				ArgsUsage: "<ping|shutdown|restart|enableNotify|disableNotify>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "The address of the watchdog's control server.",
						Value: "localhost:9080",
					},
					&cli.IntFlag{
						Name:  "retries",
						Usage: "How many times to retry a failed call.",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Timeout for the call, retries included.",
						Value: watchdog.DefaultClientTimeout,
					},
					&cli.DurationFlag{
						Name:  "wait",
						Usage: "If set, first wait up to this long for the watchdog to answer a ping.",
					},
				},
				Action: ctl,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func serve(ctx *cli.Context) error {
	level, err := zapcore.ParseLevel(ctx.String("log-level"))
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	w, err := watchdog.New(
		watchdog.WithLogLevel(level),
		watchdog.WithListenAddr(ctx.String("listen-addr")),
		watchdog.WithPingInterval(ctx.Duration("ping-interval")),
		watchdog.WithPingTimeout(ctx.Duration("ping-timeout")),
	)
	if err != nil {
		return fmt.Errorf("building watchdog: %w", err)
	}

	runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := w.Run(runCtx)
	if err != nil {
		return cli.Exit(err.Error(), int(code))
	}
	if code != watchdog.ExitOK {
		return cli.Exit("", int(code))
	}
	return nil
}

func ctl(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("expected exactly one operation, got %d arguments", ctx.NArg())
	}
	op, err := watchdog.ParseOperation(ctx.Args().First())
	if err != nil {
		return err
	}

	logger, err := zap.NewDevelopment(zap.IncreaseLevel(zapcore.InfoLevel))
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	client, err := watchdog.NewClient(
		logger.Sugar(),
		ctx.String("addr"),
		watchdog.WithClientRetryMax(ctx.Int("retries")),
		watchdog.WithClientTimeout(ctx.Duration("timeout")),
	)
	if err != nil {
		return fmt.Errorf("building client: %w", err)
	}

	if wait := ctx.Duration("wait"); wait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx.Context, wait)
		defer cancel()
		if err := client.WaitForServer(waitCtx); err != nil {
			return fmt.Errorf("waiting for watchdog: %w", err)
		}
	}

	start := time.Now()
	if err := client.Do(ctx.Context, op); err != nil {
		return err
	}
	fmt.Printf("%s: %s (%s)\n", op, op.Reply(), time.Since(start).Round(time.Millisecond))
	return nil
}
