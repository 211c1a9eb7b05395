package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bornholm/uitester/internal/runner"
	"github.com/bornholm/uitester/internal/slogx"
	"github.com/bornholm/uitester/internal/task"
	"github.com/pkg/errors"
)

var (
	rawLogLevel  string        = slog.LevelInfo.String()
	serverURL    string        = ""
	deviceID     string        = ""
	suiteID      int           = -1
	pollInterval time.Duration = 5 * time.Second
	listOnly     bool          = false
	keepRunning  bool          = false
)

func init() {
	flag.StringVar(&rawLogLevel, "log-level", rawLogLevel, "logging level")
	flag.StringVar(&serverURL, "server-url", serverURL, "api url, for example http://localhost:3002/api")
	flag.StringVar(&deviceID, "device", deviceID, "serial of the device to run the suite on")
	flag.IntVar(&suiteID, "suite", suiteID, "id of the suite to run")
	flag.DurationVar(&pollInterval, "interval", pollInterval, "status polling interval")
	flag.BoolVar(&listOnly, "list", listOnly, "list the devices and suites then exit")
	flag.BoolVar(&keepRunning, "detach", keepRunning, "leave the task running when interrupted")
}

func main() {
	flag.Parse()

	if serverURL == "" {
		serverURL = os.Getenv("UITESTER_SERVER_URL")
	}

	if serverURL == "" {
		serverURL = "http://localhost:3002/api"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(rawLogLevel)); err != nil {
		slog.ErrorContext(ctx, "could not parse log level", slogx.Error(errors.WithStack(err)))
		os.Exit(1)
	}

	logger := slog.New(slogx.ContextHandler{
		Handler: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}),
	})

	slog.SetDefault(logger)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sig
		cancel()
	}()

	r, err := runner.New(serverURL,
		runner.WithLogger(logger),
		runner.WithPollInterval(pollInterval),
		runner.WithStopOnCancel(!keepRunning),
	)
	if err != nil {
		slog.ErrorContext(ctx, "could not create runner", slogx.Error(errors.WithStack(err)))
		os.Exit(1)
	}

	if listOnly {
		if err := list(ctx, r.Client()); err != nil {
			slog.ErrorContext(ctx, "could not list resources", slogx.Error(errors.WithStack(err)))
			os.Exit(1)
		}

		return
	}

	if deviceID == "" || suiteID < 0 {
		fmt.Fprintln(os.Stderr, "both -device and -suite are required")
		flag.Usage()
		os.Exit(2)
	}

	status, err := r.Run(ctx, deviceID, suiteID)
	if err != nil {
		slog.ErrorContext(ctx, "could not run suite", slogx.Error(errors.WithStack(err)))
		os.Exit(1)
	}

	fmt.Printf("%s\t%s\n", status.TaskID, status.Status)

	if status.ReportURL != "" {
		fmt.Printf("report: %s\n", status.ReportURL)
	}

	if status.State != task.StateSuccess {
		os.Exit(1)
	}
}

func list(ctx context.Context, client *runner.Client) error {
	devices, err := client.ListDevices(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	fmt.Println("devices:")
	for _, d := range devices {
		fmt.Printf("  %s\t%s\tagent %s\n", d.DeviceID, d.State, d.AgentVersion)
	}

	suites, err := client.ListSuites(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	fmt.Println("suites:")
	for _, s := range suites {
		fmt.Printf("  %d\t%s\n", s.ID, s.RelPath)
	}

	return nil
}
