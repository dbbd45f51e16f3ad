// Package main implements the job-runner CLI tool for invoking the scheduled
// jobs directly, bypassing the AWS Lambda shim.
//
// This tool is intended for local development, manual backfills, and
// operational debugging. It builds a scheduler.JobPayload and hands it to the
// same Dispatcher the scheduler Lambda uses.
//
// Usage:
//
//	go run ./cmd/tools/job-runner --task=broadcast_frost
//	go run ./cmd/tools/job-runner --task=broadcast_frost --reference-time=2024-01-05T17:30:00Z
//	go run ./cmd/tools/job-runner --task=send_reminders --sms=log
//	go run ./cmd/tools/job-runner --dry-run --task=refresh_weather
//	go run ./cmd/tools/job-runner --list
//
// Configuration is read the same way as the services (environment plus an
// optional .env file). With --sms=log the messages are written to the log
// instead of the SQS outbox, so a run can be inspected without texting anyone.
// Note that the advisory log still records them.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"agriweather/internal/config"
	"agriweather/internal/db"
	"agriweather/internal/geopoints"
	"agriweather/internal/notifications"
	"agriweather/internal/scheduler"
	"agriweather/internal/types"
)

// validTasks is the exhaustive set of TaskType values the scheduler supports.
var validTasks = map[scheduler.TaskType]string{
	scheduler.TaskBroadcastFrost: "Send the nightly frost advisory SMS to farm owners",
	scheduler.TaskRefreshWeather: "Refresh the API forecast cache for every located farm",
	scheduler.TaskSendReminders:  "Remind users to finish their farm registration",
}

// SMS delivery modes.
const (
	smsQueue = "sqs"
	smsLog   = "log"
)

type options struct {
	list    bool
	dryRun  bool
	sms     string
	payload scheduler.JobPayload
}

// errHelp is returned by parseArgs when usage has already been printed.
var errHelp = errors.New("help requested")

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, errHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
		printAvailableTasks(os.Stderr)
		os.Exit(1)
	}

	if opts.list {
		printAvailableTasks(os.Stderr)
		return
	}
	if opts.dryRun {
		if err := printPayload(os.Stdout, opts.payload); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	summary, err := executeTask(ctx, opts, logger)
	if err != nil {
		logger.Error("task execution failed",
			"task", string(opts.payload.Task),
			"error", err,
		)
		os.Exit(1)
	}

	logger.Info("task execution succeeded",
		"task", string(opts.payload.Task),
		"run_date", summary.RunDate,
		"considered", summary.Considered,
		"done", summary.Done,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
}

// parseArgs parses the command line into options. Usage goes to out.
func parseArgs(args []string, out io.Writer) (options, error) {
	fs := flag.NewFlagSet("job-runner", flag.ContinueOnError)
	fs.SetOutput(out)

	task := fs.String("task", "", "Task type to execute (e.g., broadcast_frost)")
	refTime := fs.String("reference-time", "", "Override reference time (RFC3339, e.g., 2024-01-05T17:30:00Z)")
	list := fs.Bool("list", false, "List all available task types and exit")
	dryRun := fs.Bool("dry-run", false, "Print the JSON payload without executing")
	sms := fs.String("sms", smsQueue, "Where SMS messages go: sqs or log")

	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: job-runner [flags]\n\n")
		fmt.Fprintf(out, "Invoke scheduled jobs directly, bypassing Lambda.\n\n")
		fmt.Fprintf(out, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return options{}, errHelp
		}
		return options{}, err
	}

	opts := options{list: *list, dryRun: *dryRun, sms: *sms}
	if opts.list {
		return opts, nil
	}

	if *task == "" {
		return options{}, errors.New("--task is required")
	}
	taskType := scheduler.TaskType(*task)
	if _, ok := validTasks[taskType]; !ok {
		return options{}, fmt.Errorf("unknown task type %q", *task)
	}
	opts.payload.Task = taskType

	if *refTime != "" {
		t, err := time.Parse(time.RFC3339, *refTime)
		if err != nil {
			return options{}, fmt.Errorf("invalid --reference-time %q (expected RFC3339): %w", *refTime, err)
		}
		opts.payload.ReferenceTime = &t
	}

	if opts.sms != smsQueue && opts.sms != smsLog {
		return options{}, fmt.Errorf("invalid --sms %q: want %s or %s", opts.sms, smsQueue, smsLog)
	}
	return opts, nil
}

// executeTask wires the jobs the way the scheduler Lambda does and runs one.
func executeTask(ctx context.Context, opts options, logger *slog.Logger) (*scheduler.RunSummary, error) {
	cfg, err := config.LoadConfig(nil)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	awsCfg, err := cfg.AWS.LoadSDKConfig(ctx)
	if err != nil {
		return nil, err
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	defer pool.Close()
	logger.Info("database connection established")

	var outbox scheduler.SMSPublisher = logOutbox{logger: logger}
	if opts.sms == smsQueue {
		outbox = notifications.NewOutbox(sqs.NewFromConfig(awsCfg), cfg.AWS.SMSQueueURL, types.RealClock{}, logger)
	}

	jobs, err := scheduler.BuildJobs(cfg, scheduler.Deps{
		DB:      pool,
		Points:  geopoints.NewSourceFromConfig(cfg, awsCfg, logger),
		Outbox:  outbox,
		Metrics: notifications.NopMetrics{},
		Clock:   types.RealClock{},
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	ctx = types.WithRequestID(ctx, "job-runner-"+uuid.NewString())
	return scheduler.NewDispatcher(jobs, types.RealClock{}, logger).Handle(ctx, opts.payload)
}

// logOutbox writes messages to the log instead of the SMS outbox.
type logOutbox struct {
	logger *slog.Logger
}

func (o logOutbox) Publish(ctx context.Context, msg notifications.SMSMessage) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	o.logger.InfoContext(ctx, "sms (not sent)",
		"id", msg.ID,
		"kind", string(msg.Kind),
		"user_id", msg.UserID,
		"farm_id", msg.FarmID,
		"body", msg.Body,
	)
	return msg.ID, nil
}

// printAvailableTasks prints all valid task types and their descriptions,
// sorted alphabetically by task name.
func printAvailableTasks(out io.Writer) {
	fmt.Fprintf(out, "Available task types:\n\n")

	tasks := make([]scheduler.TaskType, 0, len(validTasks))
	for t := range validTasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return string(tasks[i]) < string(tasks[j])
	})

	maxLen := 0
	for _, t := range tasks {
		if len(string(t)) > maxLen {
			maxLen = len(string(t))
		}
	}

	for _, t := range tasks {
		fmt.Fprintf(out, "  %-*s  %s\n", maxLen, string(t), validTasks[t])
	}
	fmt.Fprintln(out)
}

// printPayload writes the payload as indented JSON, ready to paste into a
// manual Lambda invocation.
func printPayload(out io.Writer, payload scheduler.JobPayload) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
