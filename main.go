package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/Fishwaldo/GnssTester/internal"
	"github.com/Fishwaldo/GnssTester/internal/config"
	_ "github.com/Fishwaldo/GnssTester/internal/mqtt"
	_ "github.com/Fishwaldo/GnssTester/internal/natsconnection"
	"github.com/Fishwaldo/GnssTester/internal/session"
	"github.com/Fishwaldo/GnssTester/internal/taskmanager"
	_ "github.com/Fishwaldo/GnssTester/internal/web"
	"github.com/blang/semver/v4"
	"github.com/bombsimon/logrusr/v2"
	"github.com/go-logr/logr"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	VersionSummary = "0.0.0"
)

func versionString() string {
	summary := VersionSummary
	if summary == "0.0.0" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			summary = info.Main.Version
		}
	}
	version, err := semver.ParseTolerant(summary)
	if err != nil {
		version, _ = semver.Make("0.0.0")
	}
	/* construct a version */
	versionstring := version.FinalizeVersion()
	if len(version.Pre) > 0 {
		versionstring = fmt.Sprintf("%s-%s", versionstring, version.Pre[0].VersionStr)
		if len(version.Build) > 0 {
			versionstring = fmt.Sprintf("%s-%s", versionstring, version.Build[0])
		}
	}
	return versionstring
}

func newLogger(level, format string) logr.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	switch level {
	case "trace":
		l.SetLevel(logrus.TraceLevel)
	case "debug":
		l.SetLevel(logrus.DebugLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logrusr.New(l)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := config.Flags("gnsstester")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return session.ExitOK
		}
		return session.ExitFailure
	}
	if showVersion, _ := fs.GetBool("version"); showVersion {
		fmt.Println(versionString())
		return session.ExitOK
	}
	fmt.Fprintf(os.Stderr, "Starting GnssTester Version %s\n", versionString())

	v := viper.GetViper()
	if err := config.BindFlags(v, fs); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return session.ExitFailure
	}
	configFile, _ := fs.GetString("config-file")
	if err := config.ReadFile(v, configFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: can't read config file: %s\n", err)
		return session.ExitFailure
	}

	logger := newLogger(v.GetString("log.level"), v.GetString("log.format"))
	if used := v.ConfigFileUsed(); used != "" {
		logger.Info("Loaded Config File", "file", used)
	}
	cfg, err := config.Load(v)
	if err != nil {
		logger.Error(err, "Invalid Configuration")
		return session.ExitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	taskmanager.InitScheduler(logger.WithName("TaskManager"))
	internal.StartSinks(logger.WithName("Sinks"))
	defer internal.StopSinks()

	s := session.New(cfg, logger)
	s.OnFix = internal.PublishFix
	if err := taskmanager.ScheduleProgress(ctx, s.Progress, v.GetDuration("progress.interval"), logger.WithName("Progress")); err != nil {
		logger.Error(err, "Can't Initilize Scheduler for Progress")
	}
	taskmanager.StartScheduler()
	defer taskmanager.StopScheduler()

	return s.Run(ctx)
}
