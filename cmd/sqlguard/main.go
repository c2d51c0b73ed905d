package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/umputun/sqlguard/pkg/authorizer"
	"github.com/umputun/sqlguard/pkg/config"
	"github.com/umputun/sqlguard/pkg/journal"
	"github.com/umputun/sqlguard/pkg/runner"
)

type options struct {
	ProfileFile string   `short:"p" long:"profile" env:"SQLGUARD_PROFILE" description:"profile file" default:"sqlguard.yml"`
	Sessions    []string `short:"s" long:"session" description:"session name, all sessions if not set"`
	Concurrent  int      `short:"c" long:"concurrent" env:"SQLGUARD_CONCURRENT" description:"concurrent sessions" default:"1"`
	Journal     string   `short:"j" long:"journal" env:"SQLGUARD_JOURNAL" description:"journal database file"`
	Mode        string   `short:"m" long:"mode" description:"default permission mode for all sessions (read-write, read-only, no-access)"`

	Version bool `long:"version" description:"show version"`
	Dry     bool `long:"dry" description:"dry run, authorize statements without running them"`
	NoColor bool `long:"no-color" description:"disable colorized output"`
	Dbg     bool `long:"dbg" description:"debug mode"`
}

var revision = "latest"

func main() {
	fmt.Printf("sqlguard %s\n", revision)

	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		os.Exit(1)
	}
	if opts.Version {
		os.Exit(0) // already printed
	}
	setupLog(opts.Dbg)

	if err := run(opts); err != nil {
		if opts.Dbg {
			log.Panicf("[ERROR] %v", err)
		}
		fmt.Printf("failed, %v\n", formatErrorString(err.Error()))
		os.Exit(1)
	}
}

func run(opts options) error {
	if opts.Dry {
		msg := "dry run - untrusted statements are authorized but not executed, setup sql still runs"
		if opts.NoColor {
			fmt.Println(msg)
		} else {
			fmt.Print(color.New(color.FgHiRed).SprintfFunc()("%s\n", msg))
		}
	}

	st := time.Now()
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	profileFile, err := expandPath(opts.ProfileFile)
	if err != nil {
		return fmt.Errorf("can't expand profile path %q: %w", opts.ProfileFile, err)
	}
	prof, err := config.Load(profileFile)
	if err != nil {
		return fmt.Errorf("can't load profile %q: %w", profileFile, err)
	}
	sessions, err := prof.Select(opts.Sessions)
	if err != nil {
		return fmt.Errorf("can't select sessions: %w", err)
	}
	if opts.Mode != "" {
		mode, e := authorizer.ParseMode(opts.Mode)
		if e != nil {
			return fmt.Errorf("can't parse mode: %w", e)
		}
		for i := range sessions {
			sessions[i].Mode = mode
		}
	}

	r := runner.Process{
		Concurrency: opts.Concurrent,
		Sessions:    sessions,
		RunID:       journal.NewRunID(),
		Out:         os.Stdout,
		Monochrome:  opts.NoColor,
		Dry:         opts.Dry,
		Notify: func(n runner.Notification) {
			log.Printf("[INFO] %s notification for session %q, database %s", n.Kind, n.Session, n.Database)
		},
	}

	if opts.Journal != "" {
		journalFile, e := expandPath(opts.Journal)
		if e != nil {
			return fmt.Errorf("can't expand journal path %q: %w", opts.Journal, e)
		}
		jr, e := journal.New(journalFile)
		if e != nil {
			return fmt.Errorf("can't open journal: %w", e)
		}
		defer func() {
			if e := jr.Close(); e != nil {
				log.Printf("[WARN] %v", e)
			}
		}()
		r.Journal = jr
		log.Printf("[INFO] journal %s, run %s", journalFile, r.RunID)
	}

	stats, err := r.Run(ctx)
	summary := fmt.Sprintf("sessions: %d, statements: %d, allowed: %d, denied: %d, failed: %d, notifications: %d, %v",
		stats.Sessions, stats.Statements, stats.Allowed, stats.Denied, stats.Failed, stats.Notifications,
		time.Since(st).Truncate(time.Millisecond))
	if opts.NoColor {
		fmt.Println(summary)
	} else {
		fmt.Print(color.New(color.FgHiWhite).SprintfFunc()("%s\n", summary))
	}
	return err
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		usr, err := user.Current()
		if err != nil {
			return "", err
		}
		return filepath.Join(usr.HomeDir, path[1:]), nil
	}
	return path, nil
}

// formatErrorString splits multi-error output, as it comes from sessions group, into lines.
// Only the outermost header is used, session errors may carry their own.
func formatErrorString(input string) string {
	headerRe := regexp.MustCompile(`^\s*(.*?\d+ error\(s\) occurred:)`)
	headerMatch := headerRe.FindStringSubmatch(input)
	if len(headerMatch) == 0 {
		return input
	}

	errorsRe := regexp.MustCompile(`\[\d+] {([^}]+)}`)
	errorsMatches := errorsRe.FindAllStringSubmatch(input, -1)

	formattedErrors := make([]string, 0, len(errorsMatches))
	for _, match := range errorsMatches {
		formattedErrors = append(formattedErrors, strings.TrimSpace(match[1]))
	}

	formattedString := fmt.Sprintf("%s\n", strings.TrimSpace(headerMatch[1]))
	for i, err := range formattedErrors {
		formattedString += fmt.Sprintf("   [%d] %s\n", i, err)
	}
	return formattedString
}

func setupLog(dbg bool) {
	logOpts := []lgr.Option{lgr.Out(io.Discard), lgr.Err(io.Discard)} // default to discard
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
