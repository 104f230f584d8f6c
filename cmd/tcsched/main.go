package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tcsched/internal/config"
	"tcsched/internal/course"
	"tcsched/internal/ics"
	"tcsched/internal/invite"
	"tcsched/internal/jobs"
	appLog "tcsched/internal/log"
	"tcsched/internal/metrics"
	"tcsched/internal/model"
	"tcsched/internal/schedule"
	"tcsched/internal/teacher"
	"tcsched/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	envFile    string
	listen     string
	coursePath string
	n          int
}

func main() {
	flags := parseFlags()

	if err := config.LoadDotEnv(flags.envFile); err != nil {
		appLog.Error("failed to read env file", err, "env_file", flags.envFile)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv(nil)

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	if err := appLog.Init(appLog.Config{Env: conf.Env, Format: conf.Log.Format, Level: conf.Log.Level}); err != nil {
		appLog.Error("failed to initialize logger", err)
	}
	defer appLog.Sync()

	appLog.Info("tcsched starting", "version", "0.1.0")
	appLog.Info("effective config",
		"listen", conf.Listen,
		"web_root", conf.WebRoot,
		"env", conf.Env,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"teachers_mode", conf.Teachers.Mode,
		"teacher_entries", len(conf.Teachers.Entries),
		"candidates", conf.Scheduler.Candidates,
		"strict", conf.Scheduler.Strict,
	)

	dir, err := buildDirectory(conf)
	if err != nil {
		appLog.Error("failed to load teachers", err, "mode", conf.Teachers.Mode)
		os.Exit(1)
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if flags.coursePath != "" {
		if err := runOnce(ctx, conf, dir, flags.coursePath, flags.n); err != nil {
			appLog.Error("one-shot schedule failed", err, "course", flags.coursePath)
			os.Exit(1)
		}
		return
	}

	m := metrics.New()
	cache := teacher.NewCache(dir, conf.Teachers.CacheTTL, teacher.WithObserver(m.RecordCacheLookup))

	runner, err := jobs.New(conf.RefreshCron, cache)
	if err != nil {
		appLog.Error("refresh job disabled", err)
	} else {
		runner.Start()
		defer func() {
			<-runner.Stop().Done()
		}()
	}

	if err := web.StartServer(ctx, conf, cache, m); err != nil {
		appLog.Error("HTTP server failed", err, "listen", conf.Listen)
		cancel()
	}

	appLog.Info("tcsched exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/tcsched/config.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env-file", ".env", "Optional .env file applied before the config")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.coursePath, "course", "", "Schedule this course request JSON against every teacher, print the result and exit")
	flag.IntVar(&cfg.n, "n", 3, "Schedules per teacher in one-shot mode")

	flag.Parse()

	return cfg
}

func buildDirectory(conf *config.Config) (teacher.Directory, error) {
	switch conf.Teachers.Mode {
	case config.TeacherModeCalendar:
		f := ics.NewFetcher(conf.Teachers.CacheDir)
		return teacher.NewCalendarDirectory(conf.Teachers.Entries, f, conf.Timezone), nil
	default:
		d, err := teacher.NewMockDirectory(conf.Teachers.MockGlob, conf.Timezone)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

type onceSchedule struct {
	Dates   []model.DateEntry `json:"dates"`
	Invites []invite.Pair     `json:"invites"`
}

type onceResult struct {
	TeacherID string         `json:"teacherId"`
	Name      string         `json:"name"`
	Schedules []onceSchedule `json:"schedules"`
}

// runOnce schedules one course file against all known teachers and prints
// the feasible ones as JSON on stdout.
func runOnce(ctx context.Context, conf *config.Config, dir teacher.Directory, path string, n int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	c, err := course.Decode(data)
	if err != nil {
		return err
	}
	teachers, err := dir.All(ctx)
	if err != nil {
		return err
	}

	seed := conf.Scheduler.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	out := make([]onceResult, 0, len(teachers))
	for i, t := range teachers {
		av, err := t.Availability(ctx, c.Avail.Start(), c.Avail.End())
		if err != nil {
			appLog.Warn("teacher skipped", "teacher", t.ID, "reason", err.Error())
			continue
		}
		sch := schedule.NewScheduler(c, av, schedule.Options{
			Candidates:  conf.Scheduler.Candidates,
			Multipliers: conf.Scheduler.Multipliers,
			Rand:        rand.New(rand.NewSource(seed + int64(i))),
			Strict:      conf.Scheduler.Strict,
			Invite: invite.Params{
				Organizer:     conf.Invite.Organizer,
				OrganizerName: conf.Invite.OrganizerName,
				Participants:  append([]string{t.Email}, conf.Invite.Participants...),
				Location:      conf.Invite.Location,
			},
		})
		if sch == nil {
			continue
		}
		cands, err := sch.Schedules(n)
		if err != nil {
			return fmt.Errorf("teacher %s: %w", t.ID, err)
		}
		res := onceResult{TeacherID: t.ID, Name: t.Name()}
		for _, cand := range cands {
			pairs, err := cand.Invites()
			if err != nil {
				return fmt.Errorf("teacher %s: %w", t.ID, err)
			}
			res.Schedules = append(res.Schedules, onceSchedule{Dates: model.Dates(cand.Intervals()), Invites: pairs})
		}
		if len(res.Schedules) > 0 {
			out = append(out, res)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
