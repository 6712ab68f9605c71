package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"strand"
)

var benchCmd = &cobra.Command{
	Use:   "bench [flags]",
	Short: "Run scheduler benchmarks",
	Long:  `Drive the runtime through spawn, channel, and timer workloads and report throughput plus scheduler counters`,
	RunE:  runBench,
}

func init() {
	benchCmd.Flags().String("scenario", "all", "workload to run (spawn|channel|timer|all)")
	benchCmd.Flags().Int("tasks", 100000, "tasks per scenario")
	benchCmd.Flags().Int("workers", 0, "scheduler workers (0 = from config)")
	benchCmd.Flags().Int("producers", 8, "concurrent producers for the channel scenario")
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	tracer, err := tracerFromConfig(cfg.Trace)
	if err != nil {
		return err
	}

	scenario, _ := cmd.Flags().GetString("scenario")
	tasks, _ := cmd.Flags().GetInt("tasks")
	workers, _ := cmd.Flags().GetInt("workers")
	producers, _ := cmd.Flags().GetInt("producers")
	if workers == 0 {
		workers = cfg.Runtime.Workers
	}

	rt, err := strand.New(strand.Config{
		Workers:                workers,
		BlockingWorkers:        cfg.Runtime.BlockingWorkers,
		DefaultChannelCapacity: cfg.Runtime.ChannelCapacity,
		Seed:                   cfg.Runtime.Seed,
		Tracer:                 tracer,
	})
	if err != nil {
		return err
	}
	defer rt.Shutdown()

	run := func(name string, fn func() error) error {
		start := time.Now()
		if err := fn(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		elapsed := time.Since(start)
		rate := float64(tasks) / elapsed.Seconds()
		color.New(color.FgGreen, color.Bold).Printf("%-8s", name)
		fmt.Printf(" %8d tasks in %10v  (%.0f tasks/s)\n", tasks, elapsed.Round(time.Microsecond), rate)
		return nil
	}

	switch scenario {
	case "spawn":
		err = run("spawn", func() error { return benchSpawn(rt, tasks) })
	case "channel":
		err = run("channel", func() error { return benchChannel(rt, tasks, producers) })
	case "timer":
		err = run("timer", func() error { return benchTimer(rt, tasks) })
	case "all":
		for _, s := range []struct {
			name string
			fn   func() error
		}{
			{"spawn", func() error { return benchSpawn(rt, tasks) }},
			{"channel", func() error { return benchChannel(rt, tasks, producers) }},
			{"timer", func() error { return benchTimer(rt, tasks) }},
		} {
			if err = run(s.name, s.fn); err != nil {
				break
			}
		}
	default:
		return fmt.Errorf("unknown scenario: %s", scenario)
	}
	if err != nil {
		return err
	}

	printStats(rt.Stats())
	return nil
}

// benchSpawn measures bare spawn/complete throughput.
func benchSpawn(rt *strand.Runtime, tasks int) error {
	handles := make([]*strand.Handle, 0, tasks)
	for i := 0; i < tasks; i++ {
		handles = append(handles, rt.Spawn(strand.Run(func() (any, error) {
			return nil, nil
		})))
	}
	for _, h := range handles {
		if _, err := h.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// benchChannel pushes tasks values through one bounded channel from several
// concurrent producer goroutines while a consumer task drains it.
func benchChannel(rt *strand.Runtime, tasks, producers int) error {
	tx, rx := strand.NewChannelDefault[int](rt)

	var consumed int
	var pending strand.Future
	consumer := rt.Spawn(strand.FutureFunc(func(cx *strand.Context) strand.Outcome {
		for consumed < tasks {
			if pending == nil {
				pending = rx.Recv()
			}
			out := pending.Poll(cx)
			if !out.IsReady() {
				return strand.Pending()
			}
			if out.Err() != nil {
				return strand.Fail(out.Err())
			}
			pending = nil
			consumed++
		}
		return strand.Ready(consumed)
	}))

	var g errgroup.Group
	per := tasks / producers
	for p := 0; p < producers; p++ {
		n := per
		if p == producers-1 {
			n = tasks - per*(producers-1)
		}
		g.Go(func() error {
			for i := 0; i < n; i++ {
				for {
					err := tx.TrySend(i)
					if err == nil {
						break
					}
					if err != strand.ErrChannelFull {
						return err
					}
					time.Sleep(time.Microsecond)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if _, err := consumer.Wait(); err != nil {
		return err
	}
	return nil
}

// benchTimer schedules tasks short sleeps and waits them all out.
func benchTimer(rt *strand.Runtime, tasks int) error {
	handles := make([]*strand.Handle, 0, tasks)
	for i := 0; i < tasks; i++ {
		handles = append(handles, rt.Spawn(strand.Sleep(time.Duration(i%10)*time.Millisecond)))
	}
	for _, h := range handles {
		if _, err := h.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func printStats(s strand.Stats) {
	header := color.New(color.FgCyan, color.Bold)
	header.Println("\nscheduler counters")
	fmt.Printf("  spawned   %d\n", s.Spawned)
	fmt.Printf("  completed %d\n", s.Completed)
	fmt.Printf("  polls     %d\n", s.Polls)
	fmt.Printf("  wakes     %d\n", s.Wakes)
	fmt.Printf("  steals    %d\n", s.Steals)
	fmt.Printf("  parks     %d\n", s.Parks)
	fmt.Printf("  timers    %d scheduled, %d fired\n", s.TimersScheduled, s.TimersFired)
}
