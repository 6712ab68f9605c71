package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"strand"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch a live runtime",
	Long:  `Run a synthetic workload and render the scheduler's counters live in the terminal`,
	RunE:  runMonitor,
}

func init() {
	monitorCmd.Flags().Int("workers", 0, "scheduler workers (0 = from config)")
	monitorCmd.Flags().Int("rate", 200, "synthetic tasks spawned per second")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	workers, _ := cmd.Flags().GetInt("workers")
	rate, _ := cmd.Flags().GetInt("rate")
	if workers == 0 {
		workers = cfg.Runtime.Workers
	}

	rt, err := strand.New(strand.Config{
		Workers:                workers,
		BlockingWorkers:        cfg.Runtime.BlockingWorkers,
		DefaultChannelCapacity: cfg.Runtime.ChannelCapacity,
		Seed:                   cfg.Runtime.Seed,
	})
	if err != nil {
		return err
	}
	defer rt.Shutdown()

	stop := make(chan struct{})
	defer close(stop)
	go syntheticLoad(rt, rate, stop)

	m := monitorModel{rt: rt, start: time.Now()}
	_, err = tea.NewProgram(m).Run()
	return err
}

// syntheticLoad keeps the scheduler busy: a mix of trivial tasks, short
// sleeps, and channel ping-pong, spawned at roughly the requested rate.
func syntheticLoad(rt *strand.Runtime, perSecond int, stop <-chan struct{}) {
	if perSecond <= 0 {
		perSecond = 1
	}
	interval := time.Second / time.Duration(perSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tx, rx := strand.NewChannelDefault[int](rt)
	i := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		i++
		switch i % 3 {
		case 0:
			rt.Spawn(strand.Run(func() (any, error) { return nil, nil }))
		case 1:
			rt.Spawn(strand.Sleep(time.Duration(i%50) * time.Millisecond))
		default:
			rt.Spawn(tx.Send(i))
			rt.Spawn(rx.Recv())
		}
	}
}

type statsTickMsg time.Time

type monitorModel struct {
	rt    *strand.Runtime
	start time.Time
	stats strand.Stats
}

func statsTick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return statsTickMsg(t)
	})
}

func (m monitorModel) Init() tea.Cmd {
	return statsTick()
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case statsTickMsg:
		m.stats = m.rt.Stats()
		return m, statsTick()
	}
	return m, nil
}

var (
	monitorTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	monitorLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(18)
	monitorValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	monitorBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 2)
)

func (m monitorModel) View() string {
	s := m.stats
	row := func(label string, value any) string {
		return monitorLabelStyle.Render(label) + monitorValueStyle.Render(fmt.Sprint(value)) + "\n"
	}
	body := monitorTitleStyle.Render("strand runtime") + "\n\n" +
		row("uptime", time.Since(m.start).Round(time.Second)) +
		row("workers", s.Workers) +
		row("live tasks", s.Live) +
		row("spawned", s.Spawned) +
		row("completed", s.Completed) +
		row("cancelled", s.Cancelled) +
		row("faulted", s.Faulted) +
		row("polls", s.Polls) +
		row("wakes", s.Wakes) +
		row("steals", s.Steals) +
		row("parks", s.Parks) +
		row("timers pending", s.TimersPending) +
		row("injector depth", s.InjectorDepth) +
		"\npress q to quit"
	return monitorBoxStyle.Render(body)
}
