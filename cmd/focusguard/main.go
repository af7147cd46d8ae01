package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/camera"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/config"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/monitor"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/notify"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/schedule"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/speech"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/usage"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/vision"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/webui"
)

var rootCmd = &cobra.Command{
	Use:   "focusguard",
	Short: "focusguard - homework focus monitor for kids",
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Start monitoring (camera + vision model + alerts)",
	RunE:  runWatch,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show focusguard status",
	RunE:  runStatus,
}

var activateCmd = &cobra.Command{
	Use:   "activate <code>",
	Short: "Unlock unlimited monitoring with an activation code",
	Args:  cobra.ExactArgs(1),
	RunE:  runActivate,
}

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Manage parent notifications",
	RunE:  runNotify,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage homework time windows",
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured windows",
	RunE:  runScheduleList,
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a window (six-field cron expression)",
	RunE:  runScheduleAdd,
}

var scheduleRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a window",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleRemove,
}

var (
	uiFlag         bool
	scheduledFlag  bool
	notifyTestFlag bool
	windowNameFlag string
	windowCronFlag string
	windowMinsFlag int
)

func init() {
	watchCmd.Flags().BoolVar(&uiFlag, "ui", false, "Serve the web dashboard")
	watchCmd.Flags().BoolVar(&scheduledFlag, "scheduled", false, "Run as a daemon honoring homework windows instead of starting now")
	notifyCmd.Flags().BoolVar(&notifyTestFlag, "test", false, "Send a test notification")
	scheduleAddCmd.Flags().StringVar(&windowNameFlag, "name", "homework", "Window name")
	scheduleAddCmd.Flags().StringVar(&windowCronFlag, "cron", "", "Cron expression with seconds, e.g. '0 0 19 * * MON-FRI'")
	scheduleAddCmd.Flags().IntVar(&windowMinsFlag, "duration", 40, "Session length in minutes")
	scheduleCmd.AddCommand(scheduleListCmd, scheduleAddCmd, scheduleRemoveCmd)
	rootCmd.AddCommand(watchCmd, onboardCmd, statusCmd, activateCmd, notifyCmd, scheduleCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// guardian holds the wired-up runtime pieces for the watch command.
type guardian struct {
	cfg     *config.Config
	session *monitor.Session
	guard   *usage.Guard
	fanout  *notify.Fanout
}

func buildGuardian() (*guardian, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	classifier, err := vision.NewClassifier(cfg.Provider)
	if err != nil {
		return nil, err
	}
	source, err := camera.NewSource(cfg.Camera)
	if err != nil {
		return nil, err
	}
	guard, err := usage.NewGuard(config.UsageStatePath(), cfg.Monitor.DailyLimitSeconds)
	if err != nil {
		return nil, fmt.Errorf("init usage guard: %w", err)
	}

	var fanout *notify.Fanout
	if cfg.Notify.Enabled {
		fanout = notify.FromConfig(cfg.Notify)
	}
	speaker := speech.NewSpeaker(cfg.Audio)

	session := monitor.NewSession(cfg.Monitor, source, classifier, guard, fanout, speaker, nil)
	return &guardian{cfg: cfg, session: session, guard: guard, fanout: fanout}, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	g, err := buildGuardian()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if uiFlag || g.cfg.WebUI.Enabled {
		server := webui.NewServer(g.cfg.WebUI, g.session, g.guard, g.fanout)
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("start web ui: %w", err)
		}
		defer func() { _ = server.Stop() }()
	}

	if scheduledFlag {
		svc := schedule.NewService(config.SchedulePath())
		svc.OnWindow = func(w schedule.Window) error {
			if err := g.session.Start(ctx); err != nil {
				return err
			}
			time.AfterFunc(time.Duration(w.DurationMinutes)*time.Minute, g.session.Stop)
			return nil
		}
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer svc.Stop()
		log.Printf("[focusguard] waiting for homework windows (Ctrl-C to quit)")
		<-ctx.Done()
		g.session.Stop()
		return nil
	}

	done := make(chan struct{})
	g.session.OnStopped = func(reason string) {
		if reason == monitor.ReasonDailyLimit && !uiFlag && !g.cfg.WebUI.Enabled {
			close(done)
		}
	}
	if err := g.session.Start(ctx); err != nil {
		return err
	}
	log.Printf("[focusguard] monitoring (Ctrl-C to quit)")

	select {
	case <-ctx.Done():
		g.session.Stop()
	case <-done:
		fmt.Println("Daily free limit reached. Run 'focusguard activate <code>' to go unlimited.")
	}
	return nil
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		data, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(cfgPath, data, 0644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your DashScope API key and camera source\n", cfgPath)
	fmt.Println("  2. Or set DASHSCOPE_API_KEY and FOCUSGUARD_SNAPSHOT_URL environment variables")
	fmt.Println("  3. Run 'focusguard watch --ui' to start monitoring")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Provider: %s\n", providerDisplay(cfg.Provider.Type))
	fmt.Printf("Model: %s\n", cfg.Provider.Model)
	if key := cfg.Provider.APIKey; key != "" && len(key) > 8 {
		fmt.Printf("API Key: %s...%s\n", key[:4], key[len(key)-4:])
	} else if cfg.Provider.APIKey != "" {
		fmt.Println("API Key: set")
	} else {
		fmt.Println("API Key: not set")
	}
	if cfg.Camera.SnapshotURL != "" {
		fmt.Printf("Camera: snapshot %s\n", cfg.Camera.SnapshotURL)
	} else if cfg.Camera.Command != "" {
		fmt.Printf("Camera: command %s\n", cfg.Camera.Command)
	} else {
		fmt.Println("Camera: not configured")
	}
	fmt.Printf("Notify: enabled=%v wxpusher=%v telegram=%v\n",
		cfg.Notify.Enabled,
		cfg.Notify.WxPusher.AppToken != "",
		cfg.Notify.Telegram.Token != "")

	guard, err := usage.NewGuard(config.UsageStatePath(), cfg.Monitor.DailyLimitSeconds)
	if err != nil {
		fmt.Printf("Usage: error (%v)\n", err)
		return nil
	}
	if guard.Pro() {
		fmt.Println("Tier: pro (unlimited)")
	} else {
		fmt.Printf("Tier: free, %ds used / %ds left today\n", guard.Used(), guard.Remaining())
	}
	return nil
}

func runActivate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	guard, err := usage.NewGuard(config.UsageStatePath(), cfg.Monitor.DailyLimitSeconds)
	if err != nil {
		return fmt.Errorf("init usage guard: %w", err)
	}
	if !guard.Activate(args[0]) {
		return fmt.Errorf("invalid activation code")
	}
	fmt.Println("Pro activated. Monitoring is now unlimited.")
	return nil
}

func runNotify(cmd *cobra.Command, args []string) error {
	if !notifyTestFlag {
		return cmd.Help()
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fanout := notify.FromConfig(cfg.Notify)
	if !fanout.Configured() {
		return fmt.Errorf("no notification channel configured (set wxpusher or telegram in %s)", config.ConfigPath())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if !fanout.Send(ctx, "Focus Guardian test notification. If you can read this, alerts are working.") {
		return fmt.Errorf("test notification failed on all channels")
	}
	fmt.Println("Test notification delivered.")
	return nil
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	svc := schedule.NewService(config.SchedulePath())
	if err := svc.Start(context.Background()); err != nil {
		return err
	}
	defer svc.Stop()
	windows := svc.ListWindows()
	if len(windows) == 0 {
		fmt.Println("No homework windows configured.")
		return nil
	}
	for _, w := range windows {
		state := "enabled"
		if !w.Enabled {
			state = "disabled"
		}
		fmt.Printf("%s  %-12s  %-20s  %dm  %s\n", w.ID, w.Name, w.Expr, w.DurationMinutes, state)
	}
	return nil
}

func runScheduleAdd(cmd *cobra.Command, args []string) error {
	if windowCronFlag == "" {
		return fmt.Errorf("--cron is required, e.g. --cron '0 0 19 * * MON-FRI'")
	}
	svc := schedule.NewService(config.SchedulePath())
	if err := svc.Start(context.Background()); err != nil {
		return err
	}
	defer svc.Stop()
	w, err := svc.AddWindow(windowNameFlag, windowCronFlag, windowMinsFlag)
	if err != nil {
		return err
	}
	fmt.Printf("Added window %s (%s, %dm)\n", w.ID, w.Expr, w.DurationMinutes)
	return nil
}

func runScheduleRemove(cmd *cobra.Command, args []string) error {
	svc := schedule.NewService(config.SchedulePath())
	if err := svc.Start(context.Background()); err != nil {
		return err
	}
	defer svc.Stop()
	if !svc.RemoveWindow(args[0]) {
		return fmt.Errorf("window %s not found", args[0])
	}
	fmt.Println("Removed.")
	return nil
}

func providerDisplay(t string) string {
	if t == "" {
		return "dashscope (default)"
	}
	return t
}
