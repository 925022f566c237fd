package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"ocular/internal/api"
	"ocular/pkg/align"
	"ocular/pkg/audio"
	"ocular/pkg/button"
	"ocular/pkg/camera"
	"ocular/pkg/config"
	"ocular/pkg/core"
	"ocular/pkg/db"
	"ocular/pkg/db/maintenance"
	"ocular/pkg/device"
	"ocular/pkg/emergency"
	"ocular/pkg/geo"
	"ocular/pkg/haptic"
	"ocular/pkg/location"
	"ocular/pkg/logging"
	"ocular/pkg/maps"
	"ocular/pkg/navigation"
	"ocular/pkg/notify"
	"ocular/pkg/probe"
	"ocular/pkg/remote"
	"ocular/pkg/request"
	"ocular/pkg/speech"
	"ocular/pkg/store"
	"ocular/pkg/tracker"
	"ocular/pkg/version"
	"ocular/pkg/vision"
)

const defaultConfigPath = "configs/ocular.yaml"

var (
	configPath = flag.String("config", defaultConfigPath, "Path to the config file")
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
)

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Device failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	logDir := filepath.Dir(appCfg.Log.Requests.Path)
	speech.SetLogPath(filepath.Join(logDir, "speech.log"))

	slog.Info("Ocular Started", "version", version.Version)

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	if err := maintenance.Run(ctx, st, dbConn, appCfg.DB.Contacts); err != nil {
		slog.Error("Maintenance tasks failed", "error", err)
	}

	prov := config.NewProvider(appCfg, st)
	countBoot(ctx, st)

	tr := tracker.New()
	reqClient := request.New(appCfg.Request, st, tr)

	state := device.New(prov.Language(ctx))
	defer state.Close()
	if dc, ok := core.RestoreContext(ctx, st, state); ok {
		slog.Info("Device context restored", "language", dc.Language, "last_position", dc.LastPosition)
	}

	dev, err := openDevices(ctx, prov)
	if err != nil {
		return fmt.Errorf("failed to open devices: %w", err)
	}
	defer dev.Close()
	restoreVolume(ctx, st, dev.speaker)

	prompts := audio.NewPrompts(appCfg.Audio.AssetsDir, dev.player)
	motor := haptic.NewWorker(dev.motor, int(appCfg.Align.MaxIntensity))
	defer motor.Close()
	cam := camera.NewWorker(dev.capturer, 1)
	defer cam.Close()

	rs, err := initRemote(ctx, appCfg, st, tr)
	if err != nil {
		return err
	}
	talker := initTalker(appCfg, reqClient, dev.player, state)
	listener := initListener(appCfg, reqClient, dev, talker, prompts, state)

	monitor := emergency.NewMonitor(emergency.Options{
		Provider:  prov,
		State:     state,
		Remote:    rs,
		Notifier:  initNotifier(appCfg, reqClient),
		Incidents: st,
		Prompts:   prompts,
		Speaker:   talker,
	})
	watchdog := emergency.NewWatchdog(prov, dev.compass, state, monitor, prompts, nil)
	publisher := location.NewPublisher(prov, state, rs, nil)

	intr := button.NewInterrupt()
	aligner := align.NewController(prov, dev.compass, motor, intr, prompts, state)
	analyser := vision.NewAnalyser(cam, initDescriber(ctx, appCfg, logDir, tr), listener, prompts, talker, state, appCfg.Vision.Prompt)
	navigator := navigation.NewNavigator(navigation.Options{
		Provider:  prov,
		State:     state,
		Position:  dev.position,
		Routes:    maps.NewGoogle(reqClient, appCfg.Maps),
		Aligner:   aligner,
		Interrupt: intr,
		Listener:  listener,
		Speaker:   talker,
		Prompts:   prompts,
		Analyser:  analyser,
		Trips:     st,
	})
	dispatcher := button.NewDispatcher(button.Options{
		Provider:    prov,
		Emergency:   dev.emergency,
		Control:     dev.control,
		Emergencies: monitor,
		Listener:    listener,
		Analyser:    analyser,
		Navigator:   navigator,
		Prompts:     prompts,
		Interrupt:   intr,
		OnRestart:   motor.Stop,
	})

	trail := geo.NewTrail(600, 2)
	sched := setupScheduler(prov, state, dev, trail, st, monitor, watchdog, publisher)
	go sched.Start(ctx)

	// Startup Probes
	probes := []probe.Probe{
		probe.Compass(dev.compass, dev.walker == nil),
		probe.Position(dev.position),
		probe.Remote(rs.Get),
		probe.Prompts(prompts.Validate),
	}
	results := probe.Run(ctx, probes)
	if err := probe.AnalyzeResults(results); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	prompts.PromptAsync(audio.Booted)
	go dispatcher.Run(ctx)

	var volume api.VolumeControl
	if dev.speaker != nil {
		volume = dev.speaker
	}
	handlers := api.Handlers{
		Status:  api.NewStatusHandler(state),
		Config:  api.NewConfigHandler(st, prov, state),
		Stats:   api.NewStatsHandler(tr),
		History: api.NewHistoryHandler(st, st),
		Route:   api.NewRouteHandler(state, trail),
		Audio:   api.NewAudioHandler(volume, st),
		Mock:    api.NewMockHandler(dev.virtualControl, dev.virtualEmergency, dev.listener, dev.walker),
	}
	return runServer(ctx, appCfg, handlers)
}

func initDB(appCfg *config.Config) (*db.DB, *store.SQLiteStore, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

func countBoot(ctx context.Context, st store.StateStore) {
	n := 0
	if v, ok := st.GetState(ctx, config.KeyBootCount); ok {
		n, _ = strconv.Atoi(v)
	}
	n++
	if err := st.SetState(ctx, config.KeyBootCount, strconv.Itoa(n)); err != nil {
		slog.Warn("Failed to save boot count", "error", err)
	}
	slog.Info("Boot", "count", n)
}

func restoreVolume(ctx context.Context, st store.StateStore, sp *audio.Speaker) {
	if sp == nil {
		return
	}
	volStr, _ := st.GetState(ctx, "volume")
	if volStr == "" {
		return
	}
	var val float64
	if _, err := fmt.Sscanf(volStr, "%f", &val); err == nil {
		sp.SetVolume(val)
	}
}

func initRemote(ctx context.Context, cfg *config.Config, st store.RemoteFieldStore, tr *tracker.Tracker) (*remote.Cached, error) {
	var rs remote.Store
	switch cfg.Remote.Provider {
	case "local":
		// Seed the document with the last known contacts.
		seed := map[string]any{}
		if raw, ok := st.GetRemoteField(ctx, remote.FieldContacts); ok {
			var contacts []any
			if err := json.Unmarshal(raw, &contacts); err == nil {
				seed[remote.FieldContacts] = contacts
			}
		}
		slog.Info("Remote: Local document", "seeded_fields", len(seed))
		rs = remote.NewLocal(seed)
	default:
		fs, err := remote.NewFirestore(ctx, cfg.Remote, cfg.Request, tr)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize remote store: %w", err)
		}
		slog.Info("Remote: Firestore", "project", cfg.Remote.ProjectID, "device", cfg.Remote.DeviceID)
		rs = fs
	}
	return remote.NewCached(rs, st), nil
}

func initNotifier(cfg *config.Config, client *request.Client) notify.Notifier {
	if cfg.SMS.Provider == "twilio" && cfg.SMS.AccountSID != "" {
		return notify.NewTwilio(client, cfg.SMS.AccountSID, cfg.SMS.AuthToken, cfg.SMS.ServiceID)
	}
	slog.Info("SMS: logging only")
	return &notify.Log{}
}

type textSpeaker interface {
	Speak(ctx context.Context, text string) error
}

func initTalker(cfg *config.Config, client *request.Client, player audio.Player, lang speech.LanguageSource) textSpeaker {
	if cfg.Speech.TTSKey == "" {
		slog.Warn("No text-to-speech key, spoken text is logged only")
		return &speech.LogSpeaker{}
	}
	return speech.NewSpeaker(
		speech.NewTranslator(client, cfg.Speech.TranslateKey),
		speech.NewSynthesizer(client, cfg.Speech.TTSKey, cfg.Speech.Voice),
		player, lang, cfg.Speech.CacheDir,
	)
}

type phraseListener interface {
	Listen(ctx context.Context, prompt string) (string, error)
}

func initListener(cfg *config.Config, client *request.Client, dev *devices, t textSpeaker, prompts *audio.Prompts, lang speech.LanguageSource) phraseListener {
	if dev.listener != nil {
		return dev.listener
	}
	recog := speech.NewRecognizer(client, cfg.Speech.STTKey, cfg.Speech.SampleRate)
	return speech.NewListener(t, prompts, dev.recorder, recog, lang, cfg.Speech.RecordDuration.Std())
}

// offlineDescriber stands in when the vision model cannot be reached.
type offlineDescriber struct{ err error }

func (o offlineDescriber) Describe(ctx context.Context, image []byte, prompt string) (string, error) {
	return "", o.err
}

func initDescriber(ctx context.Context, cfg *config.Config, logDir string, tr *tracker.Tracker) vision.Describer {
	g, err := vision.NewGemini(ctx, cfg.Vision, filepath.Join(logDir, "vision.log"), tr)
	if err != nil {
		slog.Warn("Scene description unavailable", "error", err)
		return offlineDescriber{err: fmt.Errorf("vision unavailable: %w", err)}
	}
	return g
}

func setupScheduler(prov config.Provider, state *device.State, dev *devices, trail *geo.Trail, st store.StateStore, monitor *emergency.Monitor, watchdog *emergency.Watchdog, publisher *location.Publisher) *core.Scheduler {
	cfg := prov.AppConfig()
	sched := core.NewScheduler(prov, state, dev.compass, dev.position, trail, nil)

	// Resume an emergency that was running before the restart.
	sched.AddJob(core.NewOnceJob("EmergencyRestore", func(c context.Context, _ device.Snapshot) bool {
		if err := monitor.Restore(c); err != nil {
			slog.Warn("Emergency restore failed, retrying", "error", err)
			return false
		}
		return true
	}))

	sched.AddJob(core.NewTimeJob("EmergencyPoll", cfg.Emergency.PollInterval.Std(), func(c context.Context, _ device.Snapshot) {
		if err := monitor.Poll(c); err != nil {
			slog.Warn("Emergency poll failed", "error", err)
		}
	}))

	sched.AddJob(core.NewTimeJob("NoMotion", cfg.NoMotion.SampleInterval.Std(), func(c context.Context, _ device.Snapshot) {
		if err := watchdog.Tick(c); err != nil {
			slog.Warn("No-motion watchdog failed", "error", err)
		}
	}))

	sched.AddJob(core.NewTimeJob("LiveLocation", cfg.Location.Interval.Std(), func(c context.Context, _ device.Snapshot) {
		if err := publisher.Tick(c); err != nil {
			slog.Warn("Location publish failed", "error", err)
		}
	}))

	persist := core.NewContextPersistence(st)
	sched.AddJob(core.NewTimeJob("ContextPersistence", 10*time.Second, func(c context.Context, s device.Snapshot) {
		persist.Save(c, s)
	}))

	return sched
}

func runServer(ctx context.Context, cfg *config.Config, h api.Handlers) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	if !cfg.Server.Enabled {
		select {
		case <-quit:
			slog.Info("Shutting down...")
		case <-ctx.Done():
			slog.Info("Context cancelled, shutting down...")
		}
		return nil
	}

	shutdownFunc := func() { quit <- syscall.SIGTERM }
	srv := api.NewServer(cfg.Server.Address, h, shutdownFunc)
	srv.Handler = loggingMiddleware(srv.Handler)
	return runServerLifecycle(ctx, srv, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
