package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ivlev/motion2video/internal/animation"
	"github.com/ivlev/motion2video/internal/config"
	"github.com/ivlev/motion2video/internal/director"
	"github.com/ivlev/motion2video/internal/engine"
	"github.com/ivlev/motion2video/internal/events"
	"github.com/ivlev/motion2video/internal/source"
	"github.com/ivlev/motion2video/internal/system"
)

// set with -ldflags "-X main.buildVersion=..."
var buildVersion = "dev"

func main() {
	projectPtr := flag.String("project", "", "Путь к проекту YAML (по умолчанию: самый свежий файл в input/projects/)")
	configPtr := flag.String("config", "", "Файл настроек экспорта YAML")
	outputPtr := flag.String("output", "", "Путь к видео или папке для PNG-кадров (если пусто, генерируется автоматически в output/)")
	widthPtr := flag.Int("width", 0, "Ширина")
	heightPtr := flag.Int("height", 0, "Высота")
	fpsPtr := flag.Float64("fps", 0, "FPS")
	presetPtr := flag.String("preset", "", "Пресет формата: 16:9, 9:16 (Shorts/TikTok), 4:5 (Instagram), 1:1, 4k")
	qualityPtr := flag.Int("quality", -1, "Качество видео (0 - авто, x264: CRF 1-51, VideoToolbox: битрейт = Q*100кбит/с)")
	durationPtr := flag.Float64("duration", 0, "Длительность видео (если 0, берется из проекта)")
	placeholderPtr := flag.String("placeholder", "", "Текст для пустого холста")
	statsPtr := flag.Bool("stats", false, "Показать отчет о производительности и дописать benchmark.log")
	verbosePtr := flag.Bool("v", false, "Подробный лог")

	flag.Parse()

	level := slog.LevelInfo
	if *verbosePtr {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// Увеличиваем лимиты системы (для macOS/Linux)
	system.InitResourceLimits(logger)

	for _, d := range []string{director.ProjectsDir, "output"} {
		os.MkdirAll(d, 0755)
	}

	cfg := config.Default()
	if *configPtr != "" {
		loaded, err := config.Load(*configPtr)
		if err != nil {
			log.Fatalf("[-] Ошибка настроек: %v", err)
		}
		cfg = loaded
	}

	// флаги, заданные явно, перекрывают файл настроек
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "project":
			cfg.ProjectPath = *projectPtr
		case "output":
			cfg.OutputPath = *outputPtr
		case "width":
			cfg.Width = *widthPtr
		case "height":
			cfg.Height = *heightPtr
		case "fps":
			cfg.FPS = *fpsPtr
		case "quality":
			cfg.Quality = *qualityPtr
		case "duration":
			cfg.Duration = *durationPtr
		case "placeholder":
			cfg.Placeholder = *placeholderPtr
		case "stats":
			cfg.ShowStats = *statsPtr
		}
	})
	if *presetPtr != "" {
		if err := cfg.ApplyPreset(*presetPtr); err != nil {
			log.Fatalf("[-] %v", err)
		}
	}
	cfg.BuildVersion = buildVersion
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[-] Ошибка настроек: %v", err)
	}

	if cfg.ProjectPath == "" {
		latest, err := director.FindLatestProject(director.ProjectsDir)
		if err != nil {
			log.Fatalf("[-] Ошибка: %v. Положите проект в %s/", err, director.ProjectsDir)
		}
		cfg.ProjectPath = latest
		fmt.Printf("[*] Выбран проект: %s\n", cfg.ProjectPath)
	}

	project, err := director.ReadProject(cfg.ProjectPath)
	if err != nil {
		log.Fatalf("[-] Ошибка чтения проекта: %v", err)
	}
	ctrl := animation.NewController(animation.WithLogger(logger))
	doc, err := project.Build(ctrl)
	if err != nil {
		log.Fatalf("[-] Ошибка проекта: %v", err)
	}
	doc.SetLogger(logger)
	if doc.Len() == 0 {
		fmt.Println("[!] Холст пуст")
	}

	if cfg.OutputPath == "" {
		base := filepath.Base(cfg.ProjectPath)
		name := strings.ReplaceAll(strings.TrimSuffix(base, filepath.Ext(base)), " ", "_")
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		cfg.OutputPath = filepath.Join("output", fmt.Sprintf("%s_%s.mp4", name, timestamp))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.VideoEncoder == "" {
		cfg.VideoEncoder = system.BestH264Encoder(ctx)
		if cfg.VideoEncoder != "libx264" {
			fmt.Printf("[*] Обнаружено аппаратное ускорение: %s\n", cfg.VideoEncoder)
		}
	}
	if cfg.Quality == 0 {
		cfg.Quality = system.DefaultQuality(cfg.VideoEncoder)
	}

	assetDir := cfg.AssetDir
	if assetDir == "" {
		assetDir = filepath.Dir(cfg.ProjectPath)
	}
	loader := source.NewLoader(assetDir, logger)
	loader.DPI = cfg.DPI
	loader.MaxDimension = cfg.MaxImageDimension
	defer loader.Release()

	// владелец состояния документа: все обращения к треку идут через него
	owner := animation.NewLoop()
	ownerCtx, stopOwner := context.WithCancel(context.Background())
	defer stopOwner()
	go owner.Run(ownerCtx)

	bus := events.NewBus(logger)
	statuses, unsubscribe := bus.Subscribe(events.TopicStatus, 8)
	defer unsubscribe()
	go func() {
		for ev := range statuses {
			logger.Debug("export status", "event", ev.String())
		}
	}()

	background, _ := cfg.BackgroundColor()
	exporter := engine.NewExporter(nil, loader,
		engine.WithLogger(logger),
		engine.WithBus(bus),
		engine.WithPlaceholder(cfg.Placeholder),
		engine.WithProgressThrottle(cfg.ProgressStep, cfg.ProgressInterval),
		engine.WithFinalizeTimeout(cfg.FinalizeTimeout),
		engine.WithEncoding(cfg.VideoEncoder, cfg.Quality, cfg.EncoderPreset, cfg.QueueDepth),
		engine.WithBackground(background),
		engine.WithStats(cfg.ShowStats),
	)

	fmt.Printf("[*] Экспорт %dx%d @ %g fps -> %s\n", cfg.Width, cfg.Height, cfg.FPS, cfg.OutputPath)
	res, err := exporter.Export(ctx, engine.Request{
		Width:       cfg.Width,
		Height:      cfg.Height,
		FrameRate:   cfg.FPS,
		Duration:    cfg.Duration,
		Document:    doc,
		Controller:  ctrl,
		Owner:       owner,
		Destination: cfg.OutputPath,
	}, func(p float64) {
		fmt.Printf("\r[*] Прогресс: %3.0f%%", p*100)
	})
	fmt.Println()

	if errors.Is(err, engine.ErrCancelled) {
		fmt.Printf("[!] Экспорт отменен после %d кадров, файл не сохранен\n", res.Frames)
		os.Exit(130)
	}
	if err != nil {
		log.Fatalf("[-] Ошибка экспорта: %v", err)
	}

	if cfg.ShowStats {
		fmt.Print(res.Stats.Report(cfg.BuildVersion))
		entry := res.Stats.LogEntry(time.Now(), cfg.BuildVersion, filepath.Base(cfg.ProjectPath), res.Frames)
		f, err := os.OpenFile("benchmark.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			f.WriteString(entry)
			f.Close()
		} else {
			fmt.Printf("[!] Не удалось записать benchmark.log: %v\n", err)
		}
	}

	fmt.Printf("[+++] Успех! Результат: %s (%d кадров, %.2fs)\n", res.Asset.Path, res.Asset.Frames, res.Asset.Duration.Seconds())
}
