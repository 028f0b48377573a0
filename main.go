package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"framecast/config"
	"framecast/httpServer"
	"framecast/internal/camera"
	"framecast/internal/codec"
	"framecast/internal/dispatch"
	"framecast/internal/metrics"
	"framecast/internal/overlay"
	"framecast/internal/pipeline"
	"framecast/internal/stats"
	"framecast/internal/wsserver"
	"framecast/pkg/models"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(-1)
	}
	if cfg.ShowVersion {
		fmt.Println(config.Version)
		os.Exit(0)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-2)
	}

	log.Println("Starting framecast server...")

	// A single process-wide flag: set once by SIGINT or a codec failure,
	// observed by every worker loop.
	var shutdown atomic.Bool
	signal.Ignore(syscall.SIGPIPE)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		sig := <-sigs
		log.Printf("Received %v, shutting down", sig)
		shutdown.Store(true)
	}()

	m := metrics.New()

	log.Println("Initializing encoder.")
	codecMgr, err := codec.NewManager(models.CodecConfig{
		Codec:            "libx264",
		PixFmt:           models.PixelFormatYUV420P,
		Preset:           cfg.EncodePreset,
		Tune:             cfg.EncodeTune,
		Width:            int(cfg.Width),
		Height:           int(cfg.Height),
		Bitrate:          int(cfg.Bitrate),
		FPS:              int(cfg.FPS),
		KeyframeInterval: int(cfg.KeyInt),
	}, nil)
	if err != nil {
		log.Fatalf("Failed to initialize encoder: %v", err)
	}

	log.Println("Initializing text renderer.")
	textRenderer, err := overlay.NewRenderer(cfg.FontPath)
	if err != nil {
		log.Fatalf("Failed to initialize text renderer: %v", err)
	}

	log.Println("Initializing queues.")
	frameQueue := pipeline.NewFrameQueue(cfg.QueueCapacity(), 0)
	encodeMap := pipeline.NewFrameMap(cfg.QueueCapacity(), 0, 0)

	cameraMgr := camera.NewManager(uint32(cfg.Width), uint32(cfg.Height), codecMgr)

	log.Println("Initializing packet stream server.")
	packetSrv := wsserver.NewPacketStreamServer(uint16(cfg.PacketStreamPort), m)
	if err := packetSrv.Start(); err != nil {
		log.Fatalf("Failed to start packet stream server: %v", err)
	}

	log.Println("Initializing camera control server.")
	cameraSrv := wsserver.NewCameraControlServer(uint16(cfg.CameraControlPort), cameraMgr, m, &shutdown)
	if err := cameraSrv.Start(); err != nil {
		log.Fatalf("Failed to start camera control server: %v", err)
	}

	var frameIndex atomic.Uint64

	// Status/metrics HTTP API runs for the life of the process.
	statusSrv := httpServer.New(cfg, codecMgr, cameraMgr, packetSrv, &frameIndex)
	go func() {
		if err := statusSrv.Run(cfg.StatusAddr); err != nil {
			log.Printf("Status server failed: %v", err)
		}
	}()

	log.Println("Done bootstrapping.")

	dispatcher := dispatch.New(cfg.Renderers, frameQueue, cameraMgr, &frameIndex, m, &shutdown)
	convertStage := &pipeline.ConvertStage{
		Queue:    frameQueue,
		Map:      encodeMap,
		Codec:    codecMgr,
		Overlay:  textRenderer,
		Metrics:  m,
		Shutdown: &shutdown,
	}
	feedStage := &pipeline.FeedStage{
		Map:      encodeMap,
		Codec:    codecMgr,
		Metrics:  m,
		Shutdown: &shutdown,
	}
	drainStage := &pipeline.DrainStage{
		Codec:    codecMgr,
		Sink:     packetSrv,
		Shutdown: &shutdown,
	}
	reporter := &stats.Reporter{
		FrameIndex: &frameIndex,
		Queue:      frameQueue,
		Map:        encodeMap,
		Metrics:    m,
		Shutdown:   &shutdown,
	}

	var wg sync.WaitGroup
	for _, run := range []func(){
		dispatcher.Run,
		convertStage.Run,
		feedStage.Run,
		drainStage.Run,
		reporter.Run,
	} {
		wg.Add(1)
		go func(run func()) {
			defer wg.Done()
			run()
		}(run)
	}
	wg.Wait()

	packetSrv.Stop()
	cameraSrv.Stop()
	codecMgr.Close()

	log.Println("All threads are terminated. Shutting down.")
}
