package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
)

// Version is reported by --version and the status API.
const Version = "framecast version 1.0"

// Config holds all application configuration
type Config struct {
	// Renderer endpoints, one supervisor per entry
	Renderers []string

	// Initial output resolution
	Width  uint
	Height uint

	// Encoder settings
	Bitrate      uint
	FPS          uint
	KeyInt       uint
	EncodePreset string
	EncodeTune   string

	// Overlay font
	FontPath string

	// WebSocket ports
	CameraControlPort uint
	PacketStreamPort  uint

	// Status/metrics HTTP server (ambient, env-configured)
	StatusAddr string

	// ShowVersion is set when --version was requested
	ShowVersion bool
}

// stringList collects a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return fmt.Sprint([]string(*l)) }

func (l *stringList) Set(value string) error {
	*l = append(*l, value)
	return nil
}

// Parse builds the configuration from command-line arguments, with
// environment defaults for the ambient settings. It returns flag.ErrHelp
// when usage was requested.
func Parse(args []string) (*Config, error) {
	cfg := &Config{
		StatusAddr: getEnv("HTTP_ADDR", ":8080"),
	}

	fs := flag.NewFlagSet("framecast", flag.ContinueOnError)

	var renderers stringList
	fs.Var(&renderers, "renderer", "Renderer endpoint host:port (repeatable)")
	fs.UintVar(&cfg.Width, "width", 1280, "Initial frame width")
	fs.UintVar(&cfg.Height, "height", 720, "Initial frame height")
	fs.UintVar(&cfg.Bitrate, "bitrate", 400000, "Encoder target bitrate (bits/s)")
	fs.UintVar(&cfg.FPS, "fps", 30, "Encoder framerate")
	fs.UintVar(&cfg.KeyInt, "keyint", 250, "Keyframe interval (frames)")
	fs.StringVar(&cfg.EncodePreset, "encode_preset", "ultrafast",
		"Encoder preset {ultrafast, superfast, veryfast, faster, fast, medium, slow, slower, veryslow, placebo}")
	fs.StringVar(&cfg.EncodeTune, "encode_tune", "stillimage,zerolatency",
		"Encoder tune {film, animation, grain, stillimage, fastdecode, zerolatency, psnr, ssim}")
	fs.StringVar(&cfg.FontPath, "font", "/usr/share/fonts/truetype/noto/NotoMono-Regular.ttf",
		"TrueType font used to render overlays")
	fs.UintVar(&cfg.CameraControlPort, "camera_control_server_port", 9998,
		"Port the camera control websocket server binds to")
	fs.UintVar(&cfg.PacketStreamPort, "packet_stream_server_port", 9999,
		"Port the packet stream websocket server binds to")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Display the version")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Display the version")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Renderers = renderers
	return cfg, nil
}

// Validate checks the parsed configuration for values the pipeline cannot
// run with.
func (c *Config) Validate() error {
	if c.Width == 0 || c.Height == 0 {
		return fmt.Errorf("invalid resolution %dx%d", c.Width, c.Height)
	}
	if c.FPS == 0 {
		return fmt.Errorf("fps must be positive")
	}
	if c.Bitrate == 0 {
		return fmt.Errorf("bitrate must be positive")
	}
	if c.KeyInt == 0 {
		return fmt.Errorf("keyint must be positive")
	}
	if c.FontPath == "" {
		return fmt.Errorf("font path must not be empty")
	}
	if c.CameraControlPort == 0 || c.CameraControlPort > 65535 {
		return fmt.Errorf("invalid camera control port %d", c.CameraControlPort)
	}
	if c.PacketStreamPort == 0 || c.PacketStreamPort > 65535 {
		return fmt.Errorf("invalid packet stream port %d", c.PacketStreamPort)
	}
	if c.CameraControlPort == c.PacketStreamPort {
		return fmt.Errorf("camera control and packet stream ports collide on %d", c.PacketStreamPort)
	}
	return nil
}

// Helper functions to get environment variables with defaults

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// QueueCapacity returns the bounded-queue capacity, overridable through
// the environment for load testing.
func (c *Config) QueueCapacity() int {
	return getIntEnv("QUEUE_CAPACITY", 100)
}
