package codec

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"framecast/pkg/models"
)

// pendingPacketCap bounds the number of encoded packets buffered between
// the encoder process and Drain. When it fills, Feed reports backpressure.
const pendingPacketCap = 64

// closeGracePeriod is how long Close waits for the encoder process to
// flush and exit after stdin closes before killing it.
const closeGracePeriod = 3 * time.Second

// FFmpegEncoder drives one ffmpeg child process as a delta-frame video
// encoder: raw planar YUV frames go in over stdin, Annex-B H.264 comes out
// over stdout and is cut into access units.
type FFmpegEncoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer

	packets chan models.EncoderPacket
	stopped chan struct{}

	mu        sync.Mutex
	exited    bool
	readerErr error
}

// OpenFFmpegEncoder starts an encoder process for the given configuration.
func OpenFFmpegEncoder(cfg models.CodecConfig) (*FFmpegEncoder, error) {
	keyint := strconv.Itoa(cfg.KeyframeInterval)
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", string(cfg.PixFmt),
		"-s", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-r", strconv.Itoa(cfg.FPS),
		"-i", "pipe:0",
		"-c:v", cfg.Codec,
		"-preset", cfg.Preset,
		"-tune", cfg.Tune,
		"-b:v", strconv.Itoa(cfg.Bitrate),
		"-g", keyint,
		"-bf", "0",
		// aud=1 fronts every frame with an access unit delimiter so the
		// output stream can be split back into per-frame packets.
		"-x264-params", "aud=1:keyint=" + keyint + ":min-keyint=" + keyint + ":scenecut=0",
		"-f", "h264",
		"pipe:1",
	}

	cmd := exec.Command("ffmpeg", args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	e := &FFmpegEncoder{
		cmd:     cmd,
		stdin:   stdin,
		stderr:  stderr,
		packets: make(chan models.EncoderPacket, pendingPacketCap),
		stopped: make(chan struct{}),
	}
	go e.readLoop(stdout)

	log.Printf("codec: opened %s encoder %dx%d bitrate=%d fps=%d keyint=%d",
		cfg.Codec, cfg.Width, cfg.Height, cfg.Bitrate, cfg.FPS, cfg.KeyframeInterval)
	return e, nil
}

// readLoop drains the encoder's stdout, splitting the byte stream into
// access units. It closes the packet channel when the stream ends.
func (e *FFmpegEncoder) readLoop(stdout io.Reader) {
	defer close(e.packets)

	var splitter AccessUnitSplitter
	buf := make([]byte, 64*1024)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			for _, pkt := range splitter.Push(buf[:n]) {
				select {
				case e.packets <- pkt:
				case <-e.stopped:
					return
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				e.mu.Lock()
				e.readerErr = err
				e.mu.Unlock()
			}
			return
		}
	}
}

// Feed hands one converted frame to the encoder. It returns ErrAgain when
// the pending-packet buffer is full — the caller must let the drain side
// catch up first — and a terminal error when the process has died.
func (e *FFmpegEncoder) Feed(frame *models.ConvertedFrame) error {
	if len(e.packets) >= pendingPacketCap-1 {
		return ErrAgain
	}

	// ffmpeg's rawvideo input expects packed rows; strip the stride.
	if err := e.writePlane(frame.Y, frame.Width, frame.Height, frame.Stride); err != nil {
		return e.feedError(err)
	}
	if err := e.writePlane(frame.Cb, frame.Width/2, frame.Height/2, frame.Stride/2); err != nil {
		return e.feedError(err)
	}
	if err := e.writePlane(frame.Cr, frame.Width/2, frame.Height/2, frame.Stride/2); err != nil {
		return e.feedError(err)
	}
	return nil
}

func (e *FFmpegEncoder) writePlane(plane []byte, width, height, stride int) error {
	if width == stride {
		_, err := e.stdin.Write(plane[:width*height])
		return err
	}
	for y := 0; y < height; y++ {
		if _, err := e.stdin.Write(plane[y*stride : y*stride+width]); err != nil {
			return err
		}
	}
	return nil
}

func (e *FFmpegEncoder) feedError(err error) error {
	if msg := bytes.TrimSpace(e.stderr.Bytes()); len(msg) > 0 {
		return fmt.Errorf("encoder rejected frame: %w: %s", err, msg)
	}
	return fmt.Errorf("encoder rejected frame: %w", err)
}

// Drain returns one pending packet. It returns ErrAgain when no packet is
// ready yet and io.EOF once the encoder has flushed its last packet after
// Close.
func (e *FFmpegEncoder) Drain() (models.EncoderPacket, error) {
	select {
	case pkt, ok := <-e.packets:
		if !ok {
			e.mu.Lock()
			err := e.readerErr
			e.mu.Unlock()
			if err != nil {
				return models.EncoderPacket{}, fmt.Errorf("encoder output: %w", err)
			}
			return models.EncoderPacket{}, io.EOF
		}
		return pkt, nil
	default:
		return models.EncoderPacket{}, ErrAgain
	}
}

// Close shuts the encoder down: stdin closes so ffmpeg flushes, and the
// process gets a grace period before being killed. Pending packets are
// discarded.
func (e *FFmpegEncoder) Close() error {
	e.mu.Lock()
	if e.exited {
		e.mu.Unlock()
		return nil
	}
	e.exited = true
	e.mu.Unlock()

	close(e.stopped)
	e.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- e.cmd.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			log.Printf("codec: ffmpeg exited with error: %v", err)
		}
	case <-time.After(closeGracePeriod):
		e.cmd.Process.Kill()
		<-done
		log.Printf("codec: ffmpeg did not exit within %v, killed", closeGracePeriod)
	}
	return nil
}
