package voice

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/hraban/opus.v2"

	"github.com/osa030/guildbox/internal/app/transport"
)

const (
	channels   = 2
	sampleRate = 48000
	frameSize  = 960 // 20ms at 48kHz
	maxBytes   = frameSize * channels * 2
)

// sourceFunc opens a s16le 48kHz stereo PCM stream for streamRef. wait
// reports how the producer ended once the reader is drained or closed.
type sourceFunc func(ctx context.Context, streamRef string) (pcm io.ReadCloser, wait func() error, err error)

type encoder interface {
	Encode(pcm []int16, data []byte) (int, error)
}

type encoderFunc func() (encoder, error)

func opusEncoder(bitrate int) encoderFunc {
	return func() (encoder, error) {
		enc, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create opus encoder")
		}
		if err := enc.SetBitrate(bitrate); err != nil {
			return nil, errors.Wrapf(err, "failed to set opus bitrate %d", bitrate)
		}
		return enc, nil
	}
}

func ffmpegArgs(cfg Config, streamRef string) []string {
	return []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", strconv.Itoa(cfg.ReconnectDelayMax),
		"-nostdin",
		"-loglevel", "error",
		"-i", streamRef,
		"-vn",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"pipe:1",
	}
}

func ffmpegSource(cfg Config) sourceFunc {
	return func(ctx context.Context, streamRef string) (io.ReadCloser, func() error, error) {
		cmd := exec.CommandContext(ctx, cfg.FFmpegPath, ffmpegArgs(cfg, streamRef)...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		out, err := cmd.StdoutPipe()
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to get ffmpeg stdout pipe")
		}
		if err := cmd.Start(); err != nil {
			return nil, nil, errors.Wrap(err, "failed to start ffmpeg")
		}

		wait := func() error {
			if err := cmd.Wait(); err != nil {
				if msg := strings.TrimSpace(stderr.String()); msg != "" {
					return errors.Wrap(err, msg)
				}
				return err
			}
			return nil
		}
		return out, wait, nil
	}
}

// stream is one Play call: it pumps PCM frames through the encoder into
// the voice link until EOF, error or stop, then reports exactly once.
type stream struct {
	ref        string
	link       link
	source     sourceFunc
	newEncoder encoderFunc
	onFinished transport.FinishedFunc

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	paused   bool
	resumeCh chan struct{}
}

func newStream(ref string, l link, source sourceFunc, enc encoderFunc, onFinished transport.FinishedFunc) *stream {
	ctx, cancel := context.WithCancel(context.Background())
	return &stream{
		ref:        ref,
		link:       l,
		source:     source,
		newEncoder: enc,
		onFinished: onFinished,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

func (s *stream) run() {
	err := s.play()
	close(s.done)
	if err != nil {
		zlog.Warn().Err(err).Msg("voice: stream failed")
	}
	s.onFinished(err)
}

func (s *stream) play() error {
	defer s.cancel()

	enc, err := s.newEncoder()
	if err != nil {
		return err
	}
	pcm, wait, err := s.source(s.ctx, s.ref)
	if err != nil {
		return err
	}

	_ = s.link.Speaking(true)
	readErr := s.pump(pcm, enc)
	_ = s.link.Speaking(false)
	_ = pcm.Close()
	waitErr := wait()

	if s.ctx.Err() != nil {
		// Stopped; the producer was killed on purpose.
		return nil
	}
	if readErr != nil {
		return readErr
	}
	if waitErr != nil {
		return errors.Wrap(waitErr, "ffmpeg exited")
	}
	return nil
}

func (s *stream) pump(r io.Reader, enc encoder) error {
	frame := make([]int16, frameSize*channels)
	for {
		if !s.waitResumed() {
			return nil
		}

		if err := binary.Read(r, binary.LittleEndian, frame); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || s.ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "failed to read pcm")
		}

		data := make([]byte, maxBytes)
		n, err := enc.Encode(frame, data)
		if err != nil {
			return errors.Wrap(err, "failed to encode pcm to opus")
		}

		select {
		case s.link.Frames() <- data[:n]:
		case <-s.ctx.Done():
			return nil
		}
	}
}

// waitResumed blocks while paused. It returns false once stopped.
func (s *stream) waitResumed() bool {
	s.mu.Lock()
	ch := s.resumeCh
	paused := s.paused
	s.mu.Unlock()

	if !paused {
		return s.ctx.Err() == nil
	}

	_ = s.link.Speaking(false)
	select {
	case <-ch:
		_ = s.link.Speaking(true)
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *stream) pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return
	}
	s.paused = true
	s.resumeCh = make(chan struct{})
}

func (s *stream) resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return
	}
	s.paused = false
	close(s.resumeCh)
}

func (s *stream) stop() {
	s.cancel()
}

func (s *stream) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *stream) active() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}
