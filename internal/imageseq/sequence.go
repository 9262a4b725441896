// Package imageseq plays a directory of still frames as a video. It provides
// both the playback clock and the frame source of the pump.
package imageseq

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// ErrNoFrames is returned when the directory holds no supported images
var ErrNoFrames = errors.New("no frames found")

const (
	// DefaultJPEGQuality matches what the detection service is tuned for
	DefaultJPEGQuality = 50
	defaultFPS         = 30.0

	// Positions closer to the end than this fraction of a frame snap to it
	endSnapFrames = 0.5
)

var supportedExt = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".bmp":  {},
}

// Sequence is a seekable image sequence. It implements pump.Playback and
// pump.FrameSource. Seeks settle asynchronously, like a media element does.
type Sequence struct {
	frames  []string
	fps     float64
	quality int
	width   int
	height  int
	logger  *slog.Logger

	mu      sync.Mutex
	current float64
	settled func()
}

// Option configures Sequence
type Option func(*Sequence)

// WithFPS sets frame rate the frames were extracted at
func WithFPS(fps float64) Option {
	return func(s *Sequence) {
		s.fps = fps
	}
}

// WithJPEGQuality sets quality of encoded frames, 1..100
func WithJPEGQuality(quality int) Option {
	return func(s *Sequence) {
		s.quality = quality
	}
}

// WithLogger sets logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sequence) {
		s.logger = logger
	}
}

// Open lists supported images of dir in name order. The first frame defines
// the display size.
func Open(dir string, opts ...Option) (*Sequence, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't read frames directory %s", dir)
	}
	s := &Sequence{
		fps:     defaultFPS,
		quality: DefaultJPEGQuality,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if !(s.fps > 0) {
		return nil, errors.Errorf("fps must be positive, got %f", s.fps)
	}
	if s.quality < 1 || s.quality > 100 {
		return nil, errors.Errorf("jpeg quality must be in [1, 100], got %d", s.quality)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := supportedExt[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
			continue
		}
		s.frames = append(s.frames, filepath.Join(dir, entry.Name()))
	}
	if len(s.frames) == 0 {
		return nil, errors.Wrapf(ErrNoFrames, "directory %s", dir)
	}
	sort.Strings(s.frames)

	first, err := decodeFile(s.frames[0])
	if err != nil {
		return nil, err
	}
	bounds := first.Bounds()
	s.width, s.height = bounds.Dx(), bounds.Dy()
	s.logger.Info("image sequence opened",
		"dir", dir,
		"frames", len(s.frames),
		"fps", s.fps,
		"width", s.width,
		"height", s.height,
	)
	return s, nil
}

// DisplaySize returns size of the first frame
func (s *Sequence) DisplaySize() (int, int) {
	return s.width, s.height
}

// Len returns number of frames
func (s *Sequence) Len() int {
	return len(s.frames)
}

// CurrentTime returns playback position, seconds
func (s *Sequence) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Duration returns length of the sequence, seconds
func (s *Sequence) Duration() float64 {
	return float64(len(s.frames)) / s.fps
}

// Advance moves playback forward, clamped to the duration. The settled
// callback fires on its own goroutine.
func (s *Sequence) Advance(seconds float64) {
	s.mu.Lock()
	s.current = math.Min(s.current+seconds, s.Duration())
	if s.Duration()-s.current < endSnapFrames/s.fps {
		s.current = s.Duration()
	}
	settled := s.settled
	s.mu.Unlock()
	if settled != nil {
		go settled()
	}
}

// OnSettled registers callback for completed seeks
func (s *Sequence) OnSettled(callback func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settled = callback
}

// Capture encodes the frame shown at the current position, resized to width x height.
func (s *Sequence) Capture(width, height int) ([]byte, error) {
	idx := s.frameIndex(s.CurrentTime())
	img, err := decodeFile(s.frames[idx])
	if err != nil {
		return nil, err
	}
	return EncodeFrame(img, width, height, s.quality)
}

func (s *Sequence) frameIndex(position float64) int {
	// Tolerance for positions accumulated from float timesteps
	idx := int(math.Floor(position*s.fps + 1e-6))
	if idx < 0 {
		return 0
	}
	if idx >= len(s.frames) {
		return len(s.frames) - 1
	}
	return idx
}

// EncodeFrame scales img to width x height and encodes it as JPEG.
func EncodeFrame(img image.Image, width, height, quality int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("frame size must be positive, got %dx%d", width, height)
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, errors.Wrap(err, "Can't encode frame")
	}
	return buf.Bytes(), nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't open frame %s", path)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't decode frame %s", path)
	}
	return img, nil
}
