package ui

import "strings"

// Sparkline renders a text-based throughput chart using Unicode block
// characters. Samples are kept in a ring buffer of display width.
type Sparkline struct {
	samples []float64
	width   int
	head    int
	count   int
	max     float64
}

// SparklineChars are the block characters, 8 levels from low to full.
var SparklineChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// NewSparkline creates a sparkline with the given display width.
func NewSparkline(width int) *Sparkline {
	if width <= 0 {
		width = 60
	}
	return &Sparkline{
		samples: make([]float64, width),
		width:   width,
	}
}

// Add records a new sample.
func (s *Sparkline) Add(value float64) {
	s.samples[s.head] = value
	s.head = (s.head + 1) % s.width
	s.count++

	if value > s.max {
		s.max = value
	}

	// Recompute max periodically so a falling series rescales.
	if s.count%s.width == 0 {
		s.recalculateMax()
	}
}

func (s *Sparkline) recalculateMax() {
	s.max = 0
	for _, v := range s.samples {
		if v > s.max {
			s.max = v
		}
	}
	if s.max < 1 {
		s.max = 1
	}
}

// charFor scales a value into the block character range.
func (s *Sparkline) charFor(value float64) rune {
	if s.max <= 0 {
		return SparklineChars[0]
	}
	idx := int(value / s.max * float64(len(SparklineChars)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(SparklineChars) {
		idx = len(SparklineChars) - 1
	}
	return SparklineChars[idx]
}

// Render returns the sparkline as a string of block characters,
// oldest sample first.
func (s *Sparkline) Render() string {
	if s.count == 0 {
		return strings.Repeat(string(SparklineChars[0]), s.width)
	}

	if s.max <= 0 {
		s.recalculateMax()
	}

	var sb strings.Builder
	sb.Grow(s.width * 3)

	numSamples := min(s.count, s.width)
	start := 0
	if s.count >= s.width {
		start = s.head
	}

	for i := 0; i < s.width; i++ {
		if i >= numSamples && s.count < s.width {
			sb.WriteRune(' ')
			continue
		}
		sb.WriteRune(s.charFor(s.samples[(start+i)%s.width]))
	}

	return sb.String()
}

// RenderWithWidth renders only the most recent width samples. Useful
// when the terminal is narrower than the buffer.
func (s *Sparkline) RenderWithWidth(width int) string {
	if width <= 0 || width >= s.width {
		return s.Render()
	}

	if s.count == 0 {
		return strings.Repeat(string(SparklineChars[0]), width)
	}

	if s.max <= 0 {
		s.recalculateMax()
	}

	var sb strings.Builder
	sb.Grow(width * 3)

	numSamples := min(s.count, s.width)
	skip := 0
	if numSamples > width {
		skip = numSamples - width
	}

	start := 0
	if s.count >= s.width {
		start = s.head
	}

	rendered := 0
	for i := skip; i < s.width && rendered < width; i++ {
		if i >= numSamples && s.count < s.width {
			break
		}
		sb.WriteRune(s.charFor(s.samples[(start+i)%s.width]))
		rendered++
	}

	for rendered < width {
		sb.WriteRune(' ')
		rendered++
	}

	return sb.String()
}

// Clear resets the sparkline.
func (s *Sparkline) Clear() {
	for i := range s.samples {
		s.samples[i] = 0
	}
	s.head = 0
	s.count = 0
	s.max = 0
}

// Count returns the number of samples recorded.
func (s *Sparkline) Count() int {
	return s.count
}

// Max returns the current scaling maximum.
func (s *Sparkline) Max() float64 {
	return s.max
}
