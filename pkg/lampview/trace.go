package lampview

// Point is one rendered frame of the status LED.
type Point struct {
	Ms    uint64
	Level float32
}

// Trace is a fixed-size ring of recent points.
type Trace struct {
	points []Point
	next   int
	full   bool
}

// NewTrace creates a trace keeping the last size points.
func NewTrace(size int) *Trace {
	return &Trace{points: make([]Point, max(size, 1))}
}

// Add appends p, overwriting the oldest point when full.
func (t *Trace) Add(p Point) {
	t.points[t.next] = p
	t.next++
	if t.next == len(t.points) {
		t.next = 0
		t.full = true
	}
}

// Len returns the number of stored points.
func (t *Trace) Len() int {
	if t.full {
		return len(t.points)
	}
	return t.next
}

// Points copies the stored points oldest first into dst.
func (t *Trace) Points(dst []Point) []Point {
	dst = dst[:0]
	if t.full {
		dst = append(dst, t.points[t.next:]...)
	}
	return append(dst, t.points[:t.next]...)
}

// Downsample decimates src to at most maxPoints, reusing dst when it has the
// capacity.
func Downsample[T any](dst, src []T, maxPoints int) []T {
	if len(src) <= maxPoints {
		if cap(dst) < len(src) {
			dst = make([]T, 0, len(src))
		}
		return append(dst[:0], src...)
	}

	if cap(dst) < maxPoints {
		dst = make([]T, 0, maxPoints)
	}
	dst = dst[:0]

	step := float64(len(src)) / float64(maxPoints)
	for i := range maxPoints {
		dst = append(dst, src[int(float64(i)*step)])
	}
	return dst
}
