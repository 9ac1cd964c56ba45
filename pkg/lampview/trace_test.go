package lampview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrace_Wraps(t *testing.T) {
	tr := NewTrace(3)
	assert.Equal(t, 0, tr.Len())
	assert.Empty(t, tr.Points(nil))

	tr.Add(Point{Ms: 1})
	tr.Add(Point{Ms: 2})
	assert.Equal(t, []Point{{Ms: 1}, {Ms: 2}}, tr.Points(nil))

	tr.Add(Point{Ms: 3})
	tr.Add(Point{Ms: 4})
	assert.Equal(t, 3, tr.Len())
	assert.Equal(t, []Point{{Ms: 2}, {Ms: 3}, {Ms: 4}}, tr.Points(nil))
}

func TestTrace_PointsReusesDst(t *testing.T) {
	tr := NewTrace(4)
	for i := range 6 {
		tr.Add(Point{Ms: uint64(i)})
	}
	dst := make([]Point, 0, 8)
	got := tr.Points(dst)
	require.Len(t, got, 4)
	assert.Equal(t, uint64(2), got[0].Ms)
	assert.Equal(t, cap(dst), cap(got))
}

func TestDownsample(t *testing.T) {
	src := make([]int, 100)
	for i := range src {
		src[i] = i
	}

	got := Downsample(nil, src, 10)
	require.Len(t, got, 10)
	assert.Equal(t, 0, got[0])
	assert.Equal(t, 90, got[9])

	dst := make([]int, 0, 200)
	got = Downsample(dst, src, 200)
	assert.Equal(t, src, got)
	assert.Equal(t, cap(dst), cap(got))

	assert.Empty(t, Downsample[int](nil, nil, 10))
}
