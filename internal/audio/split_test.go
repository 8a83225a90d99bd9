package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanWindows(t *testing.T) {
	tests := []struct {
		name    string
		total   float64
		window  float64
		overlap float64
		want    []window
	}{
		{
			name:    "audio exactly one window long",
			total:   60,
			window:  60,
			overlap: 5,
			want:    []window{{0, 60}},
		},
		{
			name:    "audio just past one window gets a tail chunk",
			total:   60.5,
			window:  60,
			overlap: 5,
			want:    []window{{0, 60}, {55, 60.5}},
		},
		{
			name:    "three minute audio with one minute windows",
			total:   180,
			window:  60,
			overlap: 5,
			want:    []window{{0, 60}, {55, 115}, {110, 170}, {165, 180}},
		},
		{
			name:    "audio shorter than the window",
			total:   12,
			window:  60,
			overlap: 5,
			want:    []window{{0, 12}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := planWindows(tt.total, tt.window, tt.overlap)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlanWindowsOverlapInvariant(t *testing.T) {
	windows, err := planWindows(1000, 150, 5)
	require.NoError(t, err)

	for i := 1; i < len(windows); i++ {
		assert.Equal(t, windows[i-1].end-5, windows[i].start, "window %d must overlap its predecessor by 5s", i)
	}
	assert.Equal(t, float64(1000), windows[len(windows)-1].end)
}

func TestPlanWindowsSegmentCeiling(t *testing.T) {
	_, err := planWindows(100000, 60, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooManySegments)
}

func TestPlanWindowsRejectsBadParameters(t *testing.T) {
	_, err := planWindows(60, 0, 5)
	assert.Error(t, err)

	_, err = planWindows(60, 30, 30)
	assert.Error(t, err)

	_, err = planWindows(60, 30, -1)
	assert.Error(t, err)
}
