package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrack_RecordAndLevel(t *testing.T) {
	var tr Track
	assert.Equal(t, 0, tr.Level())
	assert.Empty(t, tr.Points())

	require.NoError(t, tr.Record(0, 1))
	require.NoError(t, tr.Record(4.5, 1))
	require.NoError(t, tr.Record(4.5, 0))

	assert.Equal(t, 0, tr.Level())
	assert.Equal(t, []Point{{0, 1}, {4.5, 1}, {4.5, 0}}, tr.Points())
}

func TestTrack_RecordOutOfOrder(t *testing.T) {
	var tr Track
	require.NoError(t, tr.Record(5, 1))

	err := tr.Record(4.99, 0)
	assert.ErrorIs(t, err, ErrOutOfOrder)
	assert.Len(t, tr.Points(), 1)

	assert.ErrorIs(t, (&Track{}).Record(-1, 1), ErrOutOfOrder)
}

func TestTrack_Finalize(t *testing.T) {
	tests := []struct {
		name   string
		points []Point
		want   []Point
	}{
		{
			name: "baseline only",
			want: []Point{},
		},
		{
			name:   "left on",
			points: []Point{{1, 1}},
			want:   []Point{{1, 1}, {20, 0}},
		},
		{
			name:   "already off",
			points: []Point{{1, 1}, {3, 0}},
			want:   []Point{{1, 1}, {3, 0}},
		},
		{
			name:   "partial level",
			points: []Point{{2, 50}},
			want:   []Point{{2, 50}, {20, 0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tr Track
			for _, p := range tt.points {
				require.NoError(t, tr.Record(p.Time, p.Level))
			}
			require.NoError(t, tr.Finalize(20))
			assert.Equal(t, tt.want, tr.Points())

			// Second finalize with the same end time changes nothing.
			require.NoError(t, tr.Finalize(20))
			assert.Equal(t, tt.want, tr.Points())
		})
	}
}

func TestTrack_Intervals(t *testing.T) {
	tests := []struct {
		name   string
		points []Point
		want   []Interval
	}{
		{
			name: "empty",
		},
		{
			name:   "single bar",
			points: []Point{{2, 1}, {4, 0}},
			want:   []Interval{{Start: 2, Duration: 2}},
		},
		{
			name:   "level change inside bar",
			points: []Point{{1, 50}, {3, 100}, {6, 0}},
			want:   []Interval{{Start: 1, Duration: 5}},
		},
		{
			name:   "two bars",
			points: []Point{{0, 1}, {5, 0}, {10, 1}, {20, 0}},
			want:   []Interval{{Start: 0, Duration: 5}, {Start: 10, Duration: 10}},
		},
		{
			name:   "restated zero",
			points: []Point{{5, 0}, {6, 0}},
		},
		{
			name:   "open bar not reported",
			points: []Point{{1, 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tr Track
			for _, p := range tt.points {
				require.NoError(t, tr.Record(p.Time, p.Level))
			}
			assert.Equal(t, tt.want, tr.Intervals())
		})
	}
}

func TestTimeline_FinalizeAll(t *testing.T) {
	tl := New()
	require.NoError(t, tl.Record(Fans, 0, 1))
	require.NoError(t, tl.Record(Heat, 0.01, 1))
	require.NoError(t, tl.Record(Mist, 10, 1))
	require.NoError(t, tl.Record(Mist, 12, 0))

	require.NoError(t, tl.FinalizeAll(20))

	assert.Equal(t, []Point{{0, 1}, {20, 0}}, tl.Points(Fans))
	assert.Equal(t, []Point{{0.01, 1}, {20, 0}}, tl.Points(Heat))
	assert.Equal(t, []Point{{10, 1}, {12, 0}}, tl.Points(Mist))
	assert.Empty(t, tl.Points(Flap))
	for _, ch := range Channels() {
		assert.Equal(t, 0, tl.Level(ch))
	}
}

func TestTrack_Clip(t *testing.T) {
	tests := []struct {
		name   string
		points []Point
		end    float64
		want   []Point
	}{
		{
			name:   "nothing past end",
			points: []Point{{10, 1}, {12, 0}},
			end:    20,
			want:   []Point{{10, 1}, {12, 0}},
		},
		{
			name:   "burst overruns end",
			points: []Point{{18, 1}, {23, 0}},
			end:    20,
			want:   []Point{{18, 1}},
		},
		{
			name:   "point at end is kept",
			points: []Point{{15, 1}, {20, 0}},
			end:    20,
			want:   []Point{{15, 1}, {20, 0}},
		},
		{
			name:   "everything after end",
			points: []Point{{12, 1}},
			end:    10,
			want:   []Point{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &Track{}
			for _, p := range tt.points {
				require.NoError(t, tr.Record(p.Time, p.Level))
			}
			tr.Clip(tt.end)
			assert.Equal(t, tt.want, tr.Points())
		})
	}
}

func TestTimeline_FinalizeAllClipsOverrun(t *testing.T) {
	tl := New()
	require.NoError(t, tl.Record(Mist, 18, 1))
	require.NoError(t, tl.Record(Mist, 23, 0))
	require.NoError(t, tl.Record(Flap, 19, 100))
	require.NoError(t, tl.Record(Flap, 22, 0))
	require.NoError(t, tl.Record(Heat, 12, 1))

	require.NoError(t, tl.FinalizeAll(20))

	assert.Equal(t, []Point{{18, 1}, {20, 0}}, tl.Points(Mist))
	assert.Equal(t, []Interval{{Start: 18, Duration: 2}}, tl.Intervals(Mist))
	assert.Equal(t, []Point{{19, 100}, {20, 0}}, tl.Points(Flap))
	assert.Equal(t, []Point{{12, 1}, {20, 0}}, tl.Points(Heat))
	require.NoError(t, tl.FinalizeAll(20))
	assert.Equal(t, []Point{{18, 1}, {20, 0}}, tl.Points(Mist))
}

func TestTimeline_UnknownChannel(t *testing.T) {
	tl := New()
	assert.Error(t, tl.Record(Channel("pump"), 0, 1))
	assert.Error(t, tl.Clip(Channel("pump"), 0))
	assert.Nil(t, tl.Track(Channel("pump")))
	assert.Nil(t, tl.Points(Channel("pump")))
	assert.Nil(t, tl.Intervals(Channel("pump")))
}
