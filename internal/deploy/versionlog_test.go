package deploy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func rec(name, hash string) FileRecord {
	return FileRecord{Filename: name, Hash: hash}
}

func TestVersionLog_InitSortsNewestFirst(t *testing.T) {
	log := NewVersionLog(
		Snapshot{Timestamp: 5},
		Snapshot{Timestamp: 20},
		Snapshot{Timestamp: 1},
	)

	last, ok := log.LastVersion()
	require.True(t, ok)
	assert.Equal(t, int64(20), last.Timestamp)

	var got []int64
	for _, s := range log.Snapshots() {
		got = append(got, s.Timestamp)
	}
	assert.Equal(t, []int64{20, 5, 1}, got)
}

func TestVersionLog_InitIsStableForEqualTimestamps(t *testing.T) {
	log := NewVersionLog(
		Snapshot{Timestamp: 7, Upload: []FileRecord{rec("first", "h")}},
		Snapshot{Timestamp: 7, Upload: []FileRecord{rec("second", "h")}},
	)
	snaps := log.Snapshots()
	assert.Equal(t, "first", snaps[0].Upload[0].Filename)
	assert.Equal(t, "second", snaps[1].Upload[0].Filename)
}

func TestVersionLog_Append(t *testing.T) {
	log := NewVersionLog(Snapshot{Timestamp: 10})
	log.Append(Snapshot{Timestamp: 30})

	assert.Equal(t, 2, log.Len())
	last, _ := log.LastVersion()
	assert.Equal(t, int64(30), last.Timestamp)
}

func TestVersionLog_LastVersionEmpty(t *testing.T) {
	_, ok := NewVersionLog().LastVersion()
	assert.False(t, ok)
}

func TestVersionLog_FindVersion(t *testing.T) {
	log := NewVersionLog(
		Snapshot{Timestamp: 20, Upload: []FileRecord{rec("a.js", "h1")}},
		Snapshot{Timestamp: 10, Upload: []FileRecord{rec("a.js", "h0")}, Omit: []FileRecord{rec("b.js", "hb")}},
	)

	tests := []struct {
		name     string
		filename string
		hash     string
		start    int
		want     VersionRef
		found    bool
	}{
		{name: "most recent touch", filename: "a.js", want: VersionRef{Index: 0, Timestamp: 20}, found: true},
		{name: "matching older hash", filename: "a.js", hash: "h0", want: VersionRef{Index: 1, Timestamp: 10}, found: true},
		{name: "start skips newer", filename: "a.js", start: 1, want: VersionRef{Index: 1, Timestamp: 10}, found: true},
		{name: "omit entries count", filename: "b.js", want: VersionRef{Index: 1, Timestamp: 10}, found: true},
		{name: "unknown hash", filename: "a.js", hash: "nope"},
		{name: "unknown file", filename: "c.js"},
		{name: "start past end", filename: "a.js", start: 5},
		{name: "negative start", filename: "a.js", start: -3, want: VersionRef{Index: 0, Timestamp: 20}, found: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := log.FindVersion(tt.filename, tt.hash, tt.start)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVersionLog_FirstExpiredIndex(t *testing.T) {
	// Indices 0..3 with timestamps 400, 300, 200, 100.
	log := NewVersionLog(
		Snapshot{Timestamp: 100},
		Snapshot{Timestamp: 200},
		Snapshot{Timestamp: 300},
		Snapshot{Timestamp: 400},
	)

	tests := []struct {
		name        string
		maxVersions *int
		deadline    *int64
		want        int
	}{
		{name: "no bounds", want: 4},
		{name: "versions only", maxVersions: ptr(1), want: 2},
		{name: "versions zero", maxVersions: ptr(0), want: 1},
		{name: "versions larger than log", maxVersions: ptr(10), want: 4},
		{name: "deadline only", deadline: ptr(int64(250)), want: 2},
		{name: "deadline equal is fresh", deadline: ptr(int64(300)), want: 2},
		{name: "both, version bound keeps stale snapshot", maxVersions: ptr(2), deadline: ptr(int64(350)), want: 3},
		{name: "both, time bound keeps old index", maxVersions: ptr(0), deadline: ptr(int64(150)), want: 3},
		{name: "both hold", maxVersions: ptr(1), deadline: ptr(int64(250)), want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, log.FirstExpiredIndex(tt.maxVersions, tt.deadline))
			assert.Len(t, log.FreshVersions(tt.maxVersions, tt.deadline), tt.want)
		})
	}
}

func TestVersionLog_Versions(t *testing.T) {
	log := NewVersionLog(Snapshot{Timestamp: 3}, Snapshot{Timestamp: 2}, Snapshot{Timestamp: 1})

	assert.Len(t, log.Versions(0, 3), 3)
	assert.Len(t, log.Versions(1, 100), 2)
	assert.Len(t, log.Versions(-1, 1), 1)
	assert.Empty(t, log.Versions(2, 1))
	assert.NotNil(t, log.Versions(5, 6))

	// Returned slices are copies.
	v := log.Versions(0, 1)
	v[0].Timestamp = 99
	last, _ := log.LastVersion()
	assert.Equal(t, int64(3), last.Timestamp)
}

func TestVersionLog_RoundTrip(t *testing.T) {
	original := NewVersionLog(
		Snapshot{Timestamp: 10, Upload: []FileRecord{rec("a.js", "h0")}, Omit: []FileRecord{}},
		Snapshot{Timestamp: 20, Upload: []FileRecord{rec("a.js", "h1")}, Omit: []FileRecord{rec("b.js", "h2")}},
	)

	data, err := MarshalLog(original.Snapshots())
	require.NoError(t, err)

	parsed, err := ParseVersionLog(data)
	require.NoError(t, err)
	assert.Equal(t, original.Snapshots(), parsed.Snapshots())
}

func TestMarshalLog_Format(t *testing.T) {
	data, err := MarshalLog([]Snapshot{{Timestamp: 1, Upload: []FileRecord{rec("a.js", "h")}}})
	require.NoError(t, err)

	want := `[
  {
    "timestamp": 1,
    "upload": [
      {
        "filename": "a.js",
        "hash": "h"
      }
    ],
    "omit": []
  }
]`
	assert.Equal(t, want, string(data))

	empty, err := MarshalLog(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))
}

func TestParseVersionLog_Corrupt(t *testing.T) {
	for _, data := range []string{"", "{", `{"timestamp":1}`, `[{"timestamp":"x"}]`} {
		_, err := ParseVersionLog([]byte(data))
		assert.ErrorIs(t, err, ErrLogCorrupt, "input %q", data)
	}
}

func TestParseVersionLog_AcceptsMissingLists(t *testing.T) {
	log, err := ParseVersionLog([]byte(`[{"timestamp": 5}]`))
	require.NoError(t, err)
	assert.Equal(t, 1, log.Len())

	_, found := log.FindVersion("a.js", "", 0)
	assert.False(t, found)
}
