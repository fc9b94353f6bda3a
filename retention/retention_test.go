package retention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func managedTags() map[string]string {
	return map[string]string{TagManagedBy: ManagedByValue}
}

func TestSelectVolumesToSnapshot(t *testing.T) {
	marker := Marker{Key: "Snapshot", Values: []string{"Yes"}}
	vols := []Volume{
		{ID: "v1", Tags: map[string]string{"Snapshot": "Yes"}},
		{ID: "v2", Tags: map[string]string{}},
		{ID: "v3", Tags: map[string]string{"Snapshot": "No"}},
		{ID: "v4", Tags: map[string]string{"snapshot": "Yes"}},
		{ID: "v5", Tags: nil},
		{ID: "v6", Tags: map[string]string{"Snapshot": "Yes", "Name": "data"}},
	}

	selected := SelectVolumesToSnapshot(vols, marker)
	require.Len(t, selected, 2)
	assert.Equal(t, "v1", selected[0].ID)
	assert.Equal(t, "v6", selected[1].ID)

	// same input, same output
	again := SelectVolumesToSnapshot(vols, marker)
	assert.Equal(t, selected, again)
}

func TestSelectVolumesToSnapshotIgnoreCase(t *testing.T) {
	marker := Marker{Key: "Snapshot", Values: []string{"Yes"}, IgnoreCase: true}
	vols := []Volume{
		{ID: "v1", Tags: map[string]string{"snapshot": "yes"}},
		{ID: "v2", Tags: map[string]string{"SNAPSHOT": "YES"}},
		{ID: "v3", Tags: map[string]string{"Snapshot": "No"}},
	}
	selected := SelectVolumesToSnapshot(vols, marker)
	require.Len(t, selected, 2)
	assert.Equal(t, "v1", selected[0].ID)
	assert.Equal(t, "v2", selected[1].ID)
}

func TestSelectVolumesToSnapshotMultipleValues(t *testing.T) {
	marker := Marker{Key: "Snapshot", Values: []string{"Yes", "True"}}
	vols := []Volume{
		{ID: "v1", Tags: map[string]string{"Snapshot": "True"}},
		{ID: "v2", Tags: map[string]string{"Snapshot": "1"}},
	}
	selected := SelectVolumesToSnapshot(vols, marker)
	require.Len(t, selected, 1)
	assert.Equal(t, "v1", selected[0].ID)
}

func TestSelectSnapshotsToDelete(t *testing.T) {
	policy := Policy{MaxAge: 30 * 24 * time.Hour}
	now := day("2024-02-01T00:00:00Z")
	snaps := []Snapshot{
		{ID: "s1", VolumeID: "v1", StartTime: day("2024-01-01T00:00:00Z"), Tags: managedTags()},
		{ID: "s2", VolumeID: "v1", StartTime: day("2024-01-30T00:00:00Z"), Tags: managedTags()},
	}

	selected := SelectSnapshotsToDelete(snaps, policy, now)
	require.Len(t, selected, 1)
	assert.Equal(t, "s1", selected[0].ID)
}

func TestSelectSnapshotsToDeleteBoundary(t *testing.T) {
	policy := Policy{MaxAge: 10 * 24 * time.Hour}
	now := day("2024-02-01T00:00:00Z")

	exact := Snapshot{ID: "s1", StartTime: now.Add(-policy.MaxAge), Tags: managedTags()}
	over := Snapshot{ID: "s2", StartTime: now.Add(-policy.MaxAge - time.Second), Tags: managedTags()}

	selected := SelectSnapshotsToDelete([]Snapshot{exact, over}, policy, now)
	require.Len(t, selected, 1)
	assert.Equal(t, "s2", selected[0].ID, "age exactly equal to the retention period is retained")
}

func TestSelectSnapshotsToDeleteSkipsUnmanaged(t *testing.T) {
	policy := Policy{MaxAge: 24 * time.Hour}
	now := day("2024-02-01T00:00:00Z")
	snaps := []Snapshot{
		{ID: "s1", StartTime: now.Add(-100 * 24 * time.Hour), Tags: map[string]string{}},
		{ID: "s2", StartTime: now.Add(-100 * 24 * time.Hour), Tags: nil},
		{ID: "s3", StartTime: now.Add(-100 * 24 * time.Hour), Tags: map[string]string{TagManagedBy: "someone-else"}},
		{ID: "s4", StartTime: now.Add(-100 * 24 * time.Hour), Tags: managedTags()},
	}

	selected := SelectSnapshotsToDelete(snaps, policy, now)
	require.Len(t, selected, 1)
	assert.Equal(t, "s4", selected[0].ID)
}

func TestSelectSnapshotsToDeleteIgnoresVolumeLiveness(t *testing.T) {
	// the source volume of s1 is long gone; only tags and age matter
	policy := Policy{MaxAge: 24 * time.Hour}
	now := day("2024-02-01T00:00:00Z")
	snaps := []Snapshot{
		{ID: "s1", VolumeID: "vol-deleted-years-ago", StartTime: now.Add(-48 * time.Hour), Tags: managedTags()},
	}
	selected := SelectSnapshotsToDelete(snaps, policy, now)
	require.Len(t, selected, 1)
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, Policy{MaxAge: time.Hour}.Validate())
	assert.Error(t, Policy{}.Validate())
	assert.Error(t, Policy{MaxAge: -time.Hour}.Validate())
}

func TestIsManaged(t *testing.T) {
	assert.True(t, IsManaged(Snapshot{Tags: managedTags()}))
	assert.False(t, IsManaged(Snapshot{}))
	assert.False(t, IsManaged(Snapshot{Tags: map[string]string{TagManagedBy: "other"}}))
}

func TestBuildSnapshotTags(t *testing.T) {
	ts := day("2024-03-15T23:59:00Z")
	vol := Volume{ID: "vol-0abc", Tags: map[string]string{"Snapshot": "Yes", "Name": "pg-data"}}

	tags := BuildSnapshotTags(vol, ts)
	assert.Equal(t, ManagedByValue, tags[TagManagedBy])
	assert.Equal(t, "vol-0abc", tags[TagSourceVolume])
	assert.Equal(t, "2024-03-15", tags[TagCreatedOn])
	assert.Equal(t, "pg-data", tags["Name"])

	// no Name tag on the volume, none on the snapshot
	bare := BuildSnapshotTags(Volume{ID: "vol-1"}, ts)
	_, ok := bare["Name"]
	assert.False(t, ok)
	assert.Len(t, bare, 3)
}
