// Package retention holds the pure decision logic for snapkeeper: which
// volumes are opted into snapshotting and which existing snapshots have
// aged out. Nothing in this package talks to AWS or reads the clock; the
// caller lists resources, converts them to the types below, and acts on
// whatever comes back.
package retention

import (
	"errors"
	"strings"
	"time"
)

// Tag keys snapkeeper writes onto every snapshot it creates. These form a
// contract: SelectSnapshotsToDelete only ever considers snapshots carrying
// TagManagedBy with ManagedByValue, so snapshots created by hand or by
// other tooling in the same account are never touched.
const (
	TagManagedBy    = "snapkeeper:managed-by"
	TagSourceVolume = "snapkeeper:source-volume"
	TagCreatedOn    = "snapkeeper:created-on"

	ManagedByValue = "snapkeeper"
)

// Volume is an EBS volume reduced to what selection needs.
type Volume struct {
	ID   string
	Tags map[string]string
}

// Snapshot is an EBS snapshot reduced to what selection needs. VolumeID
// may refer to a volume that no longer exists; deletion eligibility never
// depends on the source volume still being around.
type Snapshot struct {
	ID        string
	VolumeID  string
	Tags      map[string]string
	StartTime time.Time
}

// Marker is the tag predicate that opts a volume into automated
// snapshotting, e.g. key "Snapshot" with values ["Yes"]. Matching is
// exact and case-sensitive unless IgnoreCase is set.
type Marker struct {
	Key        string
	Values     []string
	IgnoreCase bool
}

// Matches reports whether the given tag map carries the marker.
func (m Marker) Matches(tags map[string]string) bool {
	if len(tags) == 0 {
		return false
	}
	for k, v := range tags {
		if !m.keyEqual(k) {
			continue
		}
		for _, want := range m.Values {
			if m.valueEqual(v, want) {
				return true
			}
		}
	}
	return false
}

func (m Marker) keyEqual(k string) bool {
	if m.IgnoreCase {
		return strings.EqualFold(k, m.Key)
	}
	return k == m.Key
}

func (m Marker) valueEqual(have, want string) bool {
	if m.IgnoreCase {
		return strings.EqualFold(have, want)
	}
	return have == want
}

// Policy is the retention policy: how old a managed snapshot may get
// before it becomes eligible for deletion.
type Policy struct {
	MaxAge time.Duration
}

// Validate rejects a non-positive MaxAge. A zero or negative retention is
// a configuration mistake, not a request to delete everything, so it must
// fail before any cloud call is made.
func (p Policy) Validate() error {
	if p.MaxAge <= 0 {
		return errors.New("retention period must be greater than zero")
	}
	return nil
}

// SelectVolumesToSnapshot returns the subset of volumes carrying the
// marker, in input order.
func SelectVolumesToSnapshot(volumes []Volume, m Marker) (selected []Volume) {
	for _, vol := range volumes {
		if m.Matches(vol.Tags) {
			selected = append(selected, vol)
		}
	}
	return selected
}

// IsManaged reports whether the snapshot carries snapkeeper's management
// tag. Only managed snapshots are ever considered for deletion.
func IsManaged(s Snapshot) bool {
	return s.Tags[TagManagedBy] == ManagedByValue
}

// SelectSnapshotsToDelete returns the managed snapshots whose age at the
// given instant strictly exceeds the policy's MaxAge, in input order. A
// snapshot exactly MaxAge old is retained; it becomes eligible on the next
// run. Snapshots without the management tag are skipped no matter how old
// they are.
func SelectSnapshotsToDelete(snapshots []Snapshot, p Policy, now time.Time) (selected []Snapshot) {
	for _, snap := range snapshots {
		if !IsManaged(snap) {
			continue
		}
		if now.Sub(snap.StartTime) > p.MaxAge {
			selected = append(selected, snap)
		}
	}
	return selected
}

// BuildSnapshotTags derives the tag set for a snapshot of the given volume
// taken at the given instant. The management tag written here is what
// SelectSnapshotsToDelete keys on later. The volume's Name tag, when
// present, is carried over so snapshot listings stay readable in the
// console.
func BuildSnapshotTags(vol Volume, ts time.Time) map[string]string {
	tags := map[string]string{
		TagManagedBy:    ManagedByValue,
		TagSourceVolume: vol.ID,
		TagCreatedOn:    ts.UTC().Format("2006-01-02"),
	}
	if name, ok := vol.Tags["Name"]; ok {
		tags["Name"] = name
	}
	return tags
}
