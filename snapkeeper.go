package snapkeeper

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/inconshreveable/log15"

	"github.com/GESkunkworks/snapkeeper/retention"
)

// A Patrol contains the properties and methods necessary to run one
// snapshot lifecycle pass over an AWS account: find volumes opted in via
// the marker tag, snapshot them, and delete tool-managed snapshots that
// have outlived the retention policy. Create a PatrolInput object and
// pass it to this package's New method to get a new Patrol. From there
// call the Start method. When that is complete the results can be read
// from the exported fields or summarized with GetSummary.
type Patrol struct {
	// After the Start method is complete Created will contain the IDs
	// of the snapshots created during this patrol, one per volume that
	// carried the marker tag and whose CreateSnapshot call succeeded.
	Created []string

	// After the Start method is complete Deleted will contain the IDs
	// of the managed snapshots deleted because their age exceeded the
	// retention policy.
	Deleted []string

	// After the Start method is complete Failed will contain the IDs
	// of volumes or snapshots whose create/delete call failed and was
	// skipped. A non-empty Failed does not fail the patrol.
	Failed []string

	account  string
	session  *session.Session
	log      log15.Logger
	marker   retention.Marker
	policy   retention.Policy
	snsTopic string
	dryRun   bool
	pageSize int
	maxPages int
	now      time.Time
	summary  []string
}

// PatrolInput provides configuration inputs for starting a new Patrol.
type PatrolInput struct {
	// AWS Session to use for credentials for this patrol.
	//
	// Session is a required field
	Session *session.Session

	// Marker is the tag predicate that opts a volume into automated
	// snapshotting.
	//
	// Marker is a required field
	Marker *retention.Marker

	// Policy is the retention policy applied to managed snapshots.
	// A policy with a non-positive MaxAge is rejected by New before
	// any AWS call is made.
	//
	// Policy is a required field
	Policy *retention.Policy

	// SNSTopic is the ARN of a topic to publish the run summary to.
	// Empty disables notification. Publish failures are logged and
	// never fail the patrol.
	SNSTopic *string

	// DryRun logs what would be created and deleted without calling
	// CreateSnapshot or DeleteSnapshot.
	DryRun *bool

	// Maximum number of snapshots per page when listing snapshots
	// Default: 500
	PageSize *int

	// Maximum number of pages of volumes to process from the
	// DescribeVolumes operation
	// Default: 25
	MaxPages *int

	// Patrol uses log15 (https://github.com/inconshreveable/log15)
	// as an opinioned logging framework. If no Logger is provided
	// Patrol will set up its own handler to stdout.
	Logger *log15.Logger
}

// New returns a Patrol object whose methods can be called to perform a
// snapshot lifecycle pass. This method accepts a PatrolInput struct which
// can be used to setup the Patrol inputs. This method will set any
// default values for any property that was not specified in the
// PatrolInput object.
func New(input *PatrolInput) (patrol *Patrol, err error) {
	var p Patrol

	if input.Session == nil {
		err = errors.New("Session is required")
		return &p, err
	}
	p.session = input.Session

	if input.Marker == nil {
		err = errors.New("Marker is required")
		return &p, err
	}
	p.marker = *input.Marker

	if input.Policy == nil {
		err = errors.New("Policy is required")
		return &p, err
	}
	err = input.Policy.Validate()
	if err != nil {
		return &p, err
	}
	p.policy = *input.Policy

	if input.SNSTopic != nil {
		p.snsTopic = *input.SNSTopic
	}

	if input.DryRun != nil {
		p.dryRun = *input.DryRun
	}

	DefaultPageSize := 500
	if input.PageSize == nil {
		input.PageSize = &DefaultPageSize
	}
	p.pageSize = *input.PageSize

	DefaultMaxPages := 25
	if input.MaxPages == nil {
		input.MaxPages = &DefaultMaxPages
	}
	p.maxPages = *input.MaxPages

	if input.Logger == nil {
		p.setDefaultLogger()
	} else {
		p.log = *input.Logger
	}
	return &p, err
}

// setDefaultLogger just sets up a logger for the Patrol
// set to Info and stdout by default.
func (p *Patrol) setDefaultLogger() {
	p.log = log15.New()
	p.log.SetHandler(
		log15.LvlFilterHandler(
			log15.LvlInfo,
			log15.StreamHandler(os.Stdout, log15.LogfmtFormat()),
		),
	)
}

func (p *Patrol) getAccountNumber() (err error) {
	p.log.Debug("getting account number")
	svcSts := sts.New(p.session)
	gcii := sts.GetCallerIdentityInput{}
	gci, err := svcSts.GetCallerIdentity(&gcii)
	if err != nil {
		return err
	}
	p.account = *gci.Account
	return err
}

// getVolumes describes all volumes carrying the marker tag including
// pagination handling. The tag filter is pushed down to the API but the
// result is re-checked with the marker predicate since the API filter
// cannot express case-insensitive matching.
func (p *Patrol) getVolumes() (vols []retention.Volume, err error) {
	p.log.Info("grabbing all volumes with marker tag", "key", p.marker.Key)
	svc := ec2.New(p.session)
	input := ec2.DescribeVolumesInput{
		Filters: p.volumeFilters(),
	}
	results, err := svc.DescribeVolumes(&input)
	if err != nil {
		return vols, err
	}
	ec2Vols := results.Volumes
	i := 2
	max := p.maxPages
	for i < max {
		p.log.Debug("handling volume results", "page", i)
		if results.NextToken != nil {
			input = ec2.DescribeVolumesInput{
				Filters:   p.volumeFilters(),
				NextToken: results.NextToken,
			}
			results, err = svc.DescribeVolumes(&input)
			if err != nil {
				return vols, err
			}
			ec2Vols = append(ec2Vols, results.Volumes...)
		} else {
			break
		}
		i += 1
	}
	for _, vol := range ec2Vols {
		vols = append(vols, retention.Volume{
			ID:   *vol.VolumeId,
			Tags: tagsToMap(vol.Tags),
		})
	}
	selected := retention.SelectVolumesToSnapshot(vols, p.marker)
	p.log.Info("filtered volumes by marker", "pre-filter", len(vols), "post-filter", len(selected))
	return selected, err
}

// volumeFilters builds the server-side tag filter for DescribeVolumes.
// When the marker is case-insensitive no tag filter is sent and the
// marker predicate does all the work client-side.
func (p *Patrol) volumeFilters() (filters []*ec2.Filter) {
	if p.marker.IgnoreCase {
		return filters
	}
	name := fmt.Sprintf("tag:%s", p.marker.Key)
	var values []*string
	for i := range p.marker.Values {
		values = append(values, &p.marker.Values[i])
	}
	filters = append(filters, &ec2.Filter{
		Name:   &name,
		Values: values,
	})
	return filters
}

// createSnapshot snapshots a single volume, attaching the tag set that
// marks it as managed by this tool. Returns the new snapshot ID.
func (p *Patrol) createSnapshot(vol retention.Volume) (snapID string, err error) {
	description := fmt.Sprintf("snapkeeper automated snapshot for %s", vol.ID)
	if p.dryRun {
		p.log.Info("dry-run: would create snapshot", "volume", vol.ID)
		return snapID, err
	}
	p.log.Info("creating snapshot", "volume", vol.ID)
	svc := ec2.New(p.session)
	resourceType := ec2.ResourceTypeSnapshot
	input := ec2.CreateSnapshotInput{
		VolumeId:    &vol.ID,
		Description: &description,
		TagSpecifications: []*ec2.TagSpecification{
			{
				ResourceType: &resourceType,
				Tags:         mapToTags(retention.BuildSnapshotTags(vol, p.now)),
			},
		},
	}
	result, err := svc.CreateSnapshot(&input)
	if err != nil {
		return snapID, err
	}
	snapID = *result.SnapshotId
	p.log.Info("created snapshot", "snapshot", snapID, "volume", vol.ID)
	return snapID, err
}

// getManagedSnapshots describes all snapshots for the given volume that
// are owned by this account and carry the management tag, including
// pagination handling.
func (p *Patrol) getManagedSnapshots(volID string) (snaps []retention.Snapshot, err error) {
	svc := ec2.New(p.session)
	var accounts []*string
	accounts = append(accounts, &p.account)
	maxResults := int64(p.pageSize)
	volumeIDFilter := "volume-id"
	tagFilter := fmt.Sprintf("tag:%s", retention.TagManagedBy)
	managedBy := retention.ManagedByValue
	dsi := ec2.DescribeSnapshotsInput{
		OwnerIds:   accounts,
		MaxResults: &maxResults,
		Filters: []*ec2.Filter{
			{Name: &volumeIDFilter, Values: []*string{&volID}},
			{Name: &tagFilter, Values: []*string{&managedBy}},
		},
	}
	pageNum := 0
	err = svc.DescribeSnapshotsPages(&dsi,
		func(page *ec2.DescribeSnapshotsOutput, lastPage bool) bool {
			pageNum++
			p.log.Debug("processing snapshot page..", "page", pageNum, "volume", volID)
			for _, snap := range page.Snapshots {
				snaps = append(snaps, retention.Snapshot{
					ID:        *snap.SnapshotId,
					VolumeID:  *snap.VolumeId,
					Tags:      tagsToMap(snap.Tags),
					StartTime: *snap.StartTime,
				})
			}
			return pageNum <= p.maxPages
		})
	return snaps, err
}

// cleanupSnapshots deletes the managed snapshots of a single volume that
// have outlived the retention policy. Individual delete failures are
// logged and skipped so one stuck snapshot doesn't block the rest.
func (p *Patrol) cleanupSnapshots(volID string) (err error) {
	snaps, err := p.getManagedSnapshots(volID)
	if err != nil {
		return err
	}
	stale := retention.SelectSnapshotsToDelete(snaps, p.policy, p.now)
	p.log.Debug(
		"filtered snapshots by age", "volume", volID,
		"managed", len(snaps), "stale", len(stale),
	)
	svc := ec2.New(p.session)
	for _, snap := range stale {
		if p.dryRun {
			p.log.Info(
				"dry-run: would delete snapshot", "snapshot", snap.ID,
				"created", snap.StartTime.Format("2006-01-02"),
			)
			continue
		}
		input := ec2.DeleteSnapshotInput{
			SnapshotId: &snap.ID,
		}
		_, derr := svc.DeleteSnapshot(&input)
		if derr != nil {
			p.log.Error("failed to delete snapshot, skipping", "snapshot", snap.ID, "error", derr.Error())
			p.Failed = append(p.Failed, snap.ID)
			continue
		}
		p.log.Info(
			"deleted snapshot", "snapshot", snap.ID,
			"created", snap.StartTime.Format("2006-01-02"),
		)
		p.Deleted = append(p.Deleted, snap.ID)
	}
	return err
}

// Start kicks off the patrol. After this completes the results can be
// read from the exported fields or summarized with GetSummary. The
// reference instant for all age comparisons is taken once here so every
// decision in the run is made against the same clock reading.
func (p *Patrol) Start() (err error) {
	p.now = time.Now().UTC()
	err = p.getAccountNumber()
	if err != nil {
		return err
	}
	vols, err := p.getVolumes()
	if err != nil {
		// without inventory no decision is possible
		return err
	}
	if len(vols) == 0 {
		p.log.Info("no volumes carry the marker tag, nothing to do")
		p.setSummary()
		return err
	}
	for _, vol := range vols {
		snapID, cerr := p.createSnapshot(vol)
		if cerr != nil {
			p.log.Error("failed to create snapshot, skipping volume", "volume", vol.ID, "error", cerr.Error())
			p.Failed = append(p.Failed, vol.ID)
		} else if snapID != "" {
			p.Created = append(p.Created, snapID)
		}
		cerr = p.cleanupSnapshots(vol.ID)
		if cerr != nil {
			p.log.Error("failed to clean up snapshots for volume", "volume", vol.ID, "error", cerr.Error())
			p.Failed = append(p.Failed, vol.ID)
		}
	}
	p.setSummary()
	err = p.publishSummary()
	if err != nil {
		// notification is best effort
		p.log.Error("failed to publish summary", "error", err.Error())
		err = nil
	}
	return err
}

// GetSummary returns a human readable account of what the patrol did,
// one line per entry.
func (p *Patrol) GetSummary() (msg []string) {
	return p.summary
}

// setSummary builds the run summary from the patrol results.
func (p *Patrol) setSummary() {
	var msg []string
	if p.dryRun {
		msg = append(msg, "dry-run: no snapshots were created or deleted")
	}
	if len(p.Created) > 0 {
		msg = append(msg, fmt.Sprintf("%d snapshot(s) created: %s",
			len(p.Created), strings.Join(p.Created, ", ")))
	} else {
		msg = append(msg, "No snapshots created.")
	}
	if len(p.Deleted) > 0 {
		msg = append(msg, fmt.Sprintf("%d snapshot(s) deleted after exceeding retention: %s",
			len(p.Deleted), strings.Join(p.Deleted, ", ")))
	} else {
		msg = append(msg, "No snapshots deleted.")
	}
	if len(p.Failed) > 0 {
		msg = append(msg, fmt.Sprintf("%d resource(s) skipped due to errors: %s",
			len(p.Failed), strings.Join(dedupeString(p.Failed), ", ")))
	}
	p.summary = msg
}

// publishSummary sends the run summary to the configured SNS topic. A
// patrol with no topic configured publishes nothing.
func (p *Patrol) publishSummary() (err error) {
	if p.snsTopic == "" {
		return err
	}
	if p.dryRun {
		p.log.Info("dry-run: would publish summary", "topic", p.snsTopic)
		return err
	}
	svc := sns.New(p.session)
	subject := "EBS Snapshot Notification"
	message := strings.Join(p.GetSummary(), "\n")
	input := sns.PublishInput{
		TopicArn: &p.snsTopic,
		Subject:  &subject,
		Message:  &message,
	}
	_, err = svc.Publish(&input)
	if err != nil {
		return err
	}
	p.log.Info("published summary", "topic", p.snsTopic)
	return err
}
