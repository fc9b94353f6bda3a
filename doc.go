// Package snapkeeper automates the EBS snapshot lifecycle for volumes
// that opt in via a marker tag. Each patrol over an account creates a
// fresh snapshot of every volume tagged with the marker (by default
// Snapshot=Yes), tags the new snapshot so the tool can recognize its own
// work later, and deletes tool-managed snapshots that have outlived the
// retention policy. An optional SNS notification summarizes the run.
//
// Safety
//
// snapkeeper only ever deletes snapshots carrying its own management tag
// (snapkeeper:managed-by=snapkeeper). Snapshots created by hand or by
// other tooling in the same account are never considered for deletion no
// matter how old they are. A snapshot whose age is exactly equal to the
// retention period is retained; it becomes eligible on the next patrol.
//
// The retention period must be a positive number of days. A zero or
// negative retention is rejected at configuration time rather than being
// treated as "delete everything now".
//
// Usage
//
// Create a snapkeeper.Patrol and call the Start() method on it. After
// the patrol is complete you can collect a summary of what was created
// and deleted by calling GetSummary().
//
// Sample
//
// Below is a sample main package you could use to start a snapkeeper
// Patrol and collect results.
//
//   package main
//
//   import (
//   	"fmt"
//   	"time"
//
//   	"github.com/GESkunkworks/snapkeeper"
//   	"github.com/GESkunkworks/snapkeeper/retention"
//   	"github.com/aws/aws-sdk-go/aws/session"
//   )
//
//   func main() {
//   	sess := session.Must(session.NewSession())
//   	marker := retention.Marker{Key: "Snapshot", Values: []string{"Yes"}}
//   	policy := retention.Policy{MaxAge: 7 * 24 * time.Hour}
//   	patrolInput := snapkeeper.PatrolInput{
//   		Session: sess,
//   		Marker:  &marker,
//   		Policy:  &policy,
//   	}
//   	patrol, err := snapkeeper.New(&patrolInput)
//   	if err != nil { panic(err) }
//   	err = patrol.Start()
//   	if err != nil { panic(err) }
//   	for _, line := range patrol.GetSummary() {
//   		fmt.Println(line)
//   	}
//   }
package snapkeeper
