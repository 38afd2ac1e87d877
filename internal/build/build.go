// Package build holds process-wide build/version metadata, grounded
// on the teacher's own Build.RunStart reference in data_source.go
// (global Build struct) — here reconstructed as a small, explicitly
// initialized global rather than inferred from an unretrieved file,
// since the teacher's own build-info source was not part of the
// retrieval pack.
package build

import "time"

// Info is the fixed set of build-time facts that `vxcore version` and
// log lines report.
type Info struct {
	Version   string
	GitCommit string
	RunStart  time.Time
}

// Build carries the Version/GitCommit defaults below; RunStart is set
// once by Start when a session begins. The `vxcore version` subcommand
// only reads it, and it is read thereafter without synchronization.
var Build = Info{
	Version:   "dev",
	GitCommit: "unknown",
}

// Start records RunStart as now; called once when the supervisor
// begins a session, matching the teacher's use of Build.RunStart as
// the fixed reference timestamp embedded in every output file.
func Start(now time.Time) {
	Build.RunStart = now
}

// String renders a one-line summary for `vxcore version` and startup logs.
func (i Info) String() string {
	return i.Version + " (" + i.GitCommit + ")"
}
