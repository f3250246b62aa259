// Package repair implements the four consistency-restoring passes of
// spec §4.3, run after every apply: zombie reconnection, obsolete
// pseudo-edge cleanup, folder-conflict resolution detection, and
// cyclic-path repair. The two passes that traverse the graph (the
// zombie pass's ancestor search and cyclic-path repair) use an explicit
// stack (grounded on the teacher's wouldCreateCycle BFS-with-visited-set
// idiom, generalized here to DFS) rather than recursion, so a
// pathologically deep graph cannot blow the Go stack; the other two
// passes only scan each vertex's own edges.
package repair

import (
	"github.com/weftvcs/weft/internal/graph"
	"github.com/weftvcs/weft/internal/pristine"
)

// Report summarises what a repair pass changed, for logging and for
// tests to assert against.
type Report struct {
	ZombiesReconnected int
	PseudoEdgesRemoved int
	CyclesBroken       int
	FolderConflicts    []graph.Position
}

// RunAll runs every repair pass in the fixed order spec §4.3 requires
// (zombies before pseudo-edge cleanup, since cleanup must not strand a
// vertex repair would otherwise have reconnected).
func RunAll(tx *pristine.Tx, channelName string) (Report, error) {
	var report Report

	zr, err := RepairZombies(tx, channelName)
	if err != nil {
		return report, err
	}
	report.ZombiesReconnected = zr

	pr, err := CleanObsoletePseudoEdges(tx, channelName)
	if err != nil {
		return report, err
	}
	report.PseudoEdgesRemoved = pr

	conflicts, err := DetectFolderConflictResolutions(tx, channelName)
	if err != nil {
		return report, err
	}
	report.FolderConflicts = conflicts

	cr, err := RepairCyclicPaths(tx, channelName)
	if err != nil {
		return report, err
	}
	report.CyclesBroken = cr

	return report, nil
}
