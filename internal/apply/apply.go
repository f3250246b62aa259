package apply

import (
	"context"
	"encoding/binary"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/weftvcs/weft/internal/change"
	"github.com/weftvcs/weft/internal/graph"
	"github.com/weftvcs/weft/internal/merkle"
	"github.com/weftvcs/weft/internal/pristine"
	"github.com/weftvcs/weft/internal/repair"
)

// applyTracer is the OTel tracer for change-application spans. It uses
// the global provider, a no-op until telemetry.Init runs (grounded on
// internal/storage/dolt/store.go's doltTracer).
var applyTracer = otel.Tracer("github.com/weftvcs/weft/apply")

var applyMetrics struct {
	appliedCount metric.Int64Counter
	conflictEdit metric.Int64Counter
}

func init() {
	m := otel.Meter("github.com/weftvcs/weft/apply")
	applyMetrics.appliedCount, _ = m.Int64Counter("weft.apply.count",
		metric.WithDescription("changes successfully applied"),
		metric.WithUnit("{change}"),
	)
	applyMetrics.conflictEdit, _ = m.Int64Counter("weft.apply.edge_map_count",
		metric.WithDescription("edge-map atoms applied"),
		metric.WithUnit("{atom}"),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ApplyChange applies c to channel, returning its allocated ChangeID.
// Runs inside the pristine store's single writer transaction with
// ErrLocked-class contention retried by Store.Update (spec §4.2).
func ApplyChange(ctx context.Context, store *pristine.Store, channelName string, c *change.Change) (graph.ChangeID, error) {
	ctx, span := applyTracer.Start(ctx, "apply.ApplyChange", trace.WithAttributes(
		attribute.String("weft.channel", channelName),
	))
	var id graph.ChangeID
	err := store.Update(ctx, func(tx *pristine.Tx) error {
		var err error
		id, err = applyChangeTx(tx, channelName, c)
		return err
	})
	defer endSpan(span, err)
	if err != nil {
		return 0, err
	}
	applyMetrics.appliedCount.Add(ctx, 1, metric.WithAttributes(attribute.String("weft.channel", channelName)))
	span.SetAttributes(attribute.Int64("weft.change_id", int64(id)))
	return id, nil
}

func applyChangeTx(tx *pristine.Tx, channelName string, c *change.Change) (graph.ChangeID, error) {
	hash := c.Hash()

	if already, err := tx.ChanGet(channelName, pristine.TableChanges, hash[:]); err != nil {
		return 0, err
	} else if already != nil {
		return 0, fmt.Errorf("%w: %s", ErrAlreadyApplied, change.ShortHash(hash))
	}

	for _, dep := range c.Dependencies {
		v, err := tx.ChanGet(channelName, pristine.TableChanges, dep[:])
		if err != nil {
			return 0, err
		}
		if v == nil {
			return 0, fmt.Errorf("%w: %s", ErrDependencyMissing, change.ShortHash(dep))
		}
	}

	id, err := graph.InternChange(tx, hash, func() (graph.ChangeID, error) {
		n, err := tx.NextSequence(pristine.RootInternal)
		return graph.ChangeID(n), err
	})
	if err != nil {
		return 0, err
	}

	touched := make(map[graph.Position]struct{})

	if err := applyPhaseA(tx, channelName, id, c, touched); err != nil {
		return 0, err
	}
	if err := applyPhaseB(tx, channelName, id, c, touched); err != nil {
		return 0, err
	}
	if err := checkPartialScope(tx, channelName, touched); err != nil {
		return 0, err
	}
	if err := recordTouchedFiles(tx, id, touched); err != nil {
		return 0, err
	}
	if _, err := repair.RunAll(tx, channelName); err != nil {
		return 0, err
	}

	for _, dep := range c.Dependencies {
		depID, ok, err := graph.IDOf(tx, dep)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("%w: dependency %s not interned", pristine.ErrCorruption, change.ShortHash(dep))
		}
		if err := graph.PutDependency(tx, id, depID); err != nil {
			return 0, err
		}
	}

	counter, err := tx.NextApplyCounter(channelName)
	if err != nil {
		return 0, err
	}
	counterKey := make([]byte, 8)
	binary.BigEndian.PutUint64(counterKey, counter)

	idBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(idBuf, uint64(id))
	if err := tx.ChanPut(channelName, pristine.TableChanges, hash[:], idBuf); err != nil {
		return 0, err
	}
	if err := tx.ChanPut(channelName, pristine.TableRevChanges, counterKey, hash[:]); err != nil {
		return 0, err
	}
	if err := tx.TouchChannel(channelName); err != nil {
		return 0, err
	}

	prev, _, err := merkle.CurrentState(tx, channelName)
	if err != nil {
		return 0, err
	}
	next := merkle.Roll(prev, hash, counter)
	if err := merkle.RecordState(tx, channelName, counter, next); err != nil {
		return 0, err
	}
	return id, nil
}

// applyPhaseA creates every NewVertex atom's vertex and its context
// edges before any edge-map atom runs (spec §4.2 "Phase A: NewVertex
// and non-deletion edges; Phase B: deletion edges" — deletions are
// expressed as edge-map atoms here, so phase B is simply "every
// edge-map atom"). Every vertex and anchor position it touches is
// recorded into touched so the caller can resolve which already-bound
// inodes this change affects.
func applyPhaseA(tx *pristine.Tx, channelName string, id graph.ChangeID, c *change.Change, touched map[graph.Position]struct{}) error {
	for hi, hunk := range c.Hunks {
		if len(hunk.Atoms) == 0 {
			return fmt.Errorf("%w: hunk %d: empty", ErrInvalidChange, hi)
		}
		for ai, atom := range hunk.Atoms {
			if atom.Kind != change.AtomNewVertex {
				continue
			}
			nv := atom.NewVertex
			if nv == nil || nv.End < nv.Start || nv.End > uint64(len(c.Contents)) {
				return fmt.Errorf("%w: hunk %d atom %d: malformed new_vertex", ErrInvalidChange, hi, ai)
			}
			n := graph.Vertex{Change: id, Start: nv.Start, End: nv.End}
			if err := graph.PutVertex(tx, channelName, n); err != nil {
				return err
			}
			touched[n.ID()] = struct{}{}
			for _, ref := range nv.UpContext {
				if err := attachContext(tx, channelName, id, ref, n, nv.Flag, true, touched); err != nil {
					return err
				}
			}
			for _, ref := range nv.DownContext {
				if err := attachContext(tx, channelName, id, ref, n, nv.Flag, false, touched); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func attachContext(tx *pristine.Tx, channelName string, id graph.ChangeID, ref PositionRef, n graph.Vertex, flag graph.EdgeFlag, up bool, touched map[graph.Position]struct{}) error {
	p, err := resolvePosition(tx, ref.Change, ref.Pos)
	if err != nil {
		return err
	}
	anchor, err := anchorAt(tx, channelName, p)
	if err != nil {
		return err
	}
	touched[anchor.ID()] = struct{}{}
	if up {
		return graph.PutEdge(tx, channelName, anchor, graph.Edge{Flag: flag, Dest: n.ID(), IntroducedBy: id})
	}
	return graph.PutEdge(tx, channelName, n, graph.Edge{Flag: flag, Dest: anchor.ID(), IntroducedBy: id})
}

// PositionRef is re-exported from change to keep this file's
// signatures readable without a qualifying package prefix everywhere.
type PositionRef = change.PositionRef

// applyPhaseB runs every edge-map atom: locate the edge it names and
// re-key it under the applying change's id with its new flag (spec
// §4.2 Phase B; deletions and un-deletions are ordinary edge-map atoms
// that flip FlagDeleted). Every anchor it touches is recorded into
// touched alongside phase A's.
func applyPhaseB(tx *pristine.Tx, channelName string, id graph.ChangeID, c *change.Change, touched map[graph.Position]struct{}) error {
	for hi, hunk := range c.Hunks {
		for ai, atom := range hunk.Atoms {
			if atom.Kind != change.AtomEdgeMap {
				continue
			}
			em := atom.EdgeMap
			if em == nil {
				return fmt.Errorf("%w: hunk %d atom %d: malformed edge_map", ErrInvalidChange, hi, ai)
			}
			for _, ec := range em.Edges {
				if err := applyEdgeChange(tx, channelName, id, ec, touched); err != nil {
					return fmt.Errorf("hunk %d atom %d: %w", hi, ai, err)
				}
			}
		}
	}
	return nil
}

func applyEdgeChange(tx *pristine.Tx, channelName string, id graph.ChangeID, ec change.EdgeChange, touched map[graph.Position]struct{}) error {
	fromPos, err := resolvePosition(tx, ec.From.Change, ec.From.Pos)
	if err != nil {
		return err
	}
	toPos, err := resolvePosition(tx, ec.To.Change, ec.To.Pos)
	if err != nil {
		return err
	}
	fromAnchor, err := anchorAt(tx, channelName, fromPos)
	if err != nil {
		return err
	}
	toAnchor, err := anchorAt(tx, channelName, toPos)
	if err != nil {
		return err
	}
	touched[fromAnchor.ID()] = struct{}{}
	touched[toAnchor.ID()] = struct{}{}

	edges, err := graph.EdgesFrom(tx, channelName, fromAnchor.ID())
	if err != nil {
		return err
	}
	var found *graph.Edge
	for i := range edges {
		if edges[i].Flag == ec.Flag && edges[i].Dest == toAnchor.ID() {
			found = &edges[i]
			break
		}
	}
	// put_newedge: delete a prior matching edge if one exists, then
	// unconditionally insert the new one. A folder rename re-parenting
	// an existing inode (spec §8) has no prior edge under the new
	// parent to find, so found stays nil and this falls through to a
	// plain insert instead of failing.
	if found != nil {
		if err := graph.DelEdge(tx, channelName, fromAnchor, *found); err != nil {
			return err
		}
	}
	return graph.PutEdge(tx, channelName, fromAnchor, graph.Edge{
		Flag:         ec.ToFlag,
		Dest:         toAnchor.ID(),
		IntroducedBy: id,
	})
}

// recordTouchedFiles resolves every position id's atoms touched back to
// an already-bound inode and records the touch (a SUPPLEMENTED feature:
// the original's touched_files index lets dep/revdep pruning answer
// "does this change matter to file F" without materialising the graph).
// Positions with no inode binding yet — new content not yet named by a
// path, or plain graph-internal anchors — are silently skipped.
func recordTouchedFiles(tx *pristine.Tx, id graph.ChangeID, touched map[graph.Position]struct{}) error {
	for p := range touched {
		inode, ok, err := graph.VertexInode(tx, p)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := graph.PutTouchedFile(tx, id, inode); err != nil {
			return err
		}
	}
	return nil
}
