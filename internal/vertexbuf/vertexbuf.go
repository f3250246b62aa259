// Package vertexbuf implements the streaming conflict-marker writer
// output uses to materialize a file whose graph region currently has
// more than one alive successor (an order conflict), more than one
// alive name (a folder/rename conflict), or a zombie vertex still
// pending repair. Grounded on the standard Git-style marker convention
// the teacher's own merge tooling recognizes (internal/storage/dolt/
// bootstrap.go's `<<<<<<<`/`=======`/`>>>>>>>` prefix checks) rather
// than inventing a new delimiter syntax.
package vertexbuf

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/weftvcs/weft/internal/graph"
)

// ConflictKind names the conflict shapes spec §4/§5 distinguish.
type ConflictKind string

const (
	ConflictOrder         ConflictKind = "order"          // more than one alive successor at one point
	ConflictZombie        ConflictKind = "zombie"         // content pending repair reconnection
	ConflictCyclic        ConflictKind = "cyclic"         // a folder cycle repair had to break
	ConflictName          ConflictKind = "name"           // one name, claimed by multiple inodes
	ConflictMultipleNames ConflictKind = "multiple_names" // folder conflict: one inode, multiple alive names
	ConflictZombieFile    ConflictKind = "zombie_file"    // a whole file's marker vertex is a zombie
)

// Conflict is one side of a marked-up region: the change that
// introduced this side and the raw bytes it contributes. ChangeHash
// and Summary are optional (zero value skips the annotation); when set
// they're shown alongside Side the way the original annotates each
// conflict side with the introducing change's short hash and first
// message line.
type Conflict struct {
	Kind       ConflictKind
	Side       graph.ChangeID
	ChangeHash graph.Hash
	Summary    string
	Content    []byte
}

// Writer streams a file's content, inserting conflict markers around
// each Conflict's sides as they are appended (spec §5: "conflicting
// regions are emitted inline, bracketed by markers naming the
// contending changes, rather than failing the whole output").
type Writer struct {
	w   *bufio.Writer
	err error
}

// NewWriter wraps w for buffered marker-aware writing.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteContent appends plain, non-conflicting bytes.
func (vw *Writer) WriteContent(b []byte) {
	if vw.err != nil {
		return
	}
	_, vw.err = vw.w.Write(b)
}

// WriteConflict emits sides as a single bracketed conflict region: one
// opening marker naming kind, each side separated by `=======`, and one
// closing marker.
func (vw *Writer) WriteConflict(kind ConflictKind, sides []Conflict) {
	if vw.err != nil || len(sides) == 0 {
		return
	}
	if _, err := fmt.Fprintf(vw.w, "<<<<<<< %s\n", kind); err != nil {
		vw.err = err
		return
	}
	for i, s := range sides {
		if i > 0 {
			if _, err := fmt.Fprintln(vw.w, "======="); err != nil {
				vw.err = err
				return
			}
		}
		header := fmt.Sprintf("# change %d", s.Side)
		if s.ChangeHash != (graph.Hash{}) {
			header += " [" + shortHash(s.ChangeHash)
			if s.Summary != "" {
				header += " " + s.Summary
			}
			header += "]"
		}
		if _, err := fmt.Fprintln(vw.w, header); err != nil {
			vw.err = err
			return
		}
		if _, err := vw.w.Write(s.Content); err != nil {
			vw.err = err
			return
		}
	}
	if _, err := fmt.Fprintf(vw.w, ">>>>>>> %s\n", kind); err != nil {
		vw.err = err
	}
}

// Flush flushes the underlying buffer and returns the first error
// encountered by any prior Write call.
func (vw *Writer) Flush() error {
	if vw.err != nil {
		return vw.err
	}
	return vw.w.Flush()
}

// shortHash renders the first 4 bytes of a change hash as hex, the
// `hash8` form spec §6's conflict-marker annotation names.
func shortHash(h graph.Hash) string {
	return hex.EncodeToString(h[:4])
}
