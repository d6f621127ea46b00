// Package viz renders debugging graphs as SVG: the change history of an automerge document
// and the lifecycle journal of overlay items.
package viz

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/astromechza/stroke-overlay/pkg/overlay"
)

type graphBuilder struct {
	graph *cgraph.Graph
	nodes map[string]*cgraph.Node
	edges uint64
}

func (b *graphBuilder) node(name, label string) (*cgraph.Node, error) {
	if n, ok := b.nodes[name]; ok {
		return n, nil
	}
	n, err := b.graph.CreateNode(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create node: %w", err)
	}
	n.SetLabel(label)
	b.nodes[name] = n
	return n, nil
}

func (b *graphBuilder) edge(from, to *cgraph.Node, label string) error {
	e, err := b.graph.CreateEdge(strconv.FormatUint(atomic.AddUint64(&b.edges, 1), 10), from, to)
	if err != nil {
		return fmt.Errorf("failed to create edge: %w", err)
	}
	if label != "" {
		e.SetLabel(label)
	}
	return nil
}

func render(outputPath string, build func(b *graphBuilder) error) error {
	g := graphviz.New()
	defer g.Close()
	graph, err := g.Graph()
	if err != nil {
		return fmt.Errorf("failed to setup graph: %w", err)
	}
	defer graph.Close()

	if err := build(&graphBuilder{graph: graph, nodes: make(map[string]*cgraph.Node)}); err != nil {
		return err
	}

	var buff bytes.Buffer
	if err := g.Render(graph, graphviz.SVG, &buff); err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}
	if err := os.WriteFile(outputPath, buff.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}
	return nil
}

// RenderDocToSvg draws one node per change of doc, labelled with the value at nodePath
// as of that change, and an edge per dependency.
func RenderDocToSvg(doc *automerge.Doc, nodePath []interface{}, outputPath string) error {
	changes, err := doc.Changes()
	if err != nil {
		return fmt.Errorf("failed to generate changes: %w", err)
	}
	return render(outputPath, func(b *graphBuilder) error {
		for _, change := range changes {
			docAt, err := doc.Fork(change.Hash())
			if err != nil {
				return fmt.Errorf("failed to checkout %s: %w", change.Hash(), err)
			}
			var raw interface{}
			if value, err := docAt.Path(nodePath...).Get(); err == nil {
				raw = value.Interface()
			}
			encoded, err := json.Marshal(raw)
			if err != nil {
				return fmt.Errorf("failed to marshal %s: %w", change.Hash(), err)
			}
			hash := change.Hash().String()
			n, err := b.node(hash, fmt.Sprintf("%s %s@%d %s", hash[:8], change.ActorID(), change.ActorSeq(), string(encoded)))
			if err != nil {
				return err
			}
			for _, dep := range change.Dependencies() {
				parent, ok := b.nodes[dep.String()]
				if !ok {
					continue
				}
				if err := b.edge(parent, n, ""); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// RenderJournalToSvg draws every item's path through the lifecycle: a node per item and
// state it reached, joined by edges labelled with the cause and the time since the first
// entry.
func RenderJournalToSvg(entries []overlay.Transition, outputPath string) error {
	return render(outputPath, func(b *graphBuilder) error {
		if len(entries) == 0 {
			_, err := b.node("empty", "no transitions")
			return err
		}
		start := entries[0].At
		for _, t := range entries {
			from, err := b.node(t.ID+"/"+string(t.From), short(t.ID)+" "+string(t.From))
			if err != nil {
				return err
			}
			to, err := b.node(t.ID+"/"+string(t.To), short(t.ID)+" "+string(t.To))
			if err != nil {
				return err
			}
			label := fmt.Sprintf("%s +%s", t.Cause, t.At.Sub(start).Round(time.Millisecond))
			if err := b.edge(from, to, label); err != nil {
				return err
			}
		}
		return nil
	})
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func tempPath() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("%d%d.svg", time.Now().UnixNano(), rand.Int()))
}

// RenderToTemp renders doc's history into a new file under the temp dir and returns its path.
func RenderToTemp(doc *automerge.Doc, nodePath []interface{}) (string, error) {
	tf := tempPath()
	if err := RenderDocToSvg(doc, nodePath, tf); err != nil {
		return "", err
	}
	return tf, nil
}

// RenderJournalToTemp is RenderToTemp for a journal.
func RenderJournalToTemp(entries []overlay.Transition) (string, error) {
	tf := tempPath()
	if err := RenderJournalToSvg(entries, tf); err != nil {
		return "", err
	}
	return tf, nil
}
