// Package graph renders the metadata store and the router's installed
// contacts to a GraphViz .dot file, the same network topology snapshot the
// reference DTN network daemon's createGraph produces. No dot-emitting
// library is available here, so the format is produced directly with
// text/template rather than a hand-rolled string builder.
package graph

import (
	"context"
	"fmt"
	"io"
	"text/template"

	"dtnex/internal/metastore"
	"dtnex/internal/router"
)

const dotTemplate = `// DTN contact graph
digraph G { layout=neato; overlap=false;
{{- range .Nodes}}
"ipn:{{.NodeID}}" [label="ipn:{{.NodeID}}\n{{.Name}}\n{{.Contact}}"];
{{- end}}
{{- range .Edges}}
"ipn:{{.Src}}" -> "ipn:{{.Dst}}";
{{- end}}
}
`

type node struct {
	NodeID         uint64
	Name, Contact string
}

type edge struct {
	Src, Dst uint64
}

var tmpl = template.Must(template.New("dot").Parse(dotTemplate))

// Write renders the current metadata store and the router's installed
// contacts as a GraphViz digraph to w.
func Write(ctx context.Context, w io.Writer, meta *metastore.Store, rtr router.Adapter) error {
	records := meta.Iter()
	nodes := make([]node, 0, len(records))
	for _, r := range records {
		nodes = append(nodes, node{NodeID: r.NodeID, Name: r.Name, Contact: r.Contact})
	}

	contacts, err := rtr.ListContacts(ctx)
	if err != nil {
		return fmt.Errorf("listing contacts for graph render: %w", err)
	}
	edges := make([]edge, 0, len(contacts))
	for _, c := range contacts {
		edges = append(edges, edge{Src: c.Src, Dst: c.Dst})
	}

	return tmpl.Execute(w, struct {
		Nodes []node
		Edges []edge
	}{nodes, edges})
}
