package engine

import (
	"context"
	"slices"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend"
)

type browseKey struct {
	endpoint string
	path     string
}

// Browse lists the children of path on endpoint ("" is the root). Results
// are cached per endpoint and path for Config.BrowseCacheTTL.
func (e *Engine) Browse(ctx context.Context, endpoint, path string) ([]Node, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	key := browseKey{endpoint: endpoint, path: path}
	if e.browse != nil {
		if nodes, ok := e.browse.Get(key); ok {
			return slices.Clone(nodes), nil
		}
	}

	sess, err := e.pool.Get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	entries, err := sess.Browse(ctx, path)
	if err != nil {
		return nil, err
	}

	nodes := make([]Node, 0, len(entries))
	for _, en := range entries {
		nodes = append(nodes, node(en))
	}
	if e.browse != nil {
		e.browse.Add(key, slices.Clone(nodes))
	}
	return nodes, nil
}

func (e *Engine) purgeBrowse(endpoint string) {
	if e.browse == nil {
		return
	}
	for _, k := range e.browse.Keys() {
		if k.endpoint == endpoint {
			e.browse.Remove(k)
		}
	}
}

func node(en backend.BrowseEntry) Node {
	return Node{
		Name:        en.Name,
		ItemID:      en.ItemID,
		Branch:      en.IsBranch,
		DataType:    en.DataType,
		Unit:        en.Unit,
		Description: en.Description,
		Readable:    en.Readable,
		Writable:    en.Writable,
	}
}
