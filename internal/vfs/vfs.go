// Package vfs implements C7: an in-memory index over archive contents.
// Every directive that reads from an archive names a path as
// (archive_hash, components); the index resolves that pair to a Node in
// O(1) without walking the tree, while the tree itself still exists so
// callers can enumerate a directory's children.
//
// Parent links are weak by convention (a plain pointer the child does not
// keep alive on its own): the Index owns every Node through the
// path_index map, and children hang off their parent's Children map.
// Nothing but the Index holds the strong reference that keeps a subtree
// alive, so there's no reference cycle to break by hand the way there
// would be with two strong pointers pointing at each other.
package vfs

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ArchiveLocation pairs an archive's content hash with where it landed
// on disk after the download phase, letting an extractor open the
// container a directive's FromArchive path names.
type ArchiveLocation struct {
	ArchiveHash string
	DiskPath    string
}

// Node is one entry in the archive content tree: either an intermediate
// directory (Hash == "") or a leaf file.
type Node struct {
	// ID is a process-local diagnostic identifier, unrelated to any
	// content hash: logs and error messages can reference a node by ID
	// without printing its full archive path.
	ID       string
	Name     string
	Hash     string // empty for directories
	Size     int64
	Parent   *Node
	Children map[string]*Node

	// SourceArchive is set only on nodes reachable from an archive root;
	// it names the archive the bytes ultimately come from.
	SourceArchive *ArchiveLocation
	// ArchivePath is the component path from the archive root to this node.
	ArchivePath []string
}

func newNode(name string, parent *Node) *Node {
	return &Node{ID: uuid.NewString(), Name: name, Parent: parent, Children: make(map[string]*Node)}
}

// pathKey is the lookup key for Index.path_index: an archive hash paired
// with its joined component path, since Go maps can't key on a slice.
type pathKey struct {
	archiveHash string
	components  string
}

func keyFor(archiveHash string, components []string) pathKey {
	return pathKey{archiveHash: archiveHash, components: strings.Join(components, "/")}
}

// Index is the C7 VFS: a forest of per-archive trees plus the O(1)
// (archive_hash, components) -> Node lookup and the archive_hash ->
// disk_path map extractors consult.
type Index struct {
	mu        sync.RWMutex
	roots     map[string]*Node // archive hash -> tree root
	pathIndex map[pathKey]*Node
	locations map[string]string // archive hash -> disk path
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		roots:     make(map[string]*Node),
		pathIndex: make(map[pathKey]*Node),
		locations: make(map[string]string),
	}
}

// RegisterArchive records where archiveHash landed on disk (§4.7:
// "archive_locations: archive_hash -> disk_path"). Call this once the
// download phase places the file, before Seed is used to resolve any
// directive referencing it.
func (idx *Index) RegisterArchive(archiveHash, diskPath string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.locations[archiveHash] = diskPath
}

// Location returns the disk path previously registered for archiveHash.
func (idx *Index) Location(archiveHash string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	p, ok := idx.locations[archiveHash]
	return p, ok
}

// Seed ensures every intermediate directory node on the path to
// components exists and the leaf is indexed, following §4.7: "for each
// (archive_hash, components), ensure intermediate directory nodes exist
// and the leaf node is indexed." size and hash describe the leaf; pass
// hash == "" for a directory-only seed.
func (idx *Index) Seed(archiveHash string, components []string, size int64, hash string) *Node {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	root, ok := idx.roots[archiveHash]
	if !ok {
		root = newNode(archiveHash, nil)
		root.SourceArchive = &ArchiveLocation{ArchiveHash: archiveHash, DiskPath: idx.locations[archiveHash]}
		idx.roots[archiveHash] = root
	}

	cur := root
	built := make([]string, 0, len(components))
	for i, name := range components {
		built = append(built, name)
		child, ok := cur.Children[name]
		if !ok {
			child = newNode(name, cur)
			child.SourceArchive = root.SourceArchive
			child.ArchivePath = append([]string(nil), built...)
			cur.Children[name] = child
		}
		cur = child
		if i == len(components)-1 {
			cur.Size = size
			cur.Hash = hash
		}
		idx.pathIndex[keyFor(archiveHash, built)] = cur
	}
	return cur
}

// Lookup resolves (archiveHash, components) in O(1), following §4.7's
// lookup contract. The boolean is false if the path was never seeded.
func (idx *Index) Lookup(archiveHash string, components []string) (*Node, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n, ok := idx.pathIndex[keyFor(archiveHash, components)]
	return n, ok
}

// Children returns a snapshot of node's children, safe to range over
// while other goroutines seed or look up elsewhere in the tree (§9:
// "concurrent readers require interior mutability over each node").
func (idx *Index) Children(node *Node) []*Node {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]*Node, 0, len(node.Children))
	for _, c := range node.Children {
		out = append(out, c)
	}
	return out
}

// Root returns the root node for archiveHash, if any archive content has
// been seeded for it yet.
func (idx *Index) Root(archiveHash string) (*Node, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	r, ok := idx.roots[archiveHash]
	return r, ok
}
