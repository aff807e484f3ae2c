// Package taxonomy loads a hierarchical category tree and scores a raw
// category string against it.
package taxonomy

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Node is one level of the taxonomy tree.
type Node struct {
	Name     string
	FullPath string
	Children map[string]*Node
}

func newNode(name, fullPath string) *Node {
	return &Node{Name: name, FullPath: fullPath, Children: make(map[string]*Node)}
}

// Tree is the top-level category set: a map of top-level category name to
// its Node.
type Tree map[string]*Node

// Loader reads the newline-delimited taxonomy directory format described
// in spec §6: each line is "A > B > C"; "#" starts a comment; blank lines
// are ignored.
type Loader struct {
	Dir string
}

// NewLoader builds a Loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{Dir: dir}
}

// Load reads every ".txt" file directly in the taxonomy directory and
// builds the tree; subdirectories and other files are skipped.
// The tree is meant to be loaded once and treated as immutable thereafter
// (spec §5: "safe for concurrent read").
func (l *Loader) Load() (Tree, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy dir %q: %w", l.Dir, err)
	}

	tree := make(Tree)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		path := filepath.Join(l.Dir, entry.Name())
		if err := loadFile(path, tree); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

func loadFile(path string, tree Tree) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open taxonomy file %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		insertPath(tree, line)
	}
	return scanner.Err()
}

// insertPath walks "A > B > C", creating nodes as needed.
func insertPath(tree Tree, line string) {
	parts := strings.Split(line, ">")
	var currentPath strings.Builder
	children := tree

	for i, raw := range parts {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if i > 0 {
			currentPath.WriteString(" > ")
		}
		currentPath.WriteString(name)
		fullPath := currentPath.String()

		node, ok := children[name]
		if !ok {
			node = newNode(name, fullPath)
			children[name] = node
		}
		children = node.Children
	}
}

// AllPaths flattens the tree to the set of full category paths, via a
// breadth-first walk (spec §4.4: "flatten the tree to the set of full
// paths"). The result is sorted before it's returned: Tree and Node.Children
// are maps, so a bare breadth-first walk would visit them in Go's
// randomized map order, making FindBestCategory's tie-break ("first-seen
// wins") vary across process runs. Sorting here keeps the flatten order
// — and therefore any tie-break over it — stable regardless of map
// iteration order (spec §8.8: fixed inputs must return the same result).
func (t Tree) AllPaths() []string {
	var paths []string
	queue := make([]*Node, 0, len(t))
	for _, n := range t {
		queue = append(queue, n)
	}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		paths = append(paths, node.FullPath)
		for _, child := range node.Children {
			queue = append(queue, child)
		}
	}
	sort.Strings(paths)
	return paths
}

// TopLevelCategories returns the top-level category names, sorted for the
// same determinism reason as AllPaths.
func (t Tree) TopLevelCategories() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
