package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mesh-intelligence/grove/pkg/types"
)

// maxLine bounds one JSONL record.
const maxLine = 1 << 20

// readJSONL decodes every non-empty, well-formed line of r into a node.
// Malformed lines are skipped and counted.
func readJSONL(r io.Reader) ([]*types.Node, int, error) {
	var (
		nodes   []*types.Node
		skipped int
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var n types.Node
		if err := json.Unmarshal(line, &n); err != nil || n.ID == "" {
			skipped++
			continue
		}
		nodes = append(nodes, &n)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("scanning records: %w", err)
	}
	return nodes, skipped, nil
}

// writeJSONL encodes nodes one per line.
func writeJSONL(w io.Writer, nodes []*types.Node) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, n := range nodes {
		if err := enc.Encode(n); err != nil {
			return fmt.Errorf("writing record %s: %w", n.ID, err)
		}
	}
	return bw.Flush()
}

// writeFileAtomic writes nodes to path through a temp file, fsync and
// rename, so readers never see a partial file.
func writeFileAtomic(path string, nodes []*types.Node) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := writeJSONL(tmp, nodes); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func (b *Backend) mirrorPath() string {
	return filepath.Join(b.dataDir, nodesFile)
}

// initMirror creates an empty nodes.jsonl when none exists.
func (b *Backend) initMirror() error {
	path := b.mirrorPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", nodesFile, err)
	}
	return f.Close()
}

// persistMirror snapshots the nodes table into nodes.jsonl.
func (b *Backend) persistMirror() error {
	b.mirrorMu.Lock()
	defer b.mirrorMu.Unlock()

	ctx, cancel := contextForMirror()
	defer cancel()

	nodes, err := b.allNodes(ctx, b.db)
	if err != nil {
		return fmt.Errorf("reading nodes for JSONL: %w", err)
	}
	if err := writeFileAtomic(b.mirrorPath(), nodes); err != nil {
		return err
	}
	if b.metrics != nil {
		b.metrics.RecordMirrorWrite(b.syncStrategy)
	}
	return nil
}
