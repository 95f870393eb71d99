// Package batchfile reads batch move requests from YAML or JSON.
package batchfile

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"category-tree/internal/model"
)

// File is a decoded batch. Options, when present, override the caller's defaults.
type File struct {
	Options  *model.MoveOptions  `yaml:"options"`
	Requests []model.MoveRequest `yaml:"moves"`
}

// Decode accepts either a bare list of moves or a document with "options"
// and "moves" keys. JSON input is read as YAML. An empty new_parent_id moves
// the node to the root.
func Decode(r io.Reader) (File, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return File{}, fmt.Errorf("read batch file: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return File{}, fmt.Errorf("batch file is empty: %w", model.ErrInvalidInput)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return File{}, fmt.Errorf("parse batch file: %v: %w", err, model.ErrInvalidInput)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return File{}, fmt.Errorf("batch file has no document: %w", model.ErrInvalidInput)
	}

	var file File
	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		err = root.Decode(&file.Requests)
	case yaml.MappingNode:
		err = root.Decode(&file)
	default:
		return File{}, fmt.Errorf("batch file must be a list or a mapping: %w", model.ErrInvalidInput)
	}
	if err != nil {
		return File{}, fmt.Errorf("decode batch file: %v: %w", err, model.ErrInvalidInput)
	}

	if len(file.Requests) == 0 {
		return File{}, fmt.Errorf("batch file lists no moves: %w", model.ErrInvalidInput)
	}
	for i := range file.Requests {
		req := &file.Requests[i]
		req.NodeID = strings.TrimSpace(req.NodeID)
		if req.NodeID == "" {
			return File{}, fmt.Errorf("move %d has no node_id: %w", i+1, model.ErrInvalidInput)
		}
		if req.NewParentID != nil && strings.TrimSpace(*req.NewParentID) == "" {
			req.NewParentID = nil
		}
	}

	return file, nil
}
