package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"category-tree/internal/app"
	"category-tree/internal/model"
	"category-tree/internal/repository"
	"category-tree/pkg/apierror"
)

type harness struct {
	store repository.TreeStore
}

func newHarness() *harness {
	return &harness{store: repository.NewMemoryStore()}
}

func (h *harness) open(ctx context.Context) (*app.App, time.Duration, error) {
	return app.NewWithStore(h.store, model.DefaultLimits(), nil), time.Minute, nil
}

func (h *harness) run(t *testing.T, args ...string) (int, []byte, []byte) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	code := execute(h.open, append(append([]string{}, args...), "--actor", "tester"), &stdout, &stderr)
	return code, stdout.Bytes(), stderr.Bytes()
}

func (h *harness) create(t *testing.T, args ...string) model.TreeNode {
	t.Helper()

	code, out, errOut := h.run(t, append([]string{"create"}, args...)...)
	require.Equal(t, 0, code, string(errOut))

	var node model.TreeNode
	require.NoError(t, json.Unmarshal(out, &node))
	return node
}

func decodeError(t *testing.T, raw []byte) apierror.APIError {
	t.Helper()

	var apiErr apierror.APIError
	require.NoError(t, json.Unmarshal(raw, &apiErr))
	return apiErr
}

func TestMoveCommand(t *testing.T) {
	h := newHarness()
	home := h.create(t, "--slug", "home", "--name", "Home")
	garden := h.create(t, "--slug", "garden", "--name", "Garden")
	tools := h.create(t, "--parent", home.ID, "--slug", "tools", "--name", "Tools")

	t.Run("moves a category", func(t *testing.T) {
		code, out, errOut := h.run(t, "move", tools.ID, "--to", garden.ID, "--reason", "reorganize")
		require.Equal(t, 0, code, string(errOut))

		var result model.MoveResult
		require.NoError(t, json.Unmarshal(out, &result))
		require.True(t, result.Committed)
		require.Equal(t, "/garden/tools", result.NewPath)
	})

	t.Run("refuses a cycle and explains it", func(t *testing.T) {
		code, out, errOut := h.run(t, "move", garden.ID, "--to", tools.ID)
		require.Equal(t, 1, code)

		var result model.MoveResult
		require.NoError(t, json.Unmarshal(out, &result))
		require.False(t, result.Committed)

		apiErr := decodeError(t, errOut)
		require.Equal(t, "INVALID_OPERATION", apiErr.Code)
		require.Equal(t, model.CodeCycle, apiErr.Issues[0].Code)
	})

	t.Run("requires a target", func(t *testing.T) {
		code, _, errOut := h.run(t, "move", tools.ID)
		require.Equal(t, 1, code)
		require.Equal(t, "BAD_REQUEST", decodeError(t, errOut).Code)
	})

	t.Run("dry run leaves the tree alone", func(t *testing.T) {
		code, out, _ := h.run(t, "move", tools.ID, "--root", "--dry-run")
		require.Equal(t, 0, code)

		var result model.MoveResult
		require.NoError(t, json.Unmarshal(out, &result))
		require.True(t, result.DryRun)

		code, out, _ = h.run(t, "get", tools.ID)
		require.Equal(t, 0, code)
		var node model.TreeNode
		require.NoError(t, json.Unmarshal(out, &node))
		require.Equal(t, "/garden/tools", node.Path)
	})
}

func TestValidateCommand(t *testing.T) {
	h := newHarness()
	a := h.create(t, "--slug", "a", "--name", "A")
	b := h.create(t, "--parent", a.ID, "--slug", "b", "--name", "B")

	code, out, _ := h.run(t, "validate", b.ID, "--root")
	require.Equal(t, 0, code)
	var ok model.ValidationResult
	require.NoError(t, json.Unmarshal(out, &ok))
	require.True(t, ok.IsValid)

	code, out, errOut := h.run(t, "validate", a.ID, "--to", b.ID)
	require.Equal(t, 1, code)
	var refused model.ValidationResult
	require.NoError(t, json.Unmarshal(out, &refused))
	require.False(t, refused.IsValid)
	require.Equal(t, "INVALID_OPERATION", decodeError(t, errOut).Code)
}

func TestBatchCommand(t *testing.T) {
	h := newHarness()
	x := h.create(t, "--slug", "x", "--name", "X")
	y := h.create(t, "--slug", "y", "--name", "Y")
	z := h.create(t, "--slug", "z", "--name", "Z")

	path := filepath.Join(t.TempDir(), "moves.yaml")
	content := "options:\n  reason: nightly\nmoves:\n" +
		"  - node_id: " + x.ID + "\n    new_parent_id: " + y.ID + "\n" +
		"  - node_id: " + y.ID + "\n    new_parent_id: " + z.ID + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	code, out, errOut := h.run(t, "batch", "--file", path)
	require.Equal(t, 0, code, string(errOut))

	var result model.BatchResult
	require.NoError(t, json.Unmarshal(out, &result))
	require.Equal(t, 2, result.Succeeded)

	code, out, _ = h.run(t, "get", x.ID)
	require.Equal(t, 0, code)
	var node model.TreeNode
	require.NoError(t, json.Unmarshal(out, &node))
	require.Equal(t, "/z/y/x", node.Path)

	t.Run("missing file flag", func(t *testing.T) {
		code, _, errOut := h.run(t, "batch")
		require.Equal(t, 1, code)
		require.Equal(t, "BAD_REQUEST", decodeError(t, errOut).Code)
	})
}

func TestQueryCommands(t *testing.T) {
	h := newHarness()
	root := h.create(t, "--slug", "electronics", "--name", "Electronics", "--keyword", "gadgets")
	phones := h.create(t, "--parent", root.ID, "--slug", "phones", "--name", "Phones")
	h.create(t, "--parent", phones.ID, "--slug", "cases", "--name", "Cases", "--leaf")

	list := func(t *testing.T, args ...string) []model.TreeNode {
		t.Helper()
		code, out, errOut := h.run(t, args...)
		require.Equal(t, 0, code, string(errOut))
		var resp struct {
			Data []model.TreeNode `json:"data"`
		}
		require.NoError(t, json.Unmarshal(out, &resp))
		return resp.Data
	}

	require.Len(t, list(t, "subtree", root.ID), 2)
	require.Len(t, list(t, "subtree", root.ID, "--max-depth", "1"), 1)
	require.Len(t, list(t, "ancestors", phones.ID), 1)
	require.Len(t, list(t, "children", root.ID), 1)
	require.Len(t, list(t, "children"), 1)
	require.Len(t, list(t, "depth", "2"), 1)
	require.Len(t, list(t, "leaves", "--scope", root.ID), 1)
	require.Len(t, list(t, "search", "gadgets"), 1)

	t.Run("bad depth", func(t *testing.T) {
		code, _, errOut := h.run(t, "depth", "deep")
		require.Equal(t, 1, code)
		require.Equal(t, "BAD_REQUEST", decodeError(t, errOut).Code)
	})

	t.Run("unknown category", func(t *testing.T) {
		code, _, errOut := h.run(t, "get", "missing")
		require.Equal(t, 1, code)
		require.Equal(t, "NOT_FOUND", decodeError(t, errOut).Code)
	})

	t.Run("targets", func(t *testing.T) {
		code, out, _ := h.run(t, "targets", phones.ID)
		require.Equal(t, 0, code)
		var targets model.OperationTargets
		require.NoError(t, json.Unmarshal(out, &targets))
		require.False(t, targets.CanDelete)
		require.Equal(t, 1, targets.ChildCount)
	})
}

func TestMaintenanceCommands(t *testing.T) {
	h := newHarness()
	a := h.create(t, "--slug", "a", "--name", "A")
	b := h.create(t, "--parent", a.ID, "--slug", "b", "--name", "B")

	code, _, errOut := h.run(t, "stats", "refresh", b.ID, "--chain")
	require.Equal(t, 0, code, string(errOut))

	code, _, errOut = h.run(t, "verify")
	require.Equal(t, 0, code, string(errOut))

	code, out, _ := h.run(t, "audit", "--action", "create", "--limit", "1")
	require.Equal(t, 0, code)
	var resp struct {
		Data []model.AuditEntry `json:"data"`
		Meta model.Meta         `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(out, &resp))
	require.Len(t, resp.Data, 1)
	require.Equal(t, 2, resp.Meta.Total)
	require.Equal(t, "tester", resp.Data[0].ActorID)

	t.Run("status then delete", func(t *testing.T) {
		code, _, errOut := h.run(t, "status", b.ID, "inactive")
		require.Equal(t, 0, code, string(errOut))

		code, _, errOut = h.run(t, "delete", a.ID)
		require.Equal(t, 1, code)
		require.Equal(t, "INVALID_OPERATION", decodeError(t, errOut).Code)

		code, _, errOut = h.run(t, "delete", b.ID)
		require.Equal(t, 0, code, string(errOut))
	})
}
