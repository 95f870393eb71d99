package batchfile

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"category-tree/internal/model"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	t.Run("reads a document with options", func(t *testing.T) {
		input := `
options:
  dry_run: true
  reason: spring cleanup
  batch_size: 50
moves:
  - node_id: x
    new_parent_id: y
  - node_id: y
    new_parent_id: null
`
		file, err := Decode(strings.NewReader(input))

		require.NoError(t, err)
		require.NotNil(t, file.Options)
		require.True(t, file.Options.DryRun)
		require.Equal(t, "spring cleanup", file.Options.Reason)
		require.Equal(t, 50, file.Options.BatchSize)
		require.Len(t, file.Requests, 2)
		require.Equal(t, "y", *file.Requests[0].NewParentID)
		require.Nil(t, file.Requests[1].NewParentID)
	})

	t.Run("reads a bare json list", func(t *testing.T) {
		input := `[{"node_id": "a", "new_parent_id": "b"}, {"node_id": "c", "new_parent_id": ""}]`

		file, err := Decode(strings.NewReader(input))

		require.NoError(t, err)
		require.Nil(t, file.Options)
		require.Len(t, file.Requests, 2)
		require.Equal(t, "b", *file.Requests[0].NewParentID)
		require.Nil(t, file.Requests[1].NewParentID)
	})

	t.Run("reads a per-move expected version", func(t *testing.T) {
		input := "- node_id: a\n  new_parent_id: b\n  expected_version: 3\n- node_id: c\n"

		file, err := Decode(strings.NewReader(input))

		require.NoError(t, err)
		require.Equal(t, int64(3), *file.Requests[0].ExpectedVersion)
		require.Nil(t, file.Requests[1].ExpectedVersion)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		for name, input := range map[string]string{
			"empty":       "  ",
			"scalar":      "hello",
			"no moves":    "options:\n  dry_run: true\n",
			"no node id":  "- new_parent_id: b\n",
			"broken yaml": "moves: [",
		} {
			t.Run(name, func(t *testing.T) {
				_, err := Decode(strings.NewReader(input))

				require.Error(t, err)
				require.True(t, errors.Is(err, model.ErrInvalidInput))
			})
		}
	})
}
