package procfind

import (
	"context"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

func TestProcFind(t *testing.T) {
	ctx := context.Background()
	selfPID := types.ProcessID(os.Getpid())

	t.Run("Exists", func(t *testing.T) {
		exists, err := Exists(ctx, selfPID)
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = Exists(ctx, types.ProcessID(math.MaxInt32))
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("FindPID", func(t *testing.T) {
		self, err := process.NewProcess(int32(selfPID))
		require.NoError(t, err)
		selfName, err := self.Name()
		require.NoError(t, err)

		pid, err := FindPID(ctx, strings.ToUpper(selfName))
		require.NoError(t, err)
		assert.NotZero(t, pid)

		_, err = FindPID(ctx, "there-is-no-such-process-hopefully")
		require.ErrorIs(t, err, types.ErrProcessNotFound)
	})

	t.Run("Resolve", func(t *testing.T) {
		pid, err := Resolve(ctx, types.TargetPID(selfPID))
		require.NoError(t, err)
		assert.Equal(t, selfPID, pid)

		_, err = Resolve(ctx, types.TargetPID(types.ProcessID(math.MaxInt32)))
		require.ErrorIs(t, err, types.ErrProcessNotFound)

		_, err = Resolve(ctx, types.Target{})
		require.ErrorIs(t, err, types.ErrProcessNotFound)
	})
}
