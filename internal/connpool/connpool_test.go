package connpool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/sshsession"
)

func fakeDialer(dialCount *int) Dialer {
	return func(ctx context.Context) (*sshsession.Session, error) {
		*dialCount++
		return sshsession.New("127.0.0.1:22", "user", "pw"), nil
	}
}

func TestPoolAcquireSharesSingleSessionPerKey(t *testing.T) {
	p := New()
	var dials int

	s1, err := p.Acquire(context.Background(), "expanse", fakeDialer(&dials))
	require.NoError(t, err)
	s2, err := p.Acquire(context.Background(), "expanse", fakeDialer(&dials))
	require.NoError(t, err)

	require.Same(t, s1, s2)
	require.Equal(t, 1, dials)
	require.Equal(t, 2, p.RefCount("expanse"))
}

func TestPoolReleaseEvictsAtZeroRefCount(t *testing.T) {
	p := New()
	var dials int

	_, err := p.Acquire(context.Background(), "expanse", fakeDialer(&dials))
	require.NoError(t, err)
	_, err = p.Acquire(context.Background(), "expanse", fakeDialer(&dials))
	require.NoError(t, err)

	p.Release("expanse")
	require.Equal(t, 1, p.RefCount("expanse"))

	p.Release("expanse")
	require.Equal(t, 0, p.RefCount("expanse"))

	// A subsequent Acquire must redial since the entry was evicted.
	_, err = p.Acquire(context.Background(), "expanse", fakeDialer(&dials))
	require.NoError(t, err)
	require.Equal(t, 2, dials)
}

func TestPoolDestroyIgnoresRefCount(t *testing.T) {
	p := New()
	var dials int

	_, err := p.Acquire(context.Background(), "expanse", fakeDialer(&dials))
	require.NoError(t, err)
	_, err = p.Acquire(context.Background(), "expanse", fakeDialer(&dials))
	require.NoError(t, err)

	p.Destroy("expanse")
	require.Equal(t, 0, p.RefCount("expanse"))
}

func TestSharedAndPrivatePoolsAreIndependentlyKeyed(t *testing.T) {
	shared := NewSharedPool()
	private := NewPrivatePool()
	var dials int

	_, err := shared.Acquire(context.Background(), "expanse", fakeDialer(&dials))
	require.NoError(t, err)
	_, err = private.Acquire(context.Background(), "job-1", fakeDialer(&dials))
	require.NoError(t, err)

	require.Equal(t, 1, shared.RefCount("expanse"))
	require.Equal(t, 1, private.RefCount("job-1"))
	require.Equal(t, 0, shared.RefCount("job-1"))
}
