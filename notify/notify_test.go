package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	got  []Notification
	err  error
	done chan struct{}
}

func (r *recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	r.got = append(r.got, n)
	r.mu.Unlock()
	if r.done != nil {
		close(r.done)
	}
	return r.err
}

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	t.Parallel()

	ok := &recorder{}
	failing := &recorder{err: errors.New("smtp down")}

	err := Multi{ok, failing}.Notify(context.Background(), Notification{UserID: 7, Kind: KindOrderStatus})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
	assert.Len(t, ok.got, 1)
	assert.Len(t, failing.got, 1)
}

func TestAsync_DoesNotBlockCaller(t *testing.T) {
	t.Parallel()

	next := &recorder{done: make(chan struct{})}
	err := Async{Next: next}.Notify(context.Background(), Notification{UserID: 1})
	require.NoError(t, err)

	select {
	case <-next.done:
	case <-time.After(time.Second):
		t.Fatal("notification was not delivered")
	}
	assert.Equal(t, uint(1), next.got[0].UserID)
}

func TestUserChannel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "notifications:user:42", UserChannel(42))
}
