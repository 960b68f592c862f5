package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := New()
	id1, ch1 := b.Subscribe(4)
	_, ch2 := b.Subscribe(4)

	ev := b.PublishNew(TypeTriageCreated, "p1", "t1", map[string]string{"source": "manual"})
	require.NotEmpty(t, ev.ID)

	assert.Equal(t, ev, <-ch1)
	assert.Equal(t, ev, <-ch2)

	b.Unsubscribe(id1)
	_, ok := <-ch1
	assert.False(t, ok)

	// unknown ids are ignored
	b.Unsubscribe("missing")
}

func TestBus_DropsWhenFull(t *testing.T) {
	b := New()
	_, ch := b.Subscribe(1)

	b.PublishNew(TypeTriageCreated, "p1", "a", nil)
	b.PublishNew(TypeTriageCreated, "p1", "b", nil)

	got := <-ch
	assert.Equal(t, "a", got.ResourceID)
	assert.Empty(t, ch)
}

func TestBus_Close(t *testing.T) {
	b := New()
	_, ch := b.Subscribe(1)
	b.Close()
	_, ok := <-ch
	assert.False(t, ok)
}
