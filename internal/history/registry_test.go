package history

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediachat/internal/conversation"
	"mediachat/internal/generation"
	"mediachat/internal/testutils"
	"mediachat/pkg/mediatypes"
)

func echoBackends() conversation.Backends {
	echo := generation.BackendFunc(func(_ context.Context, req generation.Request) ([]mediatypes.MessagePart, error) {
		return []mediatypes.MessagePart{mediatypes.TextPart("echo: " + req.Prompt)}, nil
	})
	return conversation.Backends{mediatypes.GenerationText: echo}
}

func newTestRegistry() *Registry {
	return NewRegistry(echoBackends(), testutils.NewDeterministicSource())
}

func TestNewRegistry_StartsWithOneActiveConversation(t *testing.T) {
	r := newTestRegistry()

	conversations := r.Conversations()
	require.Len(t, conversations, 1)
	assert.Equal(t, DefaultTitle, conversations[0].Title)
	assert.Equal(t, conversations[0].ID, r.ActiveID())
	assert.Empty(t, r.Snapshot().Messages)
}

func TestCreateConversation(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Submit(context.Background(), "hello"))
	require.Len(t, r.Snapshot().Messages, 2)

	seen := map[string]bool{r.ActiveID(): true}
	for i := 0; i < 3; i++ {
		summary := r.CreateConversation()

		assert.False(t, seen[summary.ID], "ids are unique")
		seen[summary.ID] = true

		conversations := r.Conversations()
		assert.Equal(t, summary.ID, conversations[0].ID, "new conversation is first")
		assert.Equal(t, DefaultTitle, conversations[0].Title)
		assert.Equal(t, summary.ID, r.ActiveID())
		assert.Empty(t, r.Snapshot().Messages)
	}
	assert.Len(t, r.Conversations(), 4)
}

func TestSelectConversation_RestoresLog(t *testing.T) {
	r := newTestRegistry()
	first := r.ActiveID()
	require.NoError(t, r.Submit(context.Background(), "in first"))

	second := r.CreateConversation().ID
	require.NoError(t, r.Submit(context.Background(), "in second"))

	require.NoError(t, r.SelectConversation(first))
	snapshot := r.Snapshot()
	assert.Equal(t, first, snapshot.ActiveID)
	require.Len(t, snapshot.Messages, 2)
	assert.Equal(t, "in first", snapshot.Messages[0].Text())

	require.NoError(t, r.SelectConversation(second))
	assert.Equal(t, "in second", r.Snapshot().Messages[0].Text())

	assert.ErrorIs(t, r.SelectConversation("missing"), ErrNotFound)
	assert.Equal(t, second, r.ActiveID())
}

func TestSubmit_ResultRoutedToSubmittingConversation(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	slow := generation.BackendFunc(func(context.Context, generation.Request) ([]mediatypes.MessagePart, error) {
		close(started)
		<-release
		return []mediatypes.MessagePart{mediatypes.TextPart("late reply")}, nil
	})
	r := NewRegistry(conversation.Backends{mediatypes.GenerationText: slow}, testutils.NewDeterministicSource())
	first := r.ActiveID()

	require.NoError(t, r.SubmitAsync(context.Background(), first, "slow question"))
	<-started

	second := r.CreateConversation().ID
	assert.Equal(t, second, r.ActiveID())

	close(release)
	r.Wait()

	assert.Empty(t, r.Snapshot().Messages, "active conversation is untouched")
	machine, err := r.Get(first)
	require.NoError(t, err)
	messages := machine.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "late reply", messages[1].Text())
}

func TestSubmitAsync_Rejections(t *testing.T) {
	r := newTestRegistry()
	id := r.ActiveID()

	assert.ErrorIs(t, r.SubmitAsync(context.Background(), id, "   "), conversation.ErrBlankInput)
	assert.ErrorIs(t, r.SubmitAsync(context.Background(), "missing", "hi"), ErrNotFound)
	assert.ErrorIs(t, r.SubmitTo(context.Background(), "missing", "hi"), ErrNotFound)
}

func TestTitleFromFirstMessage(t *testing.T) {
	r := newTestRegistry()
	id := r.ActiveID()

	long := strings.Repeat("word ", 20)
	require.NoError(t, r.Submit(context.Background(), long))
	require.NoError(t, r.Submit(context.Background(), "second message"))

	summary, err := r.Summary(id)
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(summary.Title)), maxTitleRunes)
	assert.True(t, strings.HasPrefix(summary.Title, "word word"))

	machine, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, machine.Messages()[3].Timestamp, summary.LastUpdated)
}

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, DefaultTitle, deriveTitle("   "))
	assert.Equal(t, "a b", deriveTitle(" a \n b "))
	assert.Equal(t, strings.Repeat("ж", maxTitleRunes), deriveTitle(strings.Repeat("ж", 50)))
}

func TestRename(t *testing.T) {
	r := newTestRegistry()
	id := r.ActiveID()

	require.NoError(t, r.Rename(id, "  Fox pictures "))
	require.NoError(t, r.Submit(context.Background(), "first message keeps the manual title"))

	summary, err := r.Summary(id)
	require.NoError(t, err)
	assert.Equal(t, "Fox pictures", summary.Title)

	assert.Error(t, r.Rename(id, " "))
	assert.ErrorIs(t, r.Rename("missing", "x"), ErrNotFound)
}

func TestDelete(t *testing.T) {
	r := newTestRegistry()
	oldest := r.ActiveID()
	middle := r.CreateConversation().ID
	newest := r.CreateConversation().ID

	require.NoError(t, r.Delete(middle))
	assert.Equal(t, newest, r.ActiveID())

	require.NoError(t, r.Delete(newest))
	assert.Equal(t, oldest, r.ActiveID(), "next newest becomes active")

	assert.ErrorIs(t, r.Delete(oldest), ErrLastConversation)
	assert.ErrorIs(t, r.Delete("missing"), ErrNotFound)
	assert.Len(t, r.Conversations(), 1)
}

func TestFind(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Rename(r.ActiveID(), "Foxes"))
	first := r.ActiveID()
	second := r.CreateConversation().ID
	require.NoError(t, r.Rename(second, "Forests"))

	tests := []struct {
		name       string
		identifier string
		expected   string
		wantErr    bool
	}{
		{name: "exact id", identifier: first, expected: first},
		{name: "position", identifier: "1", expected: second},
		{name: "position two", identifier: "2", expected: first},
		{name: "position out of range", identifier: "9", wantErr: true},
		{name: "unique title prefix", identifier: "fox", expected: first},
		{name: "ambiguous prefix", identifier: "fo", wantErr: true},
		{name: "no match", identifier: "zebra", wantErr: true},
		{name: "empty", identifier: " ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, err := r.Find(tt.identifier)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, summary.ID)
		})
	}
}

func TestSubscribe_ReceivesSnapshots(t *testing.T) {
	r := newTestRegistry()

	var mu sync.Mutex
	var snapshots []mediatypes.Snapshot
	unsubscribe := r.Subscribe(func(s mediatypes.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		snapshots = append(snapshots, s)
	})

	require.NoError(t, r.Submit(context.Background(), "hi"))

	mu.Lock()
	count := len(snapshots)
	last := snapshots[count-1]
	mu.Unlock()

	assert.Greater(t, count, 2)
	assert.Len(t, last.Messages, 2)
	assert.False(t, last.Status.IsLoading)
	assert.Equal(t, "hi", last.Conversations[0].Title)

	unsubscribe()
	r.CreateConversation()
	mu.Lock()
	assert.Len(t, snapshots, count)
	mu.Unlock()
}

func TestSnapshot_IsIsolated(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Submit(context.Background(), "hello"))

	snapshot := r.Snapshot()
	snapshot.Messages[0].Parts[0].Content = "changed"
	snapshot.Conversations[0].Title = "changed"

	fresh := r.Snapshot()
	assert.Equal(t, "hello", fresh.Messages[0].Text())
	assert.Equal(t, "hello", fresh.Conversations[0].Title)
}
