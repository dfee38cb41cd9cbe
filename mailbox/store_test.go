package mailbox

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthloom/wyrmhall/pipeline/envelope"
)

func tempStore(t *testing.T, max int) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "inbound.json"), max)
}

func sentEnvelope(stage envelope.StageRef) *envelope.MessageEnvelope {
	env := envelope.New("test", "content", stage)
	_ = env.TransitionTo(envelope.StatusSent)
	return env
}

// =============================================================================
// DOCUMENT LIFECYCLE TESTS
// =============================================================================

func TestEnsureExistsCreatesEmptyDocument(t *testing.T) {
	store := tempStore(t, 0)

	require.NoError(t, store.EnsureExists())

	doc, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, doc.SchemaVersion)
	assert.Empty(t, doc.Messages)
}

func TestReadCreatesMissingFile(t *testing.T) {
	store := tempStore(t, 0)

	// No EnsureExists call: Read must never fail on a missing file.
	doc, err := store.Read()
	require.NoError(t, err)
	assert.Empty(t, doc.Messages)

	_, statErr := os.Stat(store.Path())
	assert.NoError(t, statErr)
}

func TestReadCorruptFile(t *testing.T) {
	store := tempStore(t, 0)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o755))
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0o644))

	_, err := store.Read()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptDocument))
}

func TestAppendAndReadBack(t *testing.T) {
	store := tempStore(t, 0)
	env := sentEnvelope(envelope.StageRef{Name: "interpreted", Iteration: 1})

	require.NoError(t, store.Append(env))

	doc, err := store.Read()
	require.NoError(t, err)
	require.Len(t, doc.Messages, 1)
	assert.Equal(t, env.ID, doc.Messages[0].ID)
	assert.Equal(t, "interpreted_1", doc.Messages[0].Stage)
	assert.Equal(t, envelope.StatusSent, doc.Messages[0].Status)
}

func TestAppendPreservesOrder(t *testing.T) {
	store := tempStore(t, 0)
	var ids []string
	for i := 0; i < 5; i++ {
		env := sentEnvelope(envelope.StageRef{Name: "interpreted", Iteration: 1})
		ids = append(ids, env.ID)
		require.NoError(t, store.Append(env))
	}

	doc, err := store.Read()
	require.NoError(t, err)
	require.Len(t, doc.Messages, 5)
	for i, m := range doc.Messages {
		assert.Equal(t, ids[i], m.ID)
	}
}

func TestUpdateByID(t *testing.T) {
	store := tempStore(t, 0)
	env := sentEnvelope(envelope.StageRef{Name: "interpreted", Iteration: 1})
	require.NoError(t, store.Append(env))

	err := store.UpdateByID(env.ID, func(m *envelope.MessageEnvelope) error {
		return m.TransitionTo(envelope.StatusProcessing)
	})
	require.NoError(t, err)

	doc, _ := store.Read()
	assert.Equal(t, envelope.StatusProcessing, doc.Messages[0].Status)
}

func TestUpdateByIDMissing(t *testing.T) {
	store := tempStore(t, 0)

	err := store.UpdateByID("msg_missing", func(m *envelope.MessageEnvelope) error { return nil })
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpdateByIDMutatorErrorDoesNotWrite(t *testing.T) {
	store := tempStore(t, 0)
	env := sentEnvelope(envelope.StageRef{Name: "interpreted", Iteration: 1})
	require.NoError(t, store.Append(env))

	boom := errors.New("boom")
	err := store.UpdateByID(env.ID, func(m *envelope.MessageEnvelope) error {
		m.Content = "mutated"
		return boom
	})
	require.ErrorIs(t, err, boom)

	doc, _ := store.Read()
	assert.Equal(t, "content", doc.Messages[0].Content)
}

// =============================================================================
// CLAIM / COMPLETE TESTS
// =============================================================================

func TestClaimTransitionsFirstMatch(t *testing.T) {
	store := tempStore(t, 0)
	first := sentEnvelope(envelope.StageRef{Name: "interpreted", Iteration: 1})
	second := sentEnvelope(envelope.StageRef{Name: "interpreted", Iteration: 1})
	require.NoError(t, store.Append(first))
	require.NoError(t, store.Append(second))

	claimed, ok, err := store.Claim(func(m *envelope.MessageEnvelope) bool { return true })
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ID, claimed.ID)
	assert.Equal(t, envelope.StatusProcessing, claimed.Status)

	doc, _ := store.Read()
	assert.Equal(t, envelope.StatusProcessing, doc.Messages[0].Status)
	assert.Equal(t, envelope.StatusSent, doc.Messages[1].Status)
}

func TestClaimIdempotent(t *testing.T) {
	// The same envelope cannot be claimed twice.
	store := tempStore(t, 0)
	env := sentEnvelope(envelope.StageRef{Name: "interpreted", Iteration: 1})
	require.NoError(t, store.Append(env))

	_, ok, err := store.Claim(func(m *envelope.MessageEnvelope) bool { return true })
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = store.Claim(func(m *envelope.MessageEnvelope) bool { return true })
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClaimRespectsPredicate(t *testing.T) {
	store := tempStore(t, 0)
	broker := sentEnvelope(envelope.StageRef{Name: "brokered", Iteration: 1})
	interp := sentEnvelope(envelope.StageRef{Name: "interpreted", Iteration: 1})
	require.NoError(t, store.Append(broker))
	require.NoError(t, store.Append(interp))

	claimed, ok, err := store.Claim(func(m *envelope.MessageEnvelope) bool {
		return m.StageRef().Name == "interpreted"
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, interp.ID, claimed.ID)
}

func TestCompleteRequiresTerminalStatus(t *testing.T) {
	store := tempStore(t, 0)
	env := sentEnvelope(envelope.StageRef{Name: "interpreted", Iteration: 1})
	require.NoError(t, store.Append(env))

	err := store.Complete(env.ID, envelope.StatusProcessing, nil)
	assert.Error(t, err)
}

func TestCompleteAppliesMutatorAndStatus(t *testing.T) {
	store := tempStore(t, 0)
	env := sentEnvelope(envelope.StageRef{Name: "interpreted", Iteration: 1})
	require.NoError(t, store.Append(env))
	_, ok, err := store.Claim(func(m *envelope.MessageEnvelope) bool { return true })
	require.NoError(t, err)
	require.True(t, ok)

	err = store.Complete(env.ID, envelope.StatusDone, func(m *envelope.MessageEnvelope) {
		m.Meta["handled_by"] = "interpreter"
	})
	require.NoError(t, err)

	doc, _ := store.Read()
	assert.Equal(t, envelope.StatusDone, doc.Messages[0].Status)
	assert.Equal(t, "interpreter", doc.Messages[0].Meta["handled_by"])
}

// =============================================================================
// PRUNE TESTS
// =============================================================================

func TestPruneKeepsMostRecent(t *testing.T) {
	doc := NewDocument()
	for i := 0; i < 10; i++ {
		env := envelope.New("s", "c", envelope.StageRef{Name: "x"})
		_ = env.TransitionTo(envelope.StatusDone)
		doc.Messages = append(doc.Messages, env)
	}
	newest := doc.Messages[9].ID

	doc.Prune(3)

	require.Len(t, doc.Messages, 3)
	assert.Equal(t, newest, doc.Messages[2].ID)
}

func TestPrunePrivilegesActiveEnvelopes(t *testing.T) {
	doc := NewDocument()
	active := envelope.New("s", "c", envelope.StageRef{Name: "x"})
	_ = active.TransitionTo(envelope.StatusSent)
	doc.Messages = append(doc.Messages, active)
	for i := 0; i < 9; i++ {
		env := envelope.New("s", "c", envelope.StageRef{Name: "x"})
		_ = env.TransitionTo(envelope.StatusDone)
		doc.Messages = append(doc.Messages, env)
	}

	doc.Prune(3)

	require.Len(t, doc.Messages, 3)
	// The oldest entry is active and survives; the settled slots go to the
	// most recent entries.
	assert.Equal(t, active.ID, doc.Messages[0].ID)
}

func TestPruneAppliedOnAppend(t *testing.T) {
	store := tempStore(t, 4)
	for i := 0; i < 10; i++ {
		env := envelope.New("s", "c", envelope.StageRef{Name: "x"})
		_ = env.TransitionTo(envelope.StatusDone)
		require.NoError(t, store.Append(env))
	}

	doc, err := store.Read()
	require.NoError(t, err)
	assert.Len(t, doc.Messages, 4)
}

// =============================================================================
// AUDIT LOG TESTS
// =============================================================================

func TestAuditLogNeverPrunes(t *testing.T) {
	audit := NewAuditLog(filepath.Join(t.TempDir(), "audit.json"))
	for i := 0; i < 250; i++ {
		env := envelope.New("s", "c", envelope.StageRef{Name: "x"})
		_ = env.TransitionTo(envelope.StatusDone)
		require.NoError(t, audit.Record(env))
	}

	doc, err := audit.Read()
	require.NoError(t, err)
	assert.Len(t, doc.Messages, 250)
}

// =============================================================================
// WATCHER TESTS
// =============================================================================

func TestWatcherWakesOnRewrite(t *testing.T) {
	store := tempStore(t, 0)
	require.NoError(t, store.EnsureExists())

	w, err := NewWatcher(store.Path())
	require.NoError(t, err)
	defer w.Close()

	env := sentEnvelope(envelope.StageRef{Name: "interpreted", Iteration: 1})
	require.NoError(t, store.Append(env))

	select {
	case <-w.Wake():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not wake after mailbox rewrite")
	}
}
