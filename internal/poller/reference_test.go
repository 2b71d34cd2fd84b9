package poller

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lookupMap map[string]string

func (m lookupMap) ArticleForTransaction(_ context.Context, txID string) (string, error) {
	if id, ok := m[txID]; ok {
		return id, nil
	}
	return "", errors.New("not found")
}

func TestRecovery_URLArticleWins(t *testing.T) {
	local := NewMemoryStore()
	require.NoError(t, local.Set(LastArticleKey, "from-local"))
	r := Recovery{Local: local, Lookup: lookupMap{"tx-1": "from-tx"}}

	ref, err := r.Recover(context.Background(), url.Values{
		"article_id":     {"from-url"},
		"transaction_id": {"tx-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, Reference{ArticleID: "from-url", TransactionID: "tx-1", Source: SourceURL}, ref)
}

func TestRecovery_TransactionLookup(t *testing.T) {
	local := NewMemoryStore()
	require.NoError(t, local.Set(LastArticleKey, "from-local"))
	r := Recovery{Local: local, Lookup: lookupMap{"tx-1": "from-tx"}}

	ref, err := r.Recover(context.Background(), url.Values{"transaction_id": {"tx-1"}})
	require.NoError(t, err)
	assert.Equal(t, "from-tx", ref.ArticleID)
	assert.Equal(t, SourceTransaction, ref.Source)
}

func TestRecovery_FallsBackToLocal(t *testing.T) {
	local := NewMemoryStore()
	session := NewMemoryStore()
	require.NoError(t, Remember("a-7", local, session))
	r := Recovery{Local: local, Session: session, Lookup: lookupMap{}}

	// Gateway redirect carried nothing usable.
	ref, err := r.Recover(context.Background(), url.Values{"transaction_id": {"unknown"}})
	require.NoError(t, err)
	assert.Equal(t, "a-7", ref.ArticleID)
	assert.Equal(t, SourceLocal, ref.Source)
	assert.Equal(t, "unknown", ref.TransactionID)
}

func TestRecovery_SessionLast(t *testing.T) {
	session := NewMemoryStore()
	require.NoError(t, session.Set(LastArticleKey, "a-8"))
	r := Recovery{Local: NewMemoryStore(), Session: session}

	ref, err := r.Recover(context.Background(), url.Values{})
	require.NoError(t, err)
	assert.Equal(t, SourceSession, ref.Source)
	assert.Equal(t, "a-8", ref.ArticleID)
}

func TestRecovery_NothingFound(t *testing.T) {
	r := Recovery{Local: NewMemoryStore()}
	_, err := r.Recover(context.Background(), url.Values{})
	assert.ErrorIs(t, err, ErrNoReference)
}

func TestForget(t *testing.T) {
	local := NewMemoryStore()
	require.NoError(t, Remember("a-1", local, nil))
	require.NoError(t, Forget(local, nil))
	_, ok, err := local.Get(LastArticleKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecovery_LocalReferenceDrivesPoller(t *testing.T) {
	local := NewMemoryStore()
	require.NoError(t, Remember("A3", local))

	// The gateway sent the browser back without any reference.
	ref, err := Recovery{Local: local, Session: NewMemoryStore()}.Recover(context.Background(), url.Values{})
	require.NoError(t, err)
	require.Equal(t, SourceLocal, ref.Source)

	rec := &scriptedReconciler{answers: []func() (*Outcome, error){pendingOutcome, unlockedOutcome}}
	p, sched := newTestPoller(rec)
	p.Start(context.Background(), ref.ArticleID)
	for sched.fire() {
	}

	assert.Equal(t, PhaseUnlocked, p.State().Phase)
	assert.Equal(t, "A3", p.State().ArticleID)
	assert.Equal(t, []string{"A3", "A3"}, rec.articles)
}
