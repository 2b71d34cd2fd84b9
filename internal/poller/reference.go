package poller

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// LastArticleKey is where the article of the most recent checkout is kept
// across the redirect to the gateway.
const LastArticleKey = "lastArticleId"

var ErrNoReference = errors.New("no article reference to confirm")

type Source string

const (
	SourceURL         Source = "url"
	SourceTransaction Source = "transaction"
	SourceLocal       Source = "local"
	SourceSession     Source = "session"
)

type Reference struct {
	ArticleID     string
	TransactionID string
	Source        Source
}

// TransactionLookup maps a transaction id to its article.
type TransactionLookup interface {
	ArticleForTransaction(ctx context.Context, transactionID string) (string, error)
}

// Recovery finds the article to confirm after the browser returns from the
// gateway. Order: article_id in the URL, the article of transaction_id in
// the URL, local persistence, session persistence.
type Recovery struct {
	Local   Store
	Session Store
	Lookup  TransactionLookup
}

func (r Recovery) Recover(ctx context.Context, query url.Values) (Reference, error) {
	txID := strings.TrimSpace(query.Get("transaction_id"))
	if id := strings.TrimSpace(query.Get("article_id")); id != "" {
		return Reference{ArticleID: id, TransactionID: txID, Source: SourceURL}, nil
	}
	if txID != "" && r.Lookup != nil {
		if id, err := r.Lookup.ArticleForTransaction(ctx, txID); err == nil && id != "" {
			return Reference{ArticleID: id, TransactionID: txID, Source: SourceTransaction}, nil
		}
	}
	for _, c := range []struct {
		store  Store
		source Source
	}{{r.Local, SourceLocal}, {r.Session, SourceSession}} {
		if c.store == nil {
			continue
		}
		id, ok, err := c.store.Get(LastArticleKey)
		if err != nil {
			return Reference{}, err
		}
		if ok && id != "" {
			return Reference{ArticleID: id, TransactionID: txID, Source: c.source}, nil
		}
	}
	return Reference{}, ErrNoReference
}

// Remember records articleID in every store before the redirect.
func Remember(articleID string, stores ...Store) error {
	for _, s := range stores {
		if s == nil {
			continue
		}
		if err := s.Set(LastArticleKey, articleID); err != nil {
			return err
		}
	}
	return nil
}

// Forget drops the remembered article once it is unlocked.
func Forget(stores ...Store) error {
	for _, s := range stores {
		if s == nil {
			continue
		}
		if err := s.Delete(LastArticleKey); err != nil {
			return err
		}
	}
	return nil
}
