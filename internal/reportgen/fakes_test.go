package reportgen

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/research-reports/internal/domain/reports"
)

type fakeStore struct {
	mu        sync.Mutex
	hits      map[string][]reports.SearchHit // query -> hits
	searchErr map[string]error
	docs      map[string]*reports.Document
	fetched   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		hits:      map[string][]reports.SearchHit{},
		searchErr: map[string]error{},
		docs:      map[string]*reports.Document{},
	}
}

func (f *fakeStore) addDoc(title, content string) string {
	id := uuid.New()
	f.docs[id.String()] = &reports.Document{ID: id, CollectionID: "support", Title: title, Content: content}
	return id.String()
}

func (f *fakeStore) Search(ctx context.Context, collectionID, queryText string, topK int) ([]reports.SearchHit, error) {
	if err := f.searchErr[queryText]; err != nil {
		return nil, err
	}
	return f.hits[queryText], nil
}

func (f *fakeStore) FetchDocument(ctx context.Context, documentID string) (*reports.Document, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, documentID)
	f.mu.Unlock()
	if d, ok := f.docs[documentID]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
}

func (f *fakeStore) ValidateCollection(ctx context.Context, collectionID string) error {
	if collectionID == "" {
		return ErrInvalidCollection
	}
	return nil
}

type completerFunc func(ctx context.Context, req CompletionRequest) (CompletionResult, error)

func (f completerFunc) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	return f(ctx, req)
}

func textReply(s string) completerFunc {
	return func(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
		return CompletionResult{RawText: s}, nil
	}
}

// blockUntilDone waits for the call deadline, like a provider that never answers.
func blockUntilDone() completerFunc {
	return func(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
		<-ctx.Done()
		return CompletionResult{}, ctx.Err()
	}
}

func mustPrompts() *Prompts {
	p, err := LoadPrompts("")
	if err != nil {
		panic(err)
	}
	return p
}
