package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/MeKo-Tech/marginalia/internal/annotation"
	"github.com/MeKo-Tech/marginalia/internal/persistence"
	"github.com/MeKo-Tech/marginalia/internal/workspace"
)

// Open restores a session from local storage. Every later mutation of
// annotations, bookmarks or the workspace is written back to local.
func Open(ctx context.Context, document string, totalPages int, local *persistence.DocumentStore, opts ...Option) (*Session, error) {
	probe := &Session{logger: slog.Default()}
	for _, o := range opts {
		o(probe)
	}
	logger := probe.logger

	listeners := annotation.NewListeners()
	store := annotation.NewStore(
		annotation.WithListeners(listeners),
		annotation.WithPersister(local),
		annotation.WithLogger(logger),
	)
	pages, err := local.Pages(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing stored pages of %s: %w", document, err)
	}
	for _, page := range pages {
		anns, pending, err := local.LoadPage(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("loading page %d of %s: %w", page, document, err)
		}
		store.Restore(page, anns, pending)
	}

	ws := workspace.New(workspace.WithPersister(local), workspace.WithLogger(logger))
	st, err := local.LoadWorkspace(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading workspace of %s: %w", document, err)
	}
	ws.Restore(st)

	bms, err := local.LoadBookmarks(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading bookmarks of %s: %w", document, err)
	}

	base := []Option{
		WithListeners(listeners),
		WithStore(store),
		WithWorkspace(ws),
		WithBookmarks(persistence.NewBookmarks(bms, local, logger)),
	}
	return New(document, totalPages, append(base, opts...)...), nil
}

// Snapshots collects, per page, the server copy and the local committed and
// pending lists, ready for persistence.RemoteClient.Save.
func (s *Session) Snapshots(server map[int]persistence.RemotePage) []persistence.PageSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int]bool)
	var pages []int
	for _, p := range s.store.Pages() {
		seen[p] = true
		pages = append(pages, p)
	}
	for p := range server {
		if !seen[p] {
			pages = append(pages, p)
		}
	}
	sort.Ints(pages)

	out := make([]persistence.PageSnapshot, 0, len(pages))
	for _, p := range pages {
		out = append(out, persistence.PageSnapshot{
			Page:        p,
			Server:      server[p],
			Annotations: s.store.Annotations(p),
			Pending:     s.store.Pending(p),
		})
	}
	return out
}

// ImportRemote adds fetched annotations whose ids are not known locally and
// returns how many were added.
func (s *Session) ImportRemote(pages map[int]persistence.RemotePage) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]int, 0, len(pages))
	for p := range pages {
		keys = append(keys, p)
	}
	sort.Ints(keys)

	added := 0
	for _, p := range keys {
		for _, a := range pages[p].Annotations() {
			if _, ok := s.store.Find(a.ID); ok {
				continue
			}
			s.store.Add(a)
			added++
		}
	}
	return added
}
