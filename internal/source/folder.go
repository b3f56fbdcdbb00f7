// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package source

import (
	"context"

	"github.com/jmorrell/rollcall/internal/models"
)

// FolderItem is one entry of a folder-source listing. Kind tells event
// discovery which adapter the item's events will use; items of other kinds
// are ignored.
type FolderItem struct {
	ID    string            `json:"id"`
	Title string            `json:"title"`
	Kind  models.SourceKind `json:"kind"`
	URI   string            `json:"uri"`
}

// Lister enumerates folder sources during event discovery.
type Lister struct {
	client   *Client
	resolver *Resolver
}

// NewLister creates a folder lister over the shared client and resolver.
func NewLister(client *Client, resolver *Resolver) *Lister {
	return &Lister{client: client, resolver: resolver}
}

// List resolves a folder URI and returns its sheet and form entries.
func (l *Lister) List(ctx context.Context, folderURI string) ([]FolderItem, error) {
	folderID, err := l.resolver.ResolveFolder(folderURI)
	if err != nil {
		return nil, err
	}

	items, err := l.client.FolderItems(ctx, folderID)
	if err != nil {
		return nil, err
	}

	out := items[:0]
	for _, item := range items {
		switch item.Kind {
		case models.SourceSheet, models.SourceForm:
			out = append(out, item)
		}
	}
	return out, nil
}
