// Package dedup fingerprints versioned content and collapses identical
// revisions of a poem into one version row.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"journal-sync/internal/contextutil"
	"journal-sync/internal/document"
	"journal-sync/internal/errs"
	"journal-sync/internal/storage"
)

// domain separates poem fingerprints from any other hash kept in the store.
const domain = "journal/poem-version/v1"

// Normalize returns the canonical form of content used for fingerprinting:
// LF line endings, no trailing whitespace on any line, no trailing blank
// lines, NFC composition.
func Normalize(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return norm.NFC.String(strings.TrimRight(strings.Join(lines, "\n"), "\n"))
}

// Fingerprint returns the hex SHA-256 of the normalized content.
func Fingerprint(content string) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write([]byte(Normalize(content)))
	return hex.EncodeToString(h.Sum(nil))
}

// Version describes a revision to record under a poem.
type Version struct {
	PoemID  int64
	Content string
	// RevisionDate is explicit when set; otherwise EntryDate is used, then
	// today.
	RevisionDate string
	EntryDate    string
	EntryID      *int64
	Notes        string
}

// Engine records poem versions.
type Engine struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

// New creates an Engine.
func New() *Engine {
	return &Engine{Now: time.Now}
}

func (e *Engine) revisionDate(v Version) string {
	switch {
	case v.RevisionDate != "":
		return v.RevisionDate
	case v.EntryDate != "":
		return v.EntryDate
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return now().Format(document.DateLayout)
}

// Resolve returns the version of v.PoemID whose fingerprint matches
// v.Content, creating it when absent. The boolean reports whether a row was
// created.
func (e *Engine) Resolve(ctx context.Context, q storage.DBTX, v Version) (*storage.PoemVersion, bool, error) {
	if strings.TrimSpace(v.Content) == "" {
		return nil, false, errs.Invalid("poems.content", "content is required")
	}
	poems := storage.NewPoemRepo(q)
	hash := Fingerprint(v.Content)

	existing, err := poems.FindVersionByHash(ctx, v.PoemID, hash)
	if err == nil {
		return existing, false, nil
	}
	if !isNotFound(err) {
		return nil, false, err
	}

	pv := &storage.PoemVersion{
		PoemID:       v.PoemID,
		Content:      v.Content,
		ContentHash:  hash,
		RevisionDate: e.revisionDate(v),
		Notes:        v.Notes,
		EntryID:      v.EntryID,
	}
	err = storage.Savepoint(ctx, q, func() error {
		return poems.CreateVersion(ctx, pv)
	})
	if err == nil {
		contextutil.LoggerFromContext(ctx).DebugContext(ctx, "created poem version",
			"poem_id", v.PoemID,
			"version_id", pv.ID,
			"revision_date", pv.RevisionDate,
		)
		return pv, true, nil
	}
	if !storage.IsUniqueViolation(err) {
		return nil, false, errs.Database("create", "poem version", v.PoemID, err)
	}

	// A concurrent writer stored the same content first.
	existing, err = poems.FindVersionByHash(ctx, v.PoemID, hash)
	if err != nil {
		return nil, false, errs.Database("create", "poem version", v.PoemID, err)
	}
	return existing, false, nil
}

// UpdateContent replaces a version's content and regenerates its
// fingerprint. Content identical to a sibling version is a conflict.
func (e *Engine) UpdateContent(ctx context.Context, q storage.DBTX, versionID int64, content string) (*storage.PoemVersion, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errs.Invalid("poems.content", "content is required")
	}
	poems := storage.NewPoemRepo(q)
	if err := poems.UpdateVersionContent(ctx, versionID, content, Fingerprint(content)); err != nil {
		return nil, err
	}
	return poems.GetVersion(ctx, versionID)
}

func isNotFound(err error) bool {
	return errors.Is(err, errs.ErrNotFound)
}
