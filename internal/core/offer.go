package core

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"navisol/internal/blob"
	"navisol/pkg/domain"
)

const documentContentType = "application/json"

// OfferDocument is the rendered offer stored alongside a sent quote.
type OfferDocument struct {
	ProjectID     string            `json:"project_id"`
	ProjectNumber int               `json:"project_number"`
	ProjectTitle  string            `json:"project_title"`
	ClientID      string            `json:"client_id,omitempty"`
	Quote         string            `json:"quote"`
	Lines         []QuoteLine       `json:"lines"`
	Total         domain.Money      `json:"total"`
	Notes         string            `json:"notes,omitempty"`
	Scope         map[string]string `json:"scope,omitempty"`
	IssuedAt      time.Time         `json:"issued_at"`
	IssuedBy      domain.AuditActor `json:"issued_by"`
}

func offerKey(projectID string, q Quote) string {
	return fmt.Sprintf("projects/%s/offers/%s.json", projectID, q.Label())
}

// storeOffer renders q and writes it to the blob store.
func (t *txn) storeOffer(ctx context.Context, p Project, q Quote, actor Actor) (*domain.DocumentRef, error) {
	doc := OfferDocument{
		ProjectID:     p.ID,
		ProjectNumber: p.Number,
		ProjectTitle:  p.Title,
		ClientID:      p.ClientID,
		Quote:         q.Label(),
		Lines:         q.Lines,
		Total:         q.Total,
		Notes:         q.Notes,
		Scope:         p.Configuration.Scope,
		IssuedAt:      t.now,
		IssuedBy:      actor.Audit(),
	}
	return t.putDocument(ctx, offerKey(p.ID, q), doc, map[string]string{"project": p.ID, "quote": q.Label()})
}

// putDocument renders v as JSON into the blob store. The key is tracked so
// the blob is removed again if the transaction does not commit.
func (t *txn) putDocument(ctx context.Context, key string, v any, metadata map[string]string) (*domain.DocumentRef, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", key, err)
	}
	sum := sha256.Sum256(raw)
	info, err := t.svc.blobs.Put(ctx, key, bytes.NewReader(raw), blob.PutOptions{
		ContentType: documentContentType,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", key, err)
	}
	t.blobKeys = append(t.blobKeys, key)
	return &domain.DocumentRef{
		Key:         info.Key,
		SHA256:      hex.EncodeToString(sum[:]),
		Size:        int64(len(raw)),
		ContentType: documentContentType,
		StoredAt:    t.now,
	}, nil
}
