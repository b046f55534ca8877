package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/oauth-demo/internal/crypto"
	"github.com/dgellow/oauth-demo/internal/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Ensure FirestoreFlowStore implements FlowStore
var _ FlowStore = (*FirestoreFlowStore)(nil)

// FirestoreFlowStore stores pending flows in a Firestore collection, one
// document per state. Reads and deletes happen in one transaction.
type FirestoreFlowStore struct {
	client     *firestore.Client
	projectID  string
	collection string
	encryptor  crypto.Encryptor
	now        func() time.Time
}

// FlowDoc represents a pending flow document in Firestore
type FlowDoc struct {
	State          string `firestore:"state"`
	SealedVerifier string `firestore:"verifier,omitempty"`
	PKCE           bool   `firestore:"pkce"`
	CreatedAt      int64  `firestore:"created_at"`
	ExpiresAt      int64  `firestore:"expires_at"`
}

// FromPendingFlow converts a flow to its document form with the verifier sealed
func FromPendingFlow(flow *PendingFlow, encryptor crypto.Encryptor) (*FlowDoc, error) {
	sealed, err := sealVerifier(encryptor, flow.Verifier)
	if err != nil {
		return nil, err
	}
	return &FlowDoc{
		State:          flow.State,
		SealedVerifier: sealed,
		PKCE:           flow.PKCE,
		CreatedAt:      flow.CreatedAt.UnixNano(),
		ExpiresAt:      flow.ExpiresAt.UnixNano(),
	}, nil
}

// ToPendingFlow converts the document back, decrypting the verifier
func (d *FlowDoc) ToPendingFlow(encryptor crypto.Encryptor) (*PendingFlow, error) {
	verifier, err := openVerifier(encryptor, d.SealedVerifier)
	if err != nil {
		return nil, err
	}
	return &PendingFlow{
		State:     d.State,
		Verifier:  verifier,
		PKCE:      d.PKCE,
		CreatedAt: time.Unix(0, d.CreatedAt),
		ExpiresAt: time.Unix(0, d.ExpiresAt),
	}, nil
}

// NewFirestoreFlowStore creates a new Firestore flow store
func NewFirestoreFlowStore(ctx context.Context, projectID, database, collection string, encryptor crypto.Encryptor) (*FirestoreFlowStore, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("firestore", "Connected to Firestore flow store", map[string]any{
		"project":    projectID,
		"database":   database,
		"collection": collection,
	})

	return &FirestoreFlowStore{
		client:     client,
		projectID:  projectID,
		collection: collection,
		encryptor:  encryptor,
		now:        time.Now,
	}, nil
}

// Save writes the flow document, overwriting any document for the same state
func (s *FirestoreFlowStore) Save(ctx context.Context, flow *PendingFlow) error {
	if err := validateFlow(flow); err != nil {
		return err
	}

	doc, err := FromPendingFlow(flow, s.encryptor)
	if err != nil {
		return err
	}

	if _, err := s.client.Collection(s.collection).Doc(flow.State).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to store flow: %w", err)
	}
	return nil
}

// GetAndDelete reads and deletes the flow document in a transaction
func (s *FirestoreFlowStore) GetAndDelete(ctx context.Context, state string) (*PendingFlow, error) {
	ref := s.client.Collection(s.collection).Doc(state)

	var doc FlowDoc
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrFlowNotFound
			}
			return fmt.Errorf("failed to get flow: %w", err)
		}
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("failed to unmarshal flow: %w", err)
		}
		return tx.Delete(ref)
	})
	if err != nil {
		if errors.Is(err, ErrFlowNotFound) || status.Code(err) == codes.NotFound {
			return nil, ErrFlowNotFound
		}
		return nil, fmt.Errorf("failed to consume flow: %w", err)
	}

	flow, err := doc.ToPendingFlow(s.encryptor)
	if err != nil {
		return nil, err
	}
	if flow.IsExpired(s.now()) {
		return nil, ErrFlowNotFound
	}
	return flow, nil
}

// CleanupExpired deletes expired flow documents in batches
func (s *FirestoreFlowStore) CleanupExpired(ctx context.Context) (int, error) {
	iter := s.client.Collection(s.collection).
		Where("expires_at", "<=", s.now().UnixNano()).
		Documents(ctx)
	defer iter.Stop()

	count := 0
	batch := s.client.Batch()
	batchSize := 0
	const maxBatchSize = 500 // Firestore batch write limit

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to iterate expired flows: %w", err)
		}

		batch.Delete(doc.Ref)
		batchSize++
		count++

		if batchSize >= maxBatchSize {
			if _, err := batch.Commit(ctx); err != nil {
				return count, fmt.Errorf("failed to commit batch: %w", err)
			}
			batch = s.client.Batch()
			batchSize = 0
		}
	}

	if batchSize > 0 {
		if _, err := batch.Commit(ctx); err != nil {
			return count, fmt.Errorf("failed to commit final batch: %w", err)
		}
	}

	return count, nil
}

// Close closes the Firestore client
func (s *FirestoreFlowStore) Close() error {
	return s.client.Close()
}
