package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/legaldocumentflow/internal/models"
)

const runsCollection = "runs"

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// CaseStore persists cases and their analysis runs. Runs live in a
// subcollection of their case.
type CaseStore struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

// NewCaseStore returns a store over the named collection.
func NewCaseStore(client *firestore.Client, collection string) *CaseStore {
	return &CaseStore{client: client, collection: collection, now: time.Now}
}

func (s *CaseStore) caseRef(caseID string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(caseID)
}

// AddDocument records an uploaded document under its role. The returned
// bool is true when the same file was already recorded for that role, in
// which case nothing is written.
func (s *CaseStore) AddDocument(ctx context.Context, caseID, variant string, doc models.CaseDocument) (*models.Case, bool, error) {
	ref := s.caseRef(caseID)
	var (
		result    models.Case
		duplicate bool
	)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		duplicate = false
		c := models.Case{Variant: variant, Status: models.StatusReceived, CreatedAt: s.now()}
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			if err := snap.DataTo(&c); err != nil {
				return fmt.Errorf("decode case: %w", err)
			}
		case status.Code(err) != codes.NotFound:
			return err
		}
		if c.Documents == nil {
			c.Documents = map[string]models.CaseDocument{}
		}
		if prev, ok := c.Documents[doc.Role]; ok && prev.FileHash == doc.FileHash {
			duplicate = true
			result = c
			return nil
		}
		c.Documents[doc.Role] = doc
		result = c
		return tx.Set(ref, c)
	})
	if err != nil {
		return nil, false, fmt.Errorf("add document to case %s: %w", caseID, err)
	}
	return &result, duplicate, nil
}

// ClaimTrigger moves a case to TRIGGERED and reports whether this caller
// made the transition. Only the first caller may start the workflow.
func (s *CaseStore) ClaimTrigger(ctx context.Context, caseID string) (bool, error) {
	ref := s.caseRef(caseID)
	claimed := false
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		claimed = false
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var c models.Case
		if err := snap.DataTo(&c); err != nil {
			return fmt.Errorf("decode case: %w", err)
		}
		if c.Status == models.StatusTriggered || c.Status == models.StatusRunning {
			return nil
		}
		claimed = true
		return tx.Update(ref, []firestore.Update{{Path: "status", Value: models.StatusTriggered}})
	})
	if err != nil {
		return false, fmt.Errorf("claim trigger for case %s: %w", caseID, err)
	}
	return claimed, nil
}

// UpdateCase sets the case status, and the error details when not empty.
func (s *CaseStore) UpdateCase(ctx context.Context, caseID, status, errDetails string) error {
	updates := []firestore.Update{{Path: "status", Value: status}}
	if errDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: errDetails})
	}
	_, err := s.caseRef(caseID).Update(ctx, updates)
	return err
}

// SetExecution records the workflow execution started for a case.
func (s *CaseStore) SetExecution(ctx context.Context, caseID, executionID string) error {
	_, err := s.caseRef(caseID).Update(ctx, []firestore.Update{{Path: "workflowExecutionId", Value: executionID}})
	return err
}

// CreateRun stores a new run record.
func (s *CaseStore) CreateRun(ctx context.Context, runID string, run models.AnalysisRun) error {
	if _, err := s.caseRef(run.CaseID).Collection(runsCollection).Doc(runID).Set(ctx, run); err != nil {
		return fmt.Errorf("create run %s: %w", runID, err)
	}
	return nil
}

// CompleteRun overwrites a run record with its final state.
func (s *CaseStore) CompleteRun(ctx context.Context, runID string, run models.AnalysisRun) error {
	run.CompletedAt = s.now()
	if _, err := s.caseRef(run.CaseID).Collection(runsCollection).Doc(runID).Set(ctx, run); err != nil {
		return fmt.Errorf("complete run %s: %w", runID, err)
	}
	return nil
}
