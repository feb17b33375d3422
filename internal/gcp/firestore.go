package gcp

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
)

var errNoProjectID = errors.New("projectID must be provided to create a firestore client")

// NewFirestoreClient connects to databaseID in projectID. An empty databaseID
// selects the project's default database.
func NewFirestoreClient(ctx context.Context, projectID, databaseID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, errNoProjectID
	}
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client for database %s: %w", databaseID, err)
	}
	return client, nil
}

// UpdateStatus sets a status field and, when given, the error details of a record.
func UpdateStatus(ctx context.Context, docRef *firestore.DocumentRef, field, status, errDetails string) error {
	updates := []firestore.Update{
		{Path: field, Value: status},
	}
	if errDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: errDetails})
	}
	_, err := docRef.Update(ctx, updates)
	return err
}
