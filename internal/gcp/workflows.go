package gcp

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
)

// WorkflowTarget names a deployed Cloud Workflow.
type WorkflowTarget struct {
	ProjectID string
	Location  string
	Workflow  string
}

func (t WorkflowTarget) parent() string {
	return fmt.Sprintf("projects/%s/locations/%s/workflows/%s", t.ProjectID, t.Location, t.Workflow)
}

// StartWorkflow starts an execution of target with args marshalled as its
// JSON argument and returns the execution name.
func StartWorkflow(ctx context.Context, client *executions.Client, target WorkflowTarget, args any) (string, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: target.parent(),
		Execution: &executionspb.Execution{
			Argument: string(payload),
		},
	}
	exec, err := client.CreateExecution(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create workflow execution: %w", err)
	}
	return exec.GetName(), nil
}
