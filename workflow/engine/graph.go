package engine

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
)

// compileProcessGraph builds the pipeline as a compiled graph: three stage
// nodes in sequence, then a branch that routes to the reviewer or to
// auto-approval. Every node mutates the shared *WorkflowState; a node error
// aborts the run and is mapped to StepFailed by the caller.
func (o *Orchestrator) compileProcessGraph(ctx context.Context) (compose.Runnable[*WorkflowState, *WorkflowState], error) {
	graph := compose.NewGraph[*WorkflowState, *WorkflowState]()

	if err := graph.AddLambdaNode("classify",
		compose.InvokableLambda(func(ctx context.Context, st *WorkflowState) (*WorkflowState, error) {
			return o.classifyEmail(ctx, st)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node classify: %w", err)
	}

	if err := graph.AddLambdaNode("plan_strategy",
		compose.InvokableLambda(func(ctx context.Context, st *WorkflowState) (*WorkflowState, error) {
			return o.planStrategy(ctx, st)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node plan_strategy: %w", err)
	}

	if err := graph.AddLambdaNode("generate_response",
		compose.InvokableLambda(func(ctx context.Context, st *WorkflowState) (*WorkflowState, error) {
			return o.generateResponse(ctx, st)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node generate_response: %w", err)
	}

	if err := graph.AddLambdaNode("human_review",
		compose.InvokableLambda(func(ctx context.Context, st *WorkflowState) (*WorkflowState, error) {
			return o.humanReview(ctx, st)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node human_review: %w", err)
	}

	if err := graph.AddLambdaNode("auto_approve",
		compose.InvokableLambda(func(ctx context.Context, st *WorkflowState) (*WorkflowState, error) {
			return o.autoApprove(ctx, st)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node auto_approve: %w", err)
	}

	reviewGate := compose.NewGraphBranch(
		func(ctx context.Context, st *WorkflowState) (string, error) {
			if st == nil || st.Response == nil {
				return "", fmt.Errorf("review gate reached without a response result")
			}
			if requiresHumanReview(st.Config, *st.Response) {
				return "human_review", nil
			}
			return "auto_approve", nil
		},
		map[string]bool{
			"human_review": true,
			"auto_approve": true,
		},
	)

	if err := graph.AddEdge(compose.START, "classify"); err != nil {
		return nil, fmt.Errorf("add edge start->classify: %w", err)
	}
	if err := graph.AddEdge("classify", "plan_strategy"); err != nil {
		return nil, fmt.Errorf("add edge classify->plan_strategy: %w", err)
	}
	if err := graph.AddEdge("plan_strategy", "generate_response"); err != nil {
		return nil, fmt.Errorf("add edge plan_strategy->generate_response: %w", err)
	}
	if err := graph.AddBranch("generate_response", reviewGate); err != nil {
		return nil, fmt.Errorf("add review gate branch: %w", err)
	}
	if err := graph.AddEdge("human_review", compose.END); err != nil {
		return nil, fmt.Errorf("add edge human_review->end: %w", err)
	}
	if err := graph.AddEdge("auto_approve", compose.END); err != nil {
		return nil, fmt.Errorf("add edge auto_approve->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("workflow.process_email"))
	if err != nil {
		return nil, fmt.Errorf("compile workflow graph: %w", err)
	}
	return runner, nil
}
