package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	nodex "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/nodes/orchestrator"
)

func (o *Orchestrator) compileHandleMessageGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("load_or_create_user",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadOrCreateUser(ctx, in, o.store, o.locale)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_or_create_user: %w", err)
	}

	if err := graph.AddLambdaNode("ingest_media",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.IngestMedia(ctx, in, o.store, o.transcriber)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node ingest_media: %w", err)
	}

	if err := graph.AddLambdaNode("append_history",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.AppendHistory(in, o.systemPrompt)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node append_history: %w", err)
	}

	if err := graph.AddLambdaNode("classify",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Classify(ctx, in, o.classifier)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node classify: %w", err)
	}

	if err := graph.AddLambdaNode("run_immediate",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.RunImmediate(ctx, in, o.store, o.assistant)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node run_immediate: %w", err)
	}

	if err := graph.AddLambdaNode("schedule_deferred",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ScheduleDeferred(ctx, in, o.deferrer, o.store, o.assistant)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node schedule_deferred: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_reply",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_reply: %w", err)
	}

	mediaBranch := compose.NewGraphBranch(
		func(ctx context.Context, in *nodex.GraphState) (string, error) {
			if in.Path == nodex.PathTranscriptionFailed {
				return "finalize_reply", nil
			}
			return "append_history", nil
		},
		map[string]bool{
			"append_history": true,
			"finalize_reply": true,
		},
	)
	if err := graph.AddBranch("ingest_media", mediaBranch); err != nil {
		return nil, fmt.Errorf("add branch ingest_media: %w", err)
	}

	dispatchBranch := compose.NewGraphBranch(
		func(ctx context.Context, in *nodex.GraphState) (string, error) {
			if in.Defer {
				return "schedule_deferred", nil
			}
			return "run_immediate", nil
		},
		map[string]bool{
			"run_immediate":     true,
			"schedule_deferred": true,
		},
	)
	if err := graph.AddBranch("classify", dispatchBranch); err != nil {
		return nil, fmt.Errorf("add branch classify: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "load_or_create_user"},
		{"load_or_create_user", "ingest_media"},
		{"append_history", "classify"},
		{"run_immediate", "finalize_reply"},
		{"schedule_deferred", "finalize_reply"},
		{"finalize_reply", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.handle_message"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}
