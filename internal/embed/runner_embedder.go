package embed

import (
	"context"
	"fmt"
)

// runnerEmbedder adapts an OnnxRunner to the Embedder interface.
type runnerEmbedder struct {
	runner OnnxRunner
	model  string
}

func newRunnerEmbedder(runner OnnxRunner, modelName string) *runnerEmbedder {
	return &runnerEmbedder{runner: runner, model: modelName}
}

func (e *runnerEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return e.runner.Run(text)
}

func (e *runnerEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		vec, err := e.runner.Run(t)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

func (e *runnerEmbedder) Dimensions() int { return e.runner.Dimensions() }

func (e *runnerEmbedder) ModelName() string { return e.model }

func (e *runnerEmbedder) Available(ctx context.Context) bool { return true }

func (e *runnerEmbedder) Close() error { return e.runner.Close() }
