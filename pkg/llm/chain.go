package llm

import "context"

// Middleware represents a function that wraps a Provider with additional
// behavior. Middlewares are composed using Chain() to create a pipeline.
type Middleware func(next Provider) Provider

// providerFunc is an adapter that allows plain functions to implement Provider.
type providerFunc struct {
	complete  func(context.Context, CompletionRequest) (CompletionResponse, error)
	stream    func(context.Context, CompletionRequest) (<-chan StreamChunk, error)
	embed     func(context.Context, string) ([]float32, error)
	modelName func() string
}

func (f providerFunc) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return f.complete(ctx, req)
}

func (f providerFunc) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	return f.stream(ctx, req)
}

func (f providerFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.embed(ctx, text)
}

func (f providerFunc) ModelName() string {
	return f.modelName()
}

// WrapProvider creates a Provider from the given function implementations.
// This is a helper for middleware implementations that wrap behavior around
// Complete and Stream; Embed and ModelName usually delegate unchanged.
func WrapProvider(
	complete func(context.Context, CompletionRequest) (CompletionResponse, error),
	stream func(context.Context, CompletionRequest) (<-chan StreamChunk, error),
	embed func(context.Context, string) ([]float32, error),
	modelName func() string,
) Provider {
	return providerFunc{
		complete:  complete,
		stream:    stream,
		embed:     embed,
		modelName: modelName,
	}
}

// PassThrough returns a middleware-shaped wrapper that only overrides Complete
// and Stream, delegating Embed and ModelName to next.
func PassThrough(
	next Provider,
	complete func(context.Context, CompletionRequest) (CompletionResponse, error),
	stream func(context.Context, CompletionRequest) (<-chan StreamChunk, error),
) Provider {
	return WrapProvider(complete, stream, next.Embed, next.ModelName)
}

// Chain composes multiple middlewares around a base Provider.
// Middlewares are applied in order, with earlier middlewares outermost:
//
//	Chain(p, mw1, mw2, mw3) builds the call stack mw1 -> mw2 -> mw3 -> p
//
// so mw1 runs first and can short-circuit before the request reaches p.
func Chain(base Provider, middlewares ...Middleware) Provider {
	provider := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		provider = middlewares[i](provider)
	}
	return provider
}
