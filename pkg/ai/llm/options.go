package llm

// ChatOptions contains options for generating chat completions
type ChatOptions struct {
	Model       string  // Model name/identifier
	Temperature float32 // Sampling temperature (0.0 to 2.0), always sent
	TopP        float32 // Nucleus sampling (0.0 to 1.0), omitted when zero
	MaxTokens   int     // Reply limit, zero leaves it to the provider
	JSONMode    bool    // Ask for a single JSON object reply
}

// Option is a function type to modify ChatOptions
type Option func(*ChatOptions)

// WithModel sets the model to use. An empty name keeps the current one.
func WithModel(model string) Option {
	return func(o *ChatOptions) {
		if model != "" {
			o.Model = model
		}
	}
}

// WithTemperature sets the sampling temperature
func WithTemperature(temp float32) Option {
	return func(o *ChatOptions) {
		o.Temperature = temp
	}
}

// WithDeterministic pins sampling so the same prompt yields the same reply
// whenever the provider allows it
func WithDeterministic() Option {
	return func(o *ChatOptions) {
		o.Temperature = 0
		o.TopP = 1
	}
}

// WithMaxTokens limits the length of the reply
func WithMaxTokens(tokens int) Option {
	return func(o *ChatOptions) {
		o.MaxTokens = tokens
	}
}

// WithJSONMode requests a JSON object reply
func WithJSONMode() Option {
	return func(o *ChatOptions) {
		o.JSONMode = true
	}
}

// DefaultOptions returns the default options
func DefaultOptions() *ChatOptions {
	return &ChatOptions{
		Temperature: 0.7,
		TopP:        1.0,
	}
}

// Apply builds the effective options from the defaults and opts
func Apply(opts ...Option) *ChatOptions {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return options
}
