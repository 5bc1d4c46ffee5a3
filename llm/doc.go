// Package llm provides the provider-neutral layer shared by every model backend.
//
// # Core Concepts
//
//  1. Requests: a Request is one completion call against one model. It is
//     never mutated by the layers above; WithModel returns a copy.
//
//  2. Client Interface: Client.Generate returns the complete response text.
//     Optional capabilities (ModelLister, WarmUpper, Pinger) are separate
//     interfaces so cloud providers only implement what they support.
//
//  3. Middleware: Middleware hooks decorate a Client with logging, metrics and
//     similar concerns without modifying provider implementations.
//
//  4. Errors: every provider converts transport failures into *Error exactly
//     once. The ErrorType tag is what retry and fallback logic switch on.
//
//  5. Registry: ProviderRegistry picks a configured provider and resolves its
//     connection settings, falling back to the usual environment variables.
//
// Usage Example
//
//	registry := llm.NewProviderRegistry(&llm.ProviderConfig{OllamaModel: "llama3.2"}, []string{llm.ProviderOllama})
//	key, err := registry.Resolve(llm.ProviderOllama)
//	if err != nil {
//		return err
//	}
//	client, err := ollama.NewClient(ollama.Config{Endpoint: key.Endpoint, Model: key.Model}, logger)
//	resp, err := client.Generate(ctx, &llm.Request{Prompt: "hi"})
//	if llm.IsType(err, llm.ErrorTypeModelNotFound) {
//		// pull the model
//	}
package llm
