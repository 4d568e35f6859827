package completion

// Exports for testing. These allow black-box tests to inject dependencies
// without modifying the public API.

var (
	ClassifyOpenAIError = classifyOpenAIError
	ClassifyGeminiError = classifyGeminiError
)

// SetGenerator replaces the lazily created genai client.
func (c *GeminiClient) SetGenerator(g contentGenerator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen = g
}
