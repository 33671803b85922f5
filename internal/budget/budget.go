// Package budget provides token budget estimation for the compliance query
// pipeline. Because the pipeline supports multiple LLM backends with
// different tokenizers, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose). This deliberately
// under-estimates token counts to leave headroom for model-specific overhead.
package budget

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English text; using 3 would
	// be more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// Conservative enough to fit small quantized models (Phi-3 Mini, Llama 3
	// 8B) while leaving room for the output.
	DefaultMaxContextTokens = 3000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// ExceedsBudget reports whether the estimated token count of prompt is over
// maxTokens. maxTokens <= 0 selects DefaultMaxContextTokens. The synthesis
// stage uses this to warn when a grounding prompt is likely to be truncated
// by the model's context window.
func ExceedsBudget(prompt string, maxTokens int) bool {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}
	return Estimate(prompt) > maxTokens
}
