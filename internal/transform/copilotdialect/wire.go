// Package copilotdialect implements the near-passthrough OpenAI-native
// dialect shared by GitHub Copilot Chat and any LiteLLM-proxied model (spec
// §4.4.3). The wire shape is already the canonical OpenAI shape, so request,
// response and chunk bodies are the canonical gwtypes structs themselves;
// this package's job is narrow — prefix stripping, tool-call coercion, and
// capturing the terminal usage chunk — not reformatting.
package copilotdialect
