// Package provider adapts generation requests to the upstream image
// back-ends and normalizes their answers.
//
// Two wire formats are supported. The chat family accepts an OpenAI-style
// chat-completion body and answers with free text that embeds an image URL
// or a failure notice. The gemini family accepts a generateContent body with
// inline image parts and answers with base64 image data or text.
//
// Extraction is deliberately lenient: provider answers drift between
// camelCase and snake_case keys and between string and array content, so
// bodies are probed with gjson paths instead of being decoded into fixed
// structs.
package provider
