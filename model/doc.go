// Package model defines the provider‑agnostic abstractions for interacting
// with language models.
//
// Core goals:
//   - Unify streaming + non‑streaming generation behind a single interface
//   - Normalize tool / function call representation (ToolDefinition, ToolCall)
//   - Resolve configuration model names to providers (Registry)
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (model/openai, model/anthropic) implement Model so agents and
// flows stay decoupled from vendor SDKs.
package model
