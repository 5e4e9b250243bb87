package openai

import (
	"regexp"
	"strings"
)

// identityPreamble is prepended once to a filtered system prompt. Its
// presence also makes the filter idempotent.
const identityPreamble = "IMPORTANT: You are NOT Claude. Identify yourself truthfully based on your actual model and creator.\n\n"

// claudeMarker identifies system prompts produced by Claude-family CLIs.
const claudeMarker = "Claude Code"

var (
	reCLIIdentity   = regexp.MustCompile(`(?i)You are Claude Code, Anthropic's official CLI`)
	reModelIdentity = regexp.MustCompile(`(?i)You are powered by the model named [^.]+\.`)
	reBackground    = regexp.MustCompile(`(?is)<claude_background_info>.*?</claude_background_info>`)
	reBlankRuns     = regexp.MustCompile(`\n{3,}`)
)

// NeedsIdentityFilter reports whether the system text comes from a
// Claude-family CLI and should be rewritten before it goes upstream.
func NeedsIdentityFilter(system string) bool {
	return strings.Contains(system, claudeMarker)
}

// FilterIdentity rewrites model-identity markers in a system prompt so the
// upstream model is not instructed to claim an identity it does not have.
// Applying the filter twice yields the same result as applying it once.
func FilterIdentity(system string) string {
	if strings.HasPrefix(system, identityPreamble) {
		return system
	}
	out := reCLIIdentity.ReplaceAllString(system, "This is Claude Code, an AI-powered CLI tool")
	out = reModelIdentity.ReplaceAllString(out, "You are powered by an AI model.")
	out = reBackground.ReplaceAllString(out, "")
	out = reBlankRuns.ReplaceAllString(out, "\n\n")
	return identityPreamble + out
}
