package router

import (
	"regexp"
	"strings"

	"github.com/zen-systems/mindgate/pkg/task"
)

// Rule holds the lexical markers that vote for one task type.
// Triggers are matched as whole words or phrases; patterns are strong
// structural markers and count double.
type Rule struct {
	Type     task.Type
	Triggers []string
	Patterns []*regexp.Regexp
}

const patternWeight = 2

// DefaultRules is the built-in marker table.
var DefaultRules = []Rule{
	{
		Type: task.TypeCoding,
		Triggers: []string{
			"code", "function", "implement", "refactor", "debug", "bug", "compile",
			"stack trace", "unit test", "script", "regex", "sql", "golang", "python",
			"javascript", "typescript", "rust", "class", "method", "syntax error",
			"write a program", "api", "endpoint", "segfault", "null pointer",
		},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile("```"),
			regexp.MustCompile(`\b(func|def|fn)\s+\w+\s*\(`),
			regexp.MustCompile(`(?m)^\s*(import|package|#include)\s+\S+`),
			regexp.MustCompile(`\w+\.\w+\([^)]*\)\s*;?`),
		},
	},
	{
		Type: task.TypeMathematical,
		Triggers: []string{
			"calculate", "equation", "solve", "integral", "derivative", "proof", "prove",
			"theorem", "probability", "matrix", "algebra", "formula", "arithmetic",
			"sum of", "square root", "percentage",
		},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`\d+(\.\d+)?\s*[-+*/^×÷]\s*\d+`),
			regexp.MustCompile(`\b[a-z]\s*(\^\s*\d+)?\s*[-+=]\s*[-+]?\d`),
			regexp.MustCompile(`\b(sin|cos|tan|log|ln|sqrt)\s*\(`),
			regexp.MustCompile(`[∫∑∏√π≤≥≠∞]`),
		},
	},
	{
		Type: task.TypeMultimodal,
		Triggers: []string{
			"image", "photo", "picture", "diagram", "screenshot", "describe this image",
			"chart", "video", "audio", "ocr", "what's in this", "transcribe",
		},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\.(png|jpe?g|gif|webp|svg|bmp|mp4|mov|mp3|wav)\b`),
			regexp.MustCompile(`(?i)data:(image|audio|video)/`),
		},
	},
	{
		Type: task.TypeCreative,
		Triggers: []string{
			"story", "poem", "haiku", "lyrics", "creative", "fiction", "imagine",
			"brainstorm", "slogan", "novel", "character", "screenplay", "limerick",
			"write a song", "tagline",
		},
	},
	{
		Type: task.TypeReasoning,
		Triggers: []string{
			"why", "explain", "reason", "analyze", "analyse", "compare", "evaluate",
			"think through", "step by step", "pros and cons", "trade-off", "tradeoff",
			"deduce", "infer", "implications", "justify", "logical",
		},
	},
	{
		Type: task.TypeFast,
		Triggers: []string{
			"quick", "quickly", "briefly", "tl;dr", "tldr", "one word", "yes or no",
			"short answer", "in a sentence", "asap",
		},
	},
}

// containsTrigger checks if the prompt contains the trigger phrase as a word or
// phrase boundary match. Every occurrence is tried, not only the first.
func containsTrigger(prompt, trigger string) bool {
	if trigger == "" {
		return false
	}
	offset := 0
	for {
		idx := strings.Index(prompt[offset:], trigger)
		if idx == -1 {
			return false
		}
		idx += offset

		endIdx := idx + len(trigger)
		before := idx == 0 || !isWordChar(prompt[idx-1])
		after := endIdx >= len(prompt) || !isWordChar(prompt[endIdx])
		if before && after {
			return true
		}
		offset = idx + 1
	}
}

func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}
