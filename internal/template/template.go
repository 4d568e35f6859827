package template

import (
	"fmt"

	"github.com/alnah/go-docpipe/internal/lang"
)

// Template name constants.
// Use these instead of string literals for compile-time safety.
const (
	Translate = "translate"
	Polish    = "polish"
	Article   = "article"
)

// ---------------------------------------------------------------------------
// Name type - represents a registered template name
// ---------------------------------------------------------------------------

// Name represents a registered template name. Values come from the
// variables below; the zero value must not be used with System() or User().
type Name struct {
	name string
}

// Template names for use in code.
var (
	TranslateName = Name{name: Translate}
	PolishName    = Name{name: Polish}
	ArticleName   = Name{name: Article}
)

type prompts struct {
	system string // format verb: target language
	user   string // format verbs: %[1]s content, %[2]s target language
}

// templates maps template names to their prompts.
// Prompts are versioned with the binary; update requires rebuild.
var templates = map[string]prompts{
	Translate: {system: translateSystem, user: translateUser},
	Polish:    {system: polishSystem, user: polishUser},
	Article:   {system: articleSystem, user: articleUser},
}

// String returns the template name string.
func (n Name) String() string {
	return n.name
}

// IsZero returns true if no template is set.
func (n Name) IsZero() bool {
	return n.name == ""
}

// System returns the system prompt for this template.
// Panics if called on zero value.
func (n Name) System(target lang.Language) string {
	return fmt.Sprintf(n.prompts().system, displayName(target))
}

// User wraps content in the user prompt for this template.
// Panics if called on zero value.
func (n Name) User(content string, target lang.Language) string {
	return fmt.Sprintf(n.prompts().user, content, displayName(target))
}

func (n Name) prompts() prompts {
	if n.IsZero() {
		panic("template.Name used as zero value")
	}
	return templates[n.name]
}

func displayName(target lang.Language) string {
	return target.OrDefault().DisplayName()
}

// ---------------------------------------------------------------------------
// Article window and synthesis prompts
// ---------------------------------------------------------------------------

// WindowPrompt returns the user prompt for one time window of a transcript.
// part is 1-based.
func WindowPrompt(content string, part, total int, target lang.Language) string {
	return fmt.Sprintf(windowPrompt, part, total, displayName(target), content)
}

// SynthesisPrompt returns the user prompt that merges the window outputs
// into a single article.
func SynthesisPrompt(content string, target lang.Language) string {
	return fmt.Sprintf(synthesisPrompt, displayName(target), content)
}

// Prompt templates. System prompts take the target language; user prompts
// take the content then the target language.

const translateSystem = `You are a professional technical documentation translator. You translate Markdown into %s.`

const translateUser = `Translate the following Markdown content into %[2]s. Keep the Markdown formatting and markup unchanged.

%[1]s

Requirements:
1. Keep all Markdown syntax unchanged
2. Keep all links and image references unchanged
3. Keep code block contents unchanged
4. The translation must be accurate, fluent and professional
5. Output only the translation, no commentary`

const polishSystem = `You are a careful technical editor. You write in %s.`

const polishUser = `Polish the following Markdown content: correct grammar, spelling and awkward phrasing while keeping the meaning, structure and Markdown markup unchanged. Write in %[2]s.

%[1]s

Rules:
- Do not add or remove sections
- Keep code blocks, links and image references unchanged
- Do not summarize, do not invent anything
- Output only the polished text`

const articleSystem = `You turn spoken transcripts into well-structured written articles in %s.`

const articleUser = `Rewrite the following transcript as a Markdown article in %[2]s.

%[1]s`

const windowPrompt = `This is part %d of %d of a long transcript. Rewrite it as a section of a Markdown article in %s.

Rules:
- Preserve ALL informational content
- Use ## headers when the speaker changes topic
- Remove filler words and verbal padding
- Correct obvious transcription errors
- Do not add an introduction or conclusion; other parts come before and after
- Do not invent content or alter meaning

Transcript:
%s`

const synthesisPrompt = `The following sections were written separately from consecutive parts of one transcript. Merge them into a single coherent Markdown article in %s.

Rules:
- H1 title inferred from the content
- A short introduction before the first section
- Smooth transitions between sections; remove repetitions across sections
- A conclusion summarizing the key points
- Preserve ALL informational content, do not invent anything
- No table of contents

Sections:
%s`
