package annotate

import (
	"math/rand"
	"strconv"
	"strings"
)

// DefaultPrompt is used when no template is configured for an ordinal.
const DefaultPrompt = "Podsumuj"

// MaxPrompts is the number of ordinals an operator can pick from.
const MaxPrompts = 9

// PromptBook maps 1-based ordinals to system prompt templates.
type PromptBook struct {
	prompts []string
}

// NewPromptBook returns a book over prompts; prompts[0] is ordinal 1.
func NewPromptBook(prompts []string) *PromptBook {
	p := make([]string, len(prompts))
	copy(p, prompts)
	return &PromptBook{prompts: p}
}

// PromptBookFromMap builds a book from keys P1..P9. Numbering stops at the
// first missing key.
func PromptBookFromMap(m map[string]string) *PromptBook {
	var prompts []string
	for i := 1; i <= MaxPrompts; i++ {
		p, ok := m["P"+strconv.Itoa(i)]
		if !ok {
			break
		}
		prompts = append(prompts, p)
	}
	return &PromptBook{prompts: prompts}
}

// Lookup returns the template for ordinal, or DefaultPrompt when out of range.
func (b *PromptBook) Lookup(ordinal int) string {
	if b == nil || ordinal < 1 || ordinal > len(b.prompts) {
		return DefaultPrompt
	}
	return b.prompts[ordinal-1]
}

// Len returns the number of configured templates.
func (b *PromptBook) Len() int {
	if b == nil {
		return 0
	}
	return len(b.prompts)
}

// Entries returns the configured templates in ordinal order.
func (b *PromptBook) Entries() []Entry {
	entries := make([]Entry, 0, b.Len())
	for i := 0; i < b.Len(); i++ {
		entries = append(entries, Entry{Ordinal: i + 1, Prompt: b.prompts[i]})
	}
	return entries
}

// Entry is one configured template.
type Entry struct {
	Ordinal int    `json:"ordinal"`
	Prompt  string `json:"prompt"`
}

// String renders the entry as "P<n>: prompt" with the template on one line.
func (e Entry) String() string {
	return "P" + strconv.Itoa(e.Ordinal) + ": " + strings.ReplaceAll(e.Prompt, "\n", " ")
}

// Palette holds the highlight colours handed out to annotated selections.
var Palette = []string{
	"#99341e", "#1e9934", "#1e3499", "#991e99", "#99691e", "#1e9969",
	"#691e99", "#1e6999", "#991e1e", "#1e9949", "#693499", "#34991e",
	"#89341e", "#1e9634", "#341e99", "#991e69", "#69991e", "#99591e",
	"#1e6949", "#691e49", "#791e1e", "#1e6934", "#1e3499", "#991e89",
	"#996934", "#1e9969", "#69341e", "#346999", "#341e69", "#699934",
	"#691e79", "#1e5934",
}

// RandomTag picks a colour from Palette.
func RandomTag() string {
	return Palette[rand.Intn(len(Palette))]
}
