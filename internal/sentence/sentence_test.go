package sentence

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReindex(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"two sentences", "Hello world. How are you?", []string{"Hello world. ", "How are you?"}},
		{"whitespace run folds into span", "One!  \n Two? Three.", []string{"One!  \n ", "Two? ", "Three."}},
		{"trailing whitespace", "Done. ", []string{"Done. "}},
		{"no terminator", "still talking", []string{"still talking"}},
		{"punctuation without space", "v1.2 is out. Yes", []string{"v1.2 is out. ", "Yes"}},
		{"repeated punctuation", "Really?! Yes.", []string{"Really?! ", "Yes."}},
		{"multibyte", "Zażółć gęślą. Jaźń!", []string{"Zażółć gęślą. ", "Jaźń!"}},
		{"annotation markers", "Hi.\n*answer*\nNext.", []string{"Hi.\n", "*answer*\nNext."}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spans := Reindex(tt.text)
			require.Len(t, spans, len(tt.want), "spans %v", spans)

			var b strings.Builder
			prevEnd := 0
			for i, s := range spans {
				assert.Equal(t, prevEnd, s.Start, "span %d is contiguous", i)
				prevEnd = s.End
				assert.Equal(t, tt.want[i], tt.text[s.Start:s.End])
				b.WriteString(tt.text[s.Start:s.End])
			}
			assert.Equal(t, tt.text, b.String(), "spans tile the text")
		})
	}
}

func newIndex(text string) *Index {
	x := NewIndex()
	x.Reindex(text)
	return x
}

// "A. " [0,3)  "B. " [3,6)  "C." [6,8)
const abc = "A. B. C."

func apply(t *testing.T, x *Index, cmd Command) Span {
	t.Helper()
	sel, err := x.Apply(cmd)
	require.NoError(t, err)
	return sel
}

func TestExtendLeft(t *testing.T) {
	x := newIndex(abc)

	steps := []Span{{6, 8}, {3, 8}, {0, 8}, {0, 8}}
	for i, want := range steps {
		assert.Equal(t, want, apply(t, x, ExtendLeft), "step %d", i)
	}
}

func TestShrinkRight(t *testing.T) {
	x := newIndex(abc)
	for i := 0; i < 3; i++ {
		apply(t, x, ExtendLeft)
	}

	steps := []Span{{0, 6}, {0, 3}, {0, 0}, {0, 0}}
	for i, want := range steps {
		assert.Equal(t, want, apply(t, x, ShrinkRight), "step %d", i)
	}
}

func TestSelectPreviousAndNext(t *testing.T) {
	x := newIndex(abc)

	// nothing selected: next does nothing, previous picks the last sentence
	assert.True(t, apply(t, x, SelectNext).Empty())

	tests := []struct {
		cmd  Command
		want Span
	}{
		{SelectPrevious, Span{6, 8}},
		{SelectPrevious, Span{3, 6}},
		{SelectPrevious, Span{0, 3}},
		{SelectPrevious, Span{0, 3}},
		{SelectNext, Span{3, 6}},
		{SelectNext, Span{6, 8}},
		{SelectNext, Span{0, 0}},
	}
	for i, tt := range tests {
		assert.Equal(t, tt.want, apply(t, x, tt.cmd), "step %d (%s)", i, tt.cmd)
	}
}

func TestClearAndReindexResetSelection(t *testing.T) {
	x := newIndex(abc)
	apply(t, x, SelectPrevious)
	assert.True(t, apply(t, x, Clear).Empty())

	apply(t, x, SelectPrevious)
	x.Reindex(abc + " D.")
	assert.True(t, x.Selection().Empty(), "reindex resets the selection")
	assert.Len(t, x.Spans(), 4)
}

func TestApplyOnEmptyTranscript(t *testing.T) {
	x := newIndex("")
	for _, cmd := range []Command{ExtendLeft, ShrinkRight, SelectPrevious, SelectNext, Clear} {
		assert.True(t, apply(t, x, cmd).Empty(), "%s", cmd)
	}
}

func TestUnknownCommand(t *testing.T) {
	x := newIndex(abc)
	apply(t, x, SelectPrevious)
	sel, err := x.Apply("jump")
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.Equal(t, Span{6, 8}, sel, "selection unchanged")
}
