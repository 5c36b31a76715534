package persons

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contact-insights-go/internal/types"
)

// "Ал" + Latin "exa" + "ндр"
const mixedName = "\u0410\u043bexa\u043d\u0434\u0440"

func TestCorrectStrictRejectsLetterOutsideTable(t *testing.T) {
	t.Parallel()

	people := []types.Person{
		{ID: "1", Name: "\u0418\u0432\u0430\u043d", Surname: "S"},
		{ID: "2", Name: mixedName, Surname: "S"},
	}

	out, err := NewCorrector(nil, PolicyStrict).Correct(people)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, types.ErrUntranslatableCharacter)

	var untranslatable *types.UntranslatableCharacterError
	require.ErrorAs(t, err, &untranslatable)
	assert.Equal(t, 'x', untranslatable.Char)
	assert.Equal(t, mixedName, people[1].Name, "batch must be left untouched on error")
}

func TestCorrectKeepLeavesUnmappedLetters(t *testing.T) {
	t.Parallel()

	people := []types.Person{{ID: "2", Name: mixedName, Surname: "S"}}

	out, err := NewCorrector(nil, PolicyKeep).Correct(people)
	require.NoError(t, err)

	want := "\u0410\u043b\u0435x\u0430\u043d\u0434\u0440"
	require.Len(t, out, 1)
	assert.Equal(t, want, out[0].Name)
	assert.Equal(t, want, people[0].Name)
}

func TestCorrectReturnsOnlyMistypedRecords(t *testing.T) {
	t.Parallel()

	people := []types.Person{
		{ID: "1", Name: "\u0418\u0432\u0430\u043d", Surname: "A", Age: 30},
		{ID: "2", Name: "\u041fetr", Surname: "B", Age: 40},
		{ID: "3", Name: "\u041e\u043be\u0433", Surname: "C", Age: 50, Extra: map[string]any{"City": "X"}},
	}
	table := map[rune]rune{'e': '\u0435', 't': '\u0442', 'r': '\u0440'}

	out, err := NewCorrector(table, PolicyStrict).Correct(people)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "2", out[0].ID)
	assert.Equal(t, "\u041f\u0435\u0442\u0440", out[0].Name)
	assert.Equal(t, "3", out[1].ID)
	assert.Equal(t, "\u041e\u043b\u0435\u0433", out[1].Name)
	assert.Equal(t, map[string]any{"City": "X"}, out[1].Extra)

	assert.Equal(t, "\u0418\u0432\u0430\u043d", people[0].Name)
	assert.Equal(t, 50, people[2].Age)
}

func TestCorrectComposesOnlySubstitutedLetters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			// decomposed "й" stays decomposed, only "e" is replaced
			name: "untouched decomposed letter",
			in:   "\u0421\u0435\u0440\u0433e\u0438\u0306",
			want: "\u0421\u0435\u0440\u0433\u0435\u0438\u0306",
		},
		{
			// Latin "e" + diaeresis becomes Cyrillic "ё"
			name: "substitute with combining mark",
			in:   "\u0410\u0440\u0442e\u0308\u043c",
			want: "\u0410\u0440\u0442\u0451\u043c",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			people := []types.Person{{ID: "1", Name: tc.in}}

			out, err := NewCorrector(nil, PolicyStrict).Correct(people)
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.Equal(t, tc.want, out[0].Name)
		})
	}
}

func TestCorrectorDefaultsToSourceTable(t *testing.T) {
	t.Parallel()

	c := NewCorrector(nil, "")
	assert.Equal(t, PolicyStrict, c.Policy)
	assert.Equal(t, map[rune]rune{'a': '\u0430', 'e': '\u0435', 'o': '\u043e'}, c.Table)
}

func TestParseTable(t *testing.T) {
	t.Parallel()

	table, err := ParseTable(map[string]string{"x": "\u0445", "C": "\u0421"})
	require.NoError(t, err)
	assert.Equal(t, map[rune]rune{'x': '\u0445', 'C': '\u0421'}, table)

	_, err = ParseTable(map[string]string{"ab": "\u0430"})
	assert.ErrorContains(t, err, "single character")
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	p, err := ParsePolicy("KEEP")
	require.NoError(t, err)
	assert.Equal(t, PolicyKeep, p)

	_, err = ParsePolicy("guess")
	assert.ErrorContains(t, err, "unknown mistype policy")
}
