package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func buildTestTree() Tree {
	tree := make(Tree)
	insertPath(tree, "Home & Garden > Lighting > Floor Lamps")
	insertPath(tree, "Home & Garden > Lighting > Table Lamps")
	insertPath(tree, "Apparel > Hats")
	return tree
}

func TestFindBestCategory_EmptyRawReturnsUncategorized(t *testing.T) {
	m := NewMatcher(buildTestTree(), DefaultCutoff)
	path, score := m.FindBestCategory("")
	assert.Equal(t, "Uncategorized", path)
	assert.Equal(t, 0.0, score)
}

func TestFindBestCategory_ClosePathWins(t *testing.T) {
	m := NewMatcher(buildTestTree(), DefaultCutoff)
	path, score := m.FindBestCategory("home lighting > floor lamps")
	assert.Equal(t, "Home & Garden > Lighting > Floor Lamps", path)
	assert.GreaterOrEqual(t, score, DefaultCutoff)
}

func TestFindBestCategory_BelowCutoffReturnsUncategorized(t *testing.T) {
	m := NewMatcher(buildTestTree(), DefaultCutoff)
	path, score := m.FindBestCategory("zzz qqq xxx vvv")
	assert.Equal(t, "Uncategorized", path)
	assert.Equal(t, 0.0, score)
}

func TestFindBestCategory_Deterministic(t *testing.T) {
	m := NewMatcher(buildTestTree(), DefaultCutoff)
	path1, score1 := m.FindBestCategory("Apparel Hats")
	path2, score2 := m.FindBestCategory("Apparel Hats")
	assert.Equal(t, path1, path2)
	assert.Equal(t, score1, score2)
}

func TestIsValidCandidate(t *testing.T) {
	assert.True(t, IsValidCandidate("Home & Garden > Lighting > Floor Lamps"))
	assert.False(t, IsValidCandidate("I'm happy to help! Here's the category..."))
	assert.False(t, IsValidCandidate("ab"))
	assert.False(t, IsValidCandidate("one two three four five six seven eight nine ten eleven"))
}
