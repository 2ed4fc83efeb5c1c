package vault

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheOrdering(t *testing.T) {
	c := NewCache()
	c.Replace([]SecretRecord{
		{ID: "3", Title: "charlie"},
		{ID: "1", Title: "alpha"},
		{ID: "2", Title: "Bravo"}, // case-sensitive: uppercase sorts first
	})

	titles := make([]string, 0, 3)
	for _, r := range c.All() {
		titles = append(titles, r.Title)
	}
	assert.Equal(t, []string{"Bravo", "alpha", "charlie"}, titles)
}

func TestCacheInsertKeepsOrder(t *testing.T) {
	c := NewCache()
	c.Replace([]SecretRecord{{ID: "1", Title: "alpha"}, {ID: "2", Title: "gamma"}})
	c.Insert(SecretRecord{ID: "3", Title: "beta"})

	all := c.All()
	assert.Equal(t, "beta", all[1].Title)
	assert.Equal(t, 3, c.Len())
}

func TestCacheReplaceIsWholesale(t *testing.T) {
	c := NewCache()
	old := make([]SecretRecord, 0, 5)
	for i := 0; i < 5; i++ {
		old = append(old, SecretRecord{ID: fmt.Sprintf("old-%d", i), Title: fmt.Sprintf("t%d", i)})
	}
	c.Replace(old)
	c.Replace([]SecretRecord{{ID: "new", Title: "only"}})

	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("old-0")
	assert.False(t, ok)
}

func TestCacheGetReturnsCopy(t *testing.T) {
	c := NewCache()
	pw := "secret"
	c.Replace([]SecretRecord{{ID: "1", Title: "a", SecretPassword: &pw}})

	rec, ok := c.Get("1")
	assert.True(t, ok)
	rec.Title = "mutated"

	again, _ := c.Get("1")
	assert.Equal(t, "a", again.Title)
}

func TestCacheRemoveAndClear(t *testing.T) {
	c := NewCache()
	c.Replace([]SecretRecord{{ID: "1", Title: "a"}, {ID: "2", Title: "b"}})
	c.Remove("1")
	assert.Equal(t, 1, c.Len())
	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.All())
}
