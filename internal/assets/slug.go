package assets

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases name and collapses every run of characters outside
// a-z and 0-9 into a single hyphen.
func Slugify(name string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(name), "-")
}

// SubCategorySlug scopes a sub-category slug under its category.
func SubCategorySlug(categorySlug, name string) string {
	return categorySlug + "-" + Slugify(name)
}
