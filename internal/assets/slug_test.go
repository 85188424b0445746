package assets

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"IT Hardware":      "it-hardware",
		"Laptops & Tabs":   "laptops-tabs",
		"  Dell  24\" ":    "-dell-24-",
		"Café":             "caf-",
		"already-slugged":  "already-slugged",
		"Mixed_Case--Name": "mixed-case-name",
	}
	for in, want := range cases {
		require.Equal(t, want, Slugify(in), in)
	}
}

func TestSubCategorySlug(t *testing.T) {
	require.Equal(t, "it-hardware-laptops-tablets", SubCategorySlug("it-hardware", "Laptops / Tablets"))
	require.Equal(t, "phones-general", SubCategorySlug(Slugify("Phones"), DefaultSubCategory))
}
