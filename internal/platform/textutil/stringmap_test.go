package textutil

import (
	"reflect"
	"testing"
)

func TestNormalizeAttributes(t *testing.T) {
	got := NormalizeAttributes(map[string]string{
		" Genre ":        " Jazz ",
		"Merch Category": "Apparel",
		"merch-category": "",
		"":               "ignored",
		"  ":             "ignored",
		"COLOR":          "Black",
	})
	want := map[string]string{
		"genre":          "Jazz",
		"merch_category": "Apparel",
		"color":          "Black",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected attributes: %#v", got)
	}

	if NormalizeAttributes(nil) != nil {
		t.Fatalf("expected nil for nil input")
	}
	if NormalizeAttributes(map[string]string{"  ": "x"}) != nil {
		t.Fatalf("expected nil when every key is empty")
	}
}
