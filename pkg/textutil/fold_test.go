package textutil

import "testing"

func TestFold(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain ascii", "Boni", "boni"},
		{"french accents", "Céréales complètes", "cereales completes"},
		{"dutch diaeresis", "Reële yoghurt", "reele yoghurt"},
		{"already folded", "spa reine", "spa reine"},
		{"empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Fold(tc.in); got != tc.want {
				t.Errorf("Fold(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
