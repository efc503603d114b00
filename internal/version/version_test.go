package version

import (
	"errors"
	"testing"
)

func TestCompare(t *testing.T) {
	cases := []struct {
		name string
		a    string
		b    string
		want Result
	}{
		{name: "equal_same_length", a: "1.0.0", b: "1.0.0", want: Equal},
		{name: "padding_symmetric", a: "1.2", b: "1.2.0", want: Equal},
		{name: "padding_symmetric_reverse", a: "1.2.0", b: "1.2", want: Equal},
		{name: "numeric_not_lexicographic", a: "1.2.0", b: "1.10.0", want: Less},
		{name: "numeric_not_lexicographic_reverse", a: "1.10.0", b: "1.2.0", want: Greater},
		{name: "major_wins", a: "2.0.0", b: "1.9.9", want: Greater},
		{name: "missing_trailing_is_zero", a: "1", b: "1.0.0.1", want: Less},
		{name: "whitespace_tolerated", a: " 1.0 ", b: "1.0.0", want: Equal},
		{name: "non_numeric_component_is_zero", a: "1.x", b: "1.0", want: Equal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Compare(tc.a, tc.b); got != tc.want {
				t.Fatalf("Compare(%q, %q)=%d, want %d", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestCheckUpgrade(t *testing.T) {
	cases := []struct {
		name             string
		existingProduct  string
		existingVersion  string
		candidateProduct string
		candidateVersion string
		wantErr          error
	}{
		{
			name:             "greater_version_allowed",
			existingProduct:  "contoso.tool",
			existingVersion:  "1.0.0",
			candidateProduct: "contoso.tool",
			candidateVersion: "2.0.0",
			wantErr:          nil,
		},
		{
			name:             "same_version_rejected",
			existingProduct:  "contoso.tool",
			existingVersion:  "1.0.0",
			candidateProduct: "contoso.tool",
			candidateVersion: "1.0.0",
			wantErr:          ErrVersionNotGreater,
		},
		{
			name:             "downgrade_rejected",
			existingProduct:  "contoso.tool",
			existingVersion:  "2.0.0",
			candidateProduct: "contoso.tool",
			candidateVersion: "1.9.9",
			wantErr:          ErrVersionNotGreater,
		},
		{
			name:             "padded_equal_rejected",
			existingProduct:  "contoso.tool",
			existingVersion:  "1.2",
			candidateProduct: "contoso.tool",
			candidateVersion: "1.2.0",
			wantErr:          ErrVersionNotGreater,
		},
		{
			name:             "product_mismatch_wins_over_greater_version",
			existingProduct:  "contoso.tool",
			existingVersion:  "1.0.0",
			candidateProduct: "fabrikam.tool",
			candidateVersion: "9.0.0",
			wantErr:          ErrProductMismatch,
		},
		{
			name:             "product_match_case_insensitive",
			existingProduct:  "Contoso.Tool",
			existingVersion:  "1.0.0",
			candidateProduct: "contoso.tool",
			candidateVersion: "1.0.1",
			wantErr:          nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckUpgrade(tc.existingProduct, tc.existingVersion, tc.candidateProduct, tc.candidateVersion)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("CheckUpgrade()=%v, want %v", err, tc.wantErr)
			}
		})
	}
}
