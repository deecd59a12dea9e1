package sanitize

import "testing"

func TestText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Vinohradská 12, Praha", "Vinohradská 12, Praha"},
		{"<b>Brno</b>", "Brno"},
		{"Brno<script>alert(1)</script>", "Brnoalert(1)"},
		{"&lt;img src=x onerror=alert(1)&gt;Ostrava", "Ostrava"},
		{"  Náměstí \n\t Míru  ", "Náměstí Míru"},
		{"Smith &amp; Sons", "Smith & Sons"},
	}

	for _, tt := range tests {
		if got := Text(tt.in); got != tt.want {
			t.Fatalf("Text(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
