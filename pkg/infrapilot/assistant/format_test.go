package assistant

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "line breaks become newlines",
			in:   "first<br>second<br/>third<br />fourth",
			want: "first\nsecond\nthird\nfourth",
		},
		{
			name: "paragraphs become newlines",
			in:   `<p>one</p><p class="x">two</p>`,
			want: "one\ntwo\n",
		},
		{
			name: "allowed tags survive",
			in:   "<b>bold</b> <i>italic</i> <code>x=1</code> <pre>block</pre>",
			want: "<b>bold</b> <i>italic</i> <code>x=1</code> <pre>block</pre>",
		},
		{
			name: "attributes stripped from allowed tags",
			in:   `<b style="color:red">bold</b>`,
			want: "<b>bold</b>",
		},
		{
			name: "links keep href only",
			in:   `<a href="https://example.com" target="_blank">link</a>`,
			want: `<a href="https://example.com">link</a>`,
		},
		{
			name: "disallowed tags dropped",
			in:   `<div><span>text</span></div><script>alert(1)</script>`,
			want: "textalert(1)",
		},
		{
			name: "dropped tag between literal angle brackets",
			in:   "<<span>>",
			want: "",
		},
		{
			name: "plain text untouched",
			in:   "disk usage at 42%",
			want: "disk usage at 42%",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		"<p>hello</p><br><div>x</div>",
		"<b>bold</b> and <a href=\"u\">link</a>",
		"plain text\nwith newlines",
		`<B STYLE="x">shouty</B>`,
		"<<span>>",
		"<<b>>",
		"< <x> >",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		twice := Sanitize(once)
		if once != twice {
			t.Errorf("Sanitize not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}

func TestChunkContract(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  int
	}{
		{"empty", "", 10, 0},
		{"under limit", "short", 10, 1},
		{"exact limit", "0123456789", 10, 1},
		{"one over", "0123456789a", 10, 2},
		{"multiple", strings.Repeat("x", 35), 10, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Chunk(tt.text, tt.limit)
			if len(chunks) != tt.want {
				t.Fatalf("got %d chunks, want %d", len(chunks), tt.want)
			}
			for i, c := range chunks {
				if n := len([]rune(c)); n > tt.limit {
					t.Errorf("chunk[%d] has %d chars, limit %d", i, n, tt.limit)
				}
			}
			if strings.Join(chunks, "") != tt.text {
				t.Error("concatenated chunks do not equal original text")
			}
		})
	}
}

func TestChunkNeverSplitsMultibyte(t *testing.T) {
	text := strings.Repeat("héllo wörld ", 100)
	chunks := Chunk(text, 7)

	if strings.Join(chunks, "") != text {
		t.Fatal("concatenated chunks do not equal original text")
	}
	for i, c := range chunks {
		if strings.ContainsRune(c, '�') {
			t.Errorf("chunk[%d] contains a replacement character, split mid-rune", i)
		}
		if len([]rune(c)) > 7 {
			t.Errorf("chunk[%d] exceeds the limit", i)
		}
	}
}
