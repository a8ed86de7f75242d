package cache

import "testing"

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "method defaults to GET",
			key:  Key{URL: "http://example.org/dictionary/words/cat-1.html"},
			want: "fetch:GET:http://example.org/dictionary/words/cat-1.html",
		},
		{
			name: "method is upper-cased",
			key:  Key{Method: "head", URL: "http://example.org/a"},
			want: "fetch:HEAD:http://example.org/a",
		},
		{
			name: "query params sorted",
			key:  Key{URL: "http://example.org/search/?query=a&page=2"},
			want: "fetch:GET:http://example.org/search/?page=2&query=a",
		},
		{
			name: "valueless parameter kept as is",
			key:  Key{URL: "http://example.org/search/?q=a&flag"},
			want: "fetch:GET:http://example.org/search/?flag&q=a",
		},
		{
			name: "raw encoding preserved",
			key:  Key{URL: "http://example.org/search/?q=cat%20dog&lang=en"},
			want: "fetch:GET:http://example.org/search/?lang=en&q=cat%20dog",
		},
		{
			name: "repeated parameter ordered by value",
			key:  Key{URL: "http://example.org/?tag=b&tag=a"},
			want: "fetch:GET:http://example.org/?tag=a&tag=b",
		},
		{
			name: "scheme and host lower-cased, fragment dropped",
			key:  Key{URL: "HTTP://Example.ORG/Words#top"},
			want: "fetch:GET:http://example.org/Words",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKey_String_Deterministic(t *testing.T) {
	a := Key{URL: "http://example.org/search/?b=2&a=1&c=3"}
	b := Key{URL: "http://example.org/search/?c=3&a=1&b=2"}

	if a.String() != b.String() {
		t.Errorf("equivalent URLs produced different keys: %q vs %q", a.String(), b.String())
	}
}

func TestKey_String_DistinctQueries(t *testing.T) {
	pairs := [][2]string{
		{"http://example.org/search/?flag", "http://example.org/search/?flag="},
		{"http://example.org/search/?q=a+b", "http://example.org/search/?q=a%2Bb"},
	}

	for _, p := range pairs {
		a, b := Key{URL: p[0]}, Key{URL: p[1]}
		if a.String() == b.String() {
			t.Errorf("%q and %q share the key %q", p[0], p[1], a.String())
		}
	}
}
