package gemini

import "testing"

func TestPreview(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		limit  int
		expect string
	}{
		{
			name:   "non-positive limit hides the text",
			input:  `{"favorite_books":["Dune"]}`,
			limit:  0,
			expect: "",
		},
		{
			name:   "indented payload becomes one line",
			input:  "{\n  \"text\": \"reads on the train\"\n}",
			limit:  100,
			expect: `{ "text": "reads on the train" }`,
		},
		{
			name:   "long response is cut",
			input:  `{"score": 0.82, "reasoning": "both enjoy slow epics"}`,
			limit:  14,
			expect: `{"score": 0.82...`,
		},
		{
			name:   "cuts on runes not bytes",
			input:  "Мастер и Маргарита",
			limit:  6,
			expect: "Мастер...",
		},
		{
			name:   "surrounding whitespace is dropped first",
			input:  "\n  Beloved  \n",
			limit:  7,
			expect: "Beloved",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := preview(tt.input, tt.limit); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}
