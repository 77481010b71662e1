package main

import (
	"strings"
	"testing"
)

// FuzzCompactMarkdown feeds random and mutated Markdown to compactMarkdown
// and verifies that compaction is stable and leaves no trailing whitespace.
func FuzzCompactMarkdown(f *testing.F) {
	seeds := []string{
		"",
		"\n\n\n",
		"# Title\n\n\n\ntext  \n",
		"text\n- a\n\n- b\n    - c\n\nafter",
		"1. one\n\n\n2. two\n10. ten",
		"| a | b |\n| --- | --- |\n| 1 | 2 |\nend",
		"---\ntitle: x\n\n\ntags:\n  - y\n---\n# T",
		"---  \n---\n >\n    - x>",
		"---\n--- \n>- \n> \n    ",
		"\n---\nx\n---\ny",
		"```go\nfunc main() {}  \n\n\n```\n\n\nafter",
		"````\n```\ninner\n```\n````",
		"```\nnever closed  \n\n",
		"~~~\nunclosed\n- a\n\n- b \t",
		"- ```\n  a\n\n  b\n  ```\n- c",
		"- t\n    ```\n    a\n\n    b\n    ```",
		"- [x]\n  ```\n  code\n  ```",
		"a\r\nb\r\r\n\r\n",
		"***\n- - -\n* * *\n-\n- ",
		"> quote\n>\n> more\n\n\n>",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, input string) {
		once := compactMarkdown(input)
		twice := compactMarkdown(once)
		if once != twice {
			t.Fatalf("compaction is not idempotent:\ninput: %q\nonce:  %q\ntwice: %q", input, once, twice)
		}

		if once != "" && (!strings.HasSuffix(once, "\n") || strings.HasSuffix(once, "\n\n")) {
			t.Errorf("output must end with exactly one newline:\ninput:  %q\noutput: %q", input, once)
		}

		// Without fences every line is outside a fence. Frontmatter keeps
		// its own blank lines.
		if strings.ContainsAny(input, "`~") {
			return
		}
		for i, line := range strings.Split(once, "\n") {
			if line != trimLine(line) {
				t.Errorf("line %d has trailing whitespace:\ninput:  %q\noutput: %q", i+1, input, once)
			}
		}
		if !strings.HasPrefix(once, "---") && strings.Contains(once, "\n\n\n") {
			t.Errorf("blank lines not collapsed:\ninput:  %q\noutput: %q", input, once)
		}
	})
}
