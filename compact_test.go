package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompactMarkdown(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"only blanks", "\n\n\n", ""},
		{"collapses blank runs", "a\n\n\n\n\n\nb", "a\n\nb\n"},
		{"strips trailing whitespace", "a  \nb\t\n", "a\nb\n"},
		{"blank before and after list", "text\n- a\n- b\ntext", "text\n\n- a\n- b\n\ntext\n"},
		{"tight list", "- a\n\n\n- b\n\n- c", "- a\n- b\n- c\n"},
		{"list continuation lines", "- a\n\n    - b\n\nafter", "- a\n    - b\n\nafter\n"},
		{"blank around table", "intro\n| a |\n| --- |\nend", "intro\n\n| a |\n| --- |\n\nend\n"},
		{"fence contents untouched", "```\na\n\n\n\nb  \n```", "```\na\n\n\n\nb  \n```\n"},
		{"blank around fence", "x\n```\ncode\n```\ny", "x\n\n```\ncode\n```\n\ny\n"},
		{"rule is not a list", "a\n\n***\n\nb", "a\n\n***\n\nb\n"},
		{"frontmatter kept", "---\ntitle: x\n\n\nnote: y\n---\n# T", "---\ntitle: x\n\n\nnote: y\n---\n\n# T\n"},
		{"frontmatter trailing whitespace", "---  \ntitle: x \n--- \nbody", "---\ntitle: x\n---\n\nbody\n"},
		{"frontmatter after leading blanks", "\n \n---\na: b\n---\nx", "---\na: b\n---\n\nx\n"},
		{"empty frontmatter", "---  \n---\n >\n    - x>", "---\n---\n\n >\n    - x>\n"},
		{"frontmatter then quote", "---\n--- \n>- \n> \n    ", "---\n---\n\n>-\n>\n"},
		{"fence on item marker", "- ```\n  a\n\n  b\n  ```\n\n- c", "- ```\n  a\n\n  b\n  ```\n- c\n"},
		{"fence on ordered marker", "1. ~~~\n   x\n\n\n   ~~~", "1. ~~~\n   x\n\n\n   ~~~\n"},
		{"closing fence trimmed", "```\na  \n```  ", "```\na  \n```\n"},
		{"unclosed fence trimmed", "```\na  \n\n\n", "```\na\n"},
		{"carriage returns", "a\r\r\nb\r\n", "a\nb\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compactMarkdown(tt.in))
		})
	}
}

func TestCompactMarkdown_Idempotent(t *testing.T) {
	inputs := []string{
		"# T\n\n\n\ntext\n- a\n\n- b\n    - c\n\n\n| x | y |\n| --- | --- |\nend",
		"---\ntitle: t\n---\n\n\n# T\n\n```go\n\n\nx\n```\n\n\n- [x] done\n- [ ] open",
		"a\\\nb\n\n\n> quote\n>\n> more\n***\n1. one\n2. two\n\n\n\nz   ",
		"- a\n\n    ```\n    code\n\n    ```\n- b",
		"---  \n---\n >\n    - x>",
		"---\n--- \n>- \n> \n    ",
		"\n---\nx\n---\ny",
		"- ```\n  a\n\n  b\n  ```\n- c",
		"```\nnever closed  \n\n- a\n\n- b \t",
	}
	for _, in := range inputs {
		once := compactMarkdown(in)
		assert.Equal(t, once, compactMarkdown(once), "input %q", in)
	}
}
