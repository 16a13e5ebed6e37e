package analyzer

import (
	"regexp"
	"strings"
)

// Structural entity matchers. These run on every query; keyword matching
// below handles the vocabulary-based categories.
//
//nolint:gochecknoglobals // Compiled once at init
var (
	urlPattern       = regexp.MustCompile(`https?://[^\s<>"]+`)
	emailPattern     = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	datePattern      = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4}|(?i:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(,?\s+\d{4})?)\b`)
	numberPattern    = regexp.MustCompile(`\b\d+(\.\d+)?\b`)
	codeBlockPattern = regexp.MustCompile("(?s)```.*?```|`[^`\n]+`")
	filePathPattern  = regexp.MustCompile(`(?:\.{0,2}/)?(?:[\w.-]+/)+[\w.-]+\.\w{1,5}\b`)
	apiPathPattern   = regexp.MustCompile(`(?:GET|POST|PUT|PATCH|DELETE)?\s*/(?:api|v\d+)(?:/[\w{}.-]+)+`)
)

// Keyword vocabularies for the non-structural entity categories.
//
//nolint:gochecknoglobals // Static vocabularies
var (
	technicalTerms = []string{
		"api", "database", "server", "client", "endpoint", "query", "cache",
		"deploy", "docker", "kubernetes", "microservice", "authentication",
		"authorization", "encryption", "algorithm", "framework", "library",
		"repository", "backend", "frontend", "middleware", "webhook",
	}
	languages = []string{
		"go", "golang", "python", "javascript", "typescript", "rust", "java",
		"ruby", "php", "swift", "kotlin", "sql", "bash", "html", "css",
	}
	frameworks = []string{
		"react", "vue", "angular", "django", "flask", "rails", "spring",
		"express", "gin", "echo", "fastapi", "nextjs", "svelte", "laravel",
	}
)

// extractEntities runs all matchers over the query and groups results by
// category. Categories with no matches are absent from the map.
func extractEntities(text string) map[string][]string {
	entities := make(map[string][]string)

	add := func(category string, matches []string) {
		if len(matches) == 0 {
			return
		}
		seen := make(map[string]bool, len(matches))
		for _, m := range matches {
			m = strings.TrimSpace(m)
			if m == "" || seen[m] {
				continue
			}
			seen[m] = true
			entities[category] = append(entities[category], m)
		}
	}

	urls := urlPattern.FindAllString(text, -1)
	for i, u := range urls {
		urls[i] = strings.TrimRight(u, ".,;:!?)")
	}
	add("url", urls)
	add("email", emailPattern.FindAllString(text, -1))
	add("date", datePattern.FindAllString(text, -1))
	add("number", numberPattern.FindAllString(text, -1))
	add("code_block", codeBlockPattern.FindAllString(text, -1))
	add("file_path", filePathPattern.FindAllString(text, -1))
	add("api_path", apiPathPattern.FindAllString(text, -1))

	lower := strings.ToLower(text)
	add("technical_term", matchKeywords(lower, technicalTerms))
	add("language", matchKeywords(lower, languages))
	add("framework", matchKeywords(lower, frameworks))

	return entities
}

// matchKeywords returns vocabulary entries present as whole words in the
// lowercased text.
func matchKeywords(lower string, vocab []string) []string {
	words := tokenize(lower)
	var out []string
	for _, term := range vocab {
		if words[term] {
			out = append(out, term)
		}
	}
	return out
}

// tokenize splits lowercased text into a word set on non-alphanumeric
// boundaries.
func tokenize(lower string) map[string]bool {
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

func countEntities(entities map[string][]string) int {
	n := 0
	for _, list := range entities {
		n += len(list)
	}
	return n
}
