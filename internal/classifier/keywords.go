package classifier

import (
	"fmt"
	"regexp"
)

// Keyword is one complexity-vocabulary detection pattern.
type Keyword struct {
	Name     string
	Regex    *regexp.Regexp
	Category string // "code_execution", "file_ops", "browser_research", "multi_step"
}

// DefaultKeywords returns the built-in complexity vocabulary. A match on the
// latest user turn routes the request to the agent path without a
// verification call.
func DefaultKeywords() []Keyword {
	return []Keyword{
		{
			Name:     "run_code",
			Regex:    regexp.MustCompile(`(?i)\b(run|execute|compile|debug)\b.{0,40}\b(code|script|program|test)s?\b`),
			Category: "code_execution",
		},
		{
			Name:     "write_program",
			Regex:    regexp.MustCompile(`(?i)\b(write|build|create)\b.{0,40}\b(script|program|app|application|notebook)\b`),
			Category: "code_execution",
		},
		{
			Name:     "repo_ops",
			Regex:    regexp.MustCompile(`(?i)\b(clone|checkout|fork)\b.{0,40}\b(repo|repository|branch|codebase)\b|\bgit\s+(clone|checkout|pull)\b`),
			Category: "code_execution",
		},
		{
			Name:     "file_ops",
			Regex:    regexp.MustCompile(`(?i)\b(create|edit|modify|delete|save|convert|unzip|extract)\b.{0,40}\b(file|folder|directory|document|spreadsheet|pdf|csv|zip)s?\b`),
			Category: "file_ops",
		},
		{
			Name:     "download_upload",
			Regex:    regexp.MustCompile(`(?i)\b(download|upload|fetch)\b.{0,40}\b(file|data|dataset|image|video|page)s?\b`),
			Category: "file_ops",
		},
		{
			Name:     "browse",
			Regex:    regexp.MustCompile(`(?i)\b(browse|open|visit|scrape|crawl)\b.{0,40}\b(web|site|website|page|url|link)s?\b`),
			Category: "browser_research",
		},
		{
			Name:     "research",
			Regex:    regexp.MustCompile(`(?i)\b(research|investigate|deep\s+dive)\b|\bsearch\s+(the\s+)?(web|internet|online)\b`),
			Category: "browser_research",
		},
		{
			Name:     "generate_media",
			Regex:    regexp.MustCompile(`(?i)\b(generate|create|draw|render|make)\b.{0,40}\b(image|picture|chart|graph|plot|diagram|video|audio|song)s?\b`),
			Category: "multi_step",
		},
		{
			Name:     "analyze_data",
			Regex:    regexp.MustCompile(`(?i)\b(analyze|analyse|visualize|visualise|plot)\b.{0,40}\b(data|dataset|csv|spreadsheet|statistics)\b`),
			Category: "multi_step",
		},
		{
			Name:     "multi_step",
			Regex:    regexp.MustCompile(`(?i)\bstep\s+by\s+step\b.{0,40}\b(execute|perform|carry\s+out)\b|\b(then|after\s+that)\b.{0,40}\b(run|execute|download|save)\b`),
			Category: "multi_step",
		},
	}
}

// KeywordScanner scans text for complexity keywords.
type KeywordScanner struct {
	keywords []Keyword
}

// NewKeywordScanner builds a scanner from the default vocabulary plus any
// extra plain-text terms from config. Extra terms are matched on word
// boundaries, case-insensitively.
func NewKeywordScanner(extra []string) *KeywordScanner {
	kws := DefaultKeywords()
	for i, term := range extra {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
		if err != nil {
			continue
		}
		kws = append(kws, Keyword{
			Name:     fmt.Sprintf("extra_%d", i),
			Regex:    re,
			Category: "configured",
		})
	}
	return &KeywordScanner{keywords: kws}
}

// Scan returns the first matching keyword, or nil if none matched.
func (s *KeywordScanner) Scan(text string) *Keyword {
	for i := range s.keywords {
		if s.keywords[i].Regex.MatchString(text) {
			return &s.keywords[i]
		}
	}
	return nil
}
