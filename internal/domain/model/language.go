package model

import "sort"

// Language is a supported submission language and its judge language id.
type Language struct {
	Slug    string `json:"slug"`
	Name    string `json:"name"`
	JudgeID int    `json:"judge_id"`
}

var supportedLanguages = map[string]Language{
	"javascript": {Slug: "javascript", Name: "JavaScript (Node.js 12.14.0)", JudgeID: 63},
	"typescript": {Slug: "typescript", Name: "TypeScript (3.7.4)", JudgeID: 74},
	"python":     {Slug: "python", Name: "Python (3.8.1)", JudgeID: 71},
	"java":       {Slug: "java", Name: "Java (OpenJDK 13.0.1)", JudgeID: 62},
	"cpp":        {Slug: "cpp", Name: "C++ (GCC 9.2.0)", JudgeID: 54},
	"c":          {Slug: "c", Name: "C (GCC 9.2.0)", JudgeID: 50},
	"go":         {Slug: "go", Name: "Go (1.13.5)", JudgeID: 60},
	"rust":       {Slug: "rust", Name: "Rust (1.40.0)", JudgeID: 73},
}

func LookupLanguage(slug string) (Language, bool) {
	lang, ok := supportedLanguages[slug]
	return lang, ok
}

func SupportedLanguages() []Language {
	langs := make([]Language, 0, len(supportedLanguages))
	for _, l := range supportedLanguages {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i].Slug < langs[j].Slug })
	return langs
}
