// Package format turns an article into post text. Everything here is
// pure: the same article always yields the same bytes.
package format

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/deusflow/newsbot/internal/news"
)

// DefaultSuffix follows the link on every post.
const DefaultSuffix = "cashapp:$KBKNY"

// MaxWeight is the platform's post length limit.
const MaxWeight = 280

// urlWeight is how much any URL counts against MaxWeight.
const urlWeight = 23

const ellipsis = "…"

var (
	ErrUnusable = errors.New("format: article needs a title and a link")
	ErrTooLong  = errors.New("format: post does not fit even with the title cut")
)

// categoryHashtags maps a lowercased provider category to its hashtag.
// general and africa are never produced by the NewsData rotation.
var categoryHashtags = map[string]string{
	"general":       "GeneralNews",
	"business":      "BusinessNews",
	"entertainment": "EntertainmentNews",
	"health":        "HealthNews",
	"science":       "ScienceNews",
	"sports":        "SportsNews",
	"technology":    "TechNews",
	"africa":        "AfricaNews",
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	nonWordRe    = regexp.MustCompile(`[^\w]`)
	urlRe        = regexp.MustCompile(`https?://\S+`)
)

// Hashtag strips whitespace and then every non-word character.
func Hashtag(s string) string {
	return nonWordRe.ReplaceAllString(whitespaceRe.ReplaceAllString(s, ""), "")
}

// CategoryHashtag looks the category up case-insensitively; unknown or
// empty categories get the generic News tag.
func CategoryHashtag(category string) string {
	if tag, ok := categoryHashtags[strings.ToLower(category)]; ok {
		return tag
	}
	return "News"
}

// SourceHashtag derives a tag from the source id, UnknownSource when empty.
func SourceHashtag(sourceID string) string {
	if sourceID == "" {
		sourceID = "UnknownSource"
	}
	return Hashtag(sourceID)
}

type Formatter struct {
	Suffix string
}

func New(suffix string) Formatter {
	return Formatter{Suffix: suffix}
}

// Format renders the post template:
//
//	#<first two title words> <rest of title>
//	#<category tag> #<source tag>
//
//	READ HERE: <link> <suffix>
func (f Formatter) Format(a news.Article) (string, error) {
	if !a.Usable() {
		return "", ErrUnusable
	}
	words := strings.Split(a.Title, " ")
	head, tail := splitTitle(words)
	return f.render(a, head, strings.Join(tail, " ")), nil
}

// Format renders a with DefaultSuffix.
func Format(a news.Article) (string, error) {
	return New(DefaultSuffix).Format(a)
}

// Fit renders a and, when the result weighs more than max, drops title
// words from the end (marking the cut with an ellipsis) until it fits.
func (f Formatter) Fit(a news.Article, max int) (string, error) {
	text, err := f.Format(a)
	if err != nil {
		return "", err
	}
	if Weight(text) <= max {
		return text, nil
	}

	head, tail := splitTitle(strings.Split(a.Title, " "))
	for k := len(tail) - 1; k >= 0; k-- {
		rest := strings.Join(tail[:k], " ")
		if rest == "" {
			rest = ellipsis
		} else {
			rest += ellipsis
		}
		text = f.render(a, head, rest)
		if Weight(text) <= max {
			return text, nil
		}
	}
	return "", ErrTooLong
}

func (f Formatter) render(a news.Article, head []string, rest string) string {
	var b strings.Builder
	b.WriteString("#")
	b.WriteString(Hashtag(strings.Join(head, " ")))
	b.WriteString(" ")
	b.WriteString(rest)
	b.WriteString("\n#")
	b.WriteString(CategoryHashtag(a.Category))
	b.WriteString(" #")
	b.WriteString(SourceHashtag(a.SourceID))
	b.WriteString("\n\nREAD HERE: ")
	b.WriteString(a.Link)
	b.WriteString(" ")
	b.WriteString(f.Suffix)
	return b.String()
}

func splitTitle(words []string) (head, tail []string) {
	if len(words) <= 2 {
		return words, nil
	}
	return words[:2], words[2:]
}

// Weight approximates how the platform counts text: each URL is 23,
// wide (CJK) runes are 2, everything else is 1.
func Weight(text string) int {
	w := 0
	last := 0
	for _, loc := range urlRe.FindAllStringIndex(text, -1) {
		w += runesWeight(text[last:loc[0]]) + urlWeight
		last = loc[1]
	}
	return w + runesWeight(text[last:])
}

func runesWeight(s string) int {
	w := 0
	for _, r := range s {
		if isWide(r) {
			w += 2
		} else {
			w++
		}
	}
	return w
}

func isWide(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// RuneLen is the plain character count, for logging.
func RuneLen(s string) int { return utf8.RuneCountInString(s) }
