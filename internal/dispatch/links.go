package dispatch

import (
	"regexp"
	"strings"
)

const (
	linkURLWeight      = 0.62
	linkSaveWordWeight = 0.18
	linkNounWeight     = 0.08
	linkIntentOnlyConf = 0.45
	linkTitleMaxWords  = 6
)

var domainRe = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]*\.(com|org|net|io|pt|es|br|ai|dev|co|me|tv|app)(/\S*)?$`)

// matchLinks detects URL-shaped tokens and captures surrounding words as a
// candidate title. Bare "www." and domain-like tokens are normalized to
// https. Strict parameters require a URL; save-intent wording alone resolves
// the module but routes to the fallback.
func (d *Dispatcher) matchLinks(text string, tokens []string) matchResult {
	res := matchResult{module: ModuleLinks, reasons: []string{"matcher=links"}}
	ex := &res.extracted

	urlToken := ""
	for _, tok := range tokens {
		if u, ok := normalizeURL(tok); ok {
			ex.LinkURL = u
			urlToken = tok
			break
		}
	}

	saveWord := ""
	linkNoun := ""
	for _, tok := range tokens {
		if saveWord == "" && d.lex.IsSaveWord(tok) {
			saveWord = tok
		}
		if linkNoun == "" && d.lex.IsLinkNoun(tok) {
			linkNoun = tok
		}
	}

	ex.LinkTitle = linkTitle(tokens, urlToken, d)

	conf := 0.0
	if ex.LinkURL != "" {
		conf = linkURLWeight
		res.reasons = append(res.reasons, "url_present")
		if saveWord != "" {
			conf += linkSaveWordWeight
			res.reasons = append(res.reasons, "save_word="+saveWord)
		}
		if linkNoun != "" {
			conf += linkNounWeight
			res.reasons = append(res.reasons, "link_noun="+linkNoun)
		}
	} else {
		res.missing = append(res.missing, "link_url")
		res.reasons = append(res.reasons, "url_missing")
		if saveWord != "" && linkNoun != "" {
			conf = linkIntentOnlyConf
			res.reasons = append(res.reasons, "save_word="+saveWord, "link_noun="+linkNoun)
		}
	}

	res.conf = conf
	res.strict = ex.LinkURL != ""
	return res
}

// normalizeURL recognizes scheme-full URLs, bare "www." tokens and
// domain-like tokens, defaulting the scheme to https.
func normalizeURL(tok string) (string, bool) {
	if strings.HasPrefix(tok, "http://") || strings.HasPrefix(tok, "https://") {
		return tok, true
	}
	if strings.HasPrefix(tok, "www.") && len(tok) > len("www.") {
		return "https://" + tok, true
	}
	if domainRe.MatchString(tok) {
		return "https://" + tok, true
	}
	return "", false
}

// linkTitle joins the surrounding non-stopword, non-intent words as a
// candidate title.
func linkTitle(tokens []string, urlToken string, d *Dispatcher) string {
	words := make([]string, 0, linkTitleMaxWords)
	for _, tok := range tokens {
		if tok == urlToken || stopwords[tok] || d.lex.IsSaveWord(tok) {
			continue
		}
		words = append(words, tok)
		if len(words) == linkTitleMaxWords {
			break
		}
	}
	return strings.Join(words, " ")
}
