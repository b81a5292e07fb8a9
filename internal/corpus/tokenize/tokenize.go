// Package tokenize provides composable tokenizers for corpus import
// pipelines. Every tokenizer shares the same signature, source in, tokens
// out, and the structured variants accept a downstream tokenizer so that
// composition is by substitution: HTML(News(Simple(Split))) is valid and
// order-sensitive.
package tokenize

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/itmlab/anchorserve/pkg/errors"
	"github.com/itmlab/anchorserve/pkg/logger"
)

// Tokenizer turns a readable text source into an ordered token sequence.
// Document order is preserved and duplicates are kept.
type Tokenizer func(src io.Reader) ([]string, error)

var (
	scriptRE  = regexp.MustCompile(`(?is)<script.*?>.*?</script>`)
	styleRE   = regexp.MustCompile(`(?is)<style.*?>.*?</style>`)
	commentRE = regexp.MustCompile(`(?s)<!--(.*?)-->\n?`)
	tagRE     = regexp.MustCompile(`(?s)<.*?>`)
)

// Split reads the whole source and splits it on whitespace. It is the base
// case of the pipeline and applies no filtering.
func Split(src io.Reader) ([]string, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, readErr(src, err)
	}
	return strings.Fields(string(data)), nil
}

// Simple returns a Tokenizer that delegates to splitter, lower-cases every
// token, strips every character outside a-z, and drops tokens left empty.
// A token with no alphabetic characters vanishes entirely.
func Simple(splitter Tokenizer) Tokenizer {
	if splitter == nil {
		splitter = Split
	}
	return func(src io.Reader) ([]string, error) {
		raw, err := splitter(src)
		if err != nil {
			return nil, err
		}
		tokens := make([]string, 0, len(raw))
		for _, tok := range raw {
			cleaned := stripNonAlpha(strings.ToLower(tok))
			if cleaned != "" {
				tokens = append(tokens, cleaned)
			}
		}
		return tokens, nil
	}
}

// News returns a Tokenizer that discards everything up through the first
// blank line (the newsgroup-style header) and tokenizes the remainder with
// inner. A document with no blank line yields no tokens. Read failures are
// logged with the source identity and returned.
func News(inner Tokenizer) Tokenizer {
	if inner == nil {
		inner = Simple(Split)
	}
	return func(src io.Reader) ([]string, error) {
		r := bufio.NewReader(src)
		for {
			line, err := r.ReadString('\n')
			if strings.TrimSpace(line) == "" && err == nil {
				break
			}
			if err == io.EOF {
				// Header ran to end of input: nothing left to tokenize.
				return []string{}, nil
			}
			if err != nil {
				logger.WithComponent("tokenize").Error("header scan failed",
					"source", sourceName(src), "error", err)
				return nil, readErr(src, err)
			}
		}
		tokens, err := inner(r)
		if err != nil {
			logger.WithComponent("tokenize").Error("tokenization failed",
				"source", sourceName(src), "error", err)
			return nil, err
		}
		return tokens, nil
	}
}

// HTML returns a Tokenizer that strips markup and tokenizes the extracted
// text with inner. Script and style elements are removed with their content,
// comments are removed, remaining tags become a single space, and non-
// breaking spaces and duplicate spaces are collapsed.
func HTML(inner Tokenizer) Tokenizer {
	if inner == nil {
		inner = Simple(Split)
	}
	return func(src io.Reader) ([]string, error) {
		data, err := io.ReadAll(src)
		if err != nil {
			logger.WithComponent("tokenize").Error("html read failed",
				"source", sourceName(src), "error", err)
			return nil, readErr(src, err)
		}
		text := strings.TrimSpace(string(data))
		text = scriptRE.ReplaceAllString(text, "")
		text = styleRE.ReplaceAllString(text, "")
		text = commentRE.ReplaceAllString(text, "")
		text = tagRE.ReplaceAllString(text, " ")
		text = strings.ReplaceAll(text, "&nbsp;", " ")
		text = strings.ReplaceAll(text, "  ", " ")
		text = strings.ReplaceAll(text, "  ", " ")
		text = strings.TrimSpace(text)
		return inner(strings.NewReader(text))
	}
}

// ByName resolves a configured tokenizer name to a fully composed pipeline.
func ByName(name string) (Tokenizer, error) {
	switch name {
	case "", "simple":
		return Simple(Split), nil
	case "news":
		return News(Simple(Split)), nil
	case "html":
		return HTML(Simple(Split)), nil
	default:
		return nil, fmt.Errorf("%w: unknown tokenizer %q", errors.ErrInvalidInput, name)
	}
}

func stripNonAlpha(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Named attaches an identity to a source so failures can be reported by
// name. Files already carry their own name; use this for in-memory or
// network sources.
func Named(name string, src io.Reader) io.Reader {
	return namedReader{Reader: src, name: name}
}

type namedReader struct {
	io.Reader
	name string
}

func (n namedReader) Name() string { return n.name }

// sourceName reports the identity of a source for diagnostics. Sources that
// know their own name, such as *os.File or a Named wrapper, are reported
// by it.
func sourceName(src io.Reader) string {
	if n, ok := src.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", src)
}

func readErr(src io.Reader, err error) error {
	return fmt.Errorf("%w: %s: %v", errors.ErrSourceRead, sourceName(src), err)
}
