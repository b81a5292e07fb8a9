package corpus

import (
	"context"

	"github.com/itmlab/anchorserve/internal/corpus/tokenize"
	"github.com/itmlab/anchorserve/pkg/config"
)

// Builder returns the zero-argument corpus builder described by cfg,
// suitable for wrapping in the cache layers. The stage order mirrors the
// import pipeline: read, drop stopwords, fold name and profanity lists into
// placeholder tokens, then trim rare and ubiquitous terms.
func Builder(cfg config.CorpusConfig) (func(ctx context.Context) (*Dataset, error), error) {
	tok, err := tokenize.ByName(cfg.Tokenizer)
	if err != nil {
		return nil, err
	}

	source := ReadGlob(cfg.DocumentGlob, tok)
	var stages []Stage
	if len(cfg.StopwordFiles) > 0 {
		stages = append(stages, FilterStopwords(cfg.StopwordFiles...))
	}
	if cfg.NameFile != "" {
		stages = append(stages, CombineWords(cfg.NameFile, "<name>"))
	}
	if cfg.ProfanityFile != "" {
		stages = append(stages, CombineWords(cfg.ProfanityFile, "<profanity>"))
	}
	if cfg.RareThreshold > 0 {
		stages = append(stages, FilterRarewords(cfg.RareThreshold))
	}
	if cfg.CommonThreshold > 0 {
		stages = append(stages, FilterCommonwords(cfg.CommonThreshold))
	}

	return func(ctx context.Context) (*Dataset, error) {
		return Build(ctx, source, stages...)
	}, nil
}
