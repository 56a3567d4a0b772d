package parser

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-import/internal/completion"
	"github.com/dvloznov/ledger-import/internal/domain"
)

// minVisionConfidence drops rows the model itself is unsure it read
// correctly. Screenshot crops routinely cut amounts or dates in half.
const minVisionConfidence = 0.3

// unscoredVisionConfidence is assigned to rows the model declined to score.
// An unscored screenshot row survives review but must never look fully
// trusted downstream, so the value sits under the auto-confirm floor.
const unscoredVisionConfidence = 0.5

// VisionParser extracts transactions from mobile banking screenshots via the
// multimodal completion model.
type VisionParser struct {
	gen completion.Generator
	log zerolog.Logger
}

// NewVisionParser creates a screenshot parser.
func NewVisionParser(gen completion.Generator, log zerolog.Logger) *VisionParser {
	return &VisionParser{gen: gen, log: log}
}

func (p *VisionParser) Parse(ctx context.Context, in Input) (*domain.ParseResult, error) {
	if len(in.Images) == 0 {
		return nil, fmt.Errorf("Parse: no images provided: %w", domain.ErrVision)
	}

	resp, err := p.gen.Generate(ctx, completion.Request{
		System: screenshotSystemPrompt,
		Prompt: "Extract the transactions from the attached screenshot(s).",
		Images: in.Images,
	})
	if err != nil {
		return nil, fmt.Errorf("Parse: completion: %w", err)
	}

	result, err := decodeModelResult(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("Parse: %w", err)
	}
	result.RawModelOutput = resp.Content

	kept := result.Transactions[:0]
	dropped := 0
	for _, tx := range result.Transactions {
		if tx.Confidence == 0 {
			tx.Confidence = unscoredVisionConfidence
		}
		if tx.Confidence < minVisionConfidence {
			dropped++
			continue
		}
		kept = append(kept, tx)
	}
	result.Transactions = kept

	if dropped > 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("%d low-confidence rows dropped", dropped))
	}

	p.log.Debug().
		Int("images", len(in.Images)).
		Int("transactions", len(result.Transactions)).
		Int("dropped", dropped).
		Msg("screenshots parsed")

	return result, nil
}
