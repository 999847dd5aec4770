package rag

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/vibeee34/chatbot-gemini/src/log"
)

// EvalCase is one line of a retrieval evaluation set: a query and the chunk
// positions that should be retrieved for it.
type EvalCase struct {
	Query           string `json:"query"`
	GoldenPositions []int  `json:"golden_positions"`
}

type EvalReport struct {
	Cases   int
	Skipped int
	// AverageRecall is the mean fraction of golden chunks found in the top k.
	AverageRecall float64
}

// EvaluateRetrieval scores top-k retrieval from c against JSON-lines cases read from r.
// Malformed lines and cases without golden positions are skipped.
func EvaluateRetrieval(ctx context.Context, r io.Reader, embedder Embedder, store CollectionStore, c Collection, k int) (*EvalReport, error) {
	scanner := bufio.NewScanner(r)
	const maxCapacity = 4 * 1024 * 1024
	scanner.Buffer(make([]byte, maxCapacity), maxCapacity)

	report := &EvalReport{}
	var total float64
	line := 0
	for scanner.Scan() {
		line++
		var ec EvalCase
		if err := json.Unmarshal(scanner.Bytes(), &ec); err != nil {
			log.Error(err, "Failed to parse evaluation line", "line", line)
			report.Skipped++
			continue
		}
		if len(ec.GoldenPositions) == 0 {
			report.Skipped++
			continue
		}

		vector, err := embedder.EmbedOne(ctx, ec.Query)
		if err != nil {
			return nil, fmt.Errorf("embed evaluation query on line %d: %w", line, err)
		}
		matches, err := store.Query(ctx, c, vector, k)
		if err != nil {
			return nil, fmt.Errorf("query for evaluation line %d: %w", line, err)
		}

		total += recall(matches, ec.GoldenPositions)
		report.Cases++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read evaluation set: %w", err)
	}

	if report.Cases > 0 {
		report.AverageRecall = total / float64(report.Cases)
	}
	return report, nil
}

func recall(matches []Match, golden []int) float64 {
	want := make(map[int]bool, len(golden))
	for _, p := range golden {
		want[p] = true
	}
	found := 0
	for _, m := range matches {
		if want[m.Position] {
			found++
			delete(want, m.Position)
		}
	}
	return float64(found) / float64(len(want)+found)
}
