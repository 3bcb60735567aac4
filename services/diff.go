package services

import (
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff-Operationen für die Review-Ansicht.
const (
	DiffEqual  = "equal"
	DiffDelete = "delete"
	DiffInsert = "insert"
)

// DiffSpan ist ein klassifizierter Abschnitt des Review-Diffs.
type DiffSpan struct {
	Op   string `json:"op"`
	Text string `json:"text"`
}

// DiffSpans berechnet einen LCS-Diff zwischen aktuellem Inhalt und
// Vorschlag. Wird on-demand für die Anzeige berechnet, nie persistiert.
func DiffSpans(current, suggested string) []DiffSpan {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(current, suggested, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	spans := make([]DiffSpan, 0, len(diffs))
	for _, d := range diffs {
		span := DiffSpan{Text: d.Text}
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			span.Op = DiffDelete
		case diffmatchpatch.DiffInsert:
			span.Op = DiffInsert
		default:
			span.Op = DiffEqual
		}
		spans = append(spans, span)
	}
	return spans
}
