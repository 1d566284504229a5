package detector

import (
	"context"

	"filesentry/logger"
	"filesentry/mimetypes"
)

// signalsPerFile is the number of votes cast per file: one from the
// signature, one from the primary extension. A signal that resolves to
// Unknown still consumes its vote.
const signalsPerFile = 2

type consistencyCheck struct{}

func (consistencyCheck) Name() string { return "consistency" }

func (consistencyCheck) Run(ctx context.Context, rc *runContext) error {
	f := &rc.record.File
	if mimesAgree(f.ExtensionMime, f.SignatureMime, f.DeclaredMime) {
		return rc.record.ChecksDone.set(CheckExtensionSignatureRequestMatch, true)
	}
	return rc.record.RecognizedAttacks.set(AttackMimeManipulation, true)
}

// mimesAgree is strict: all three equal and none of them Unknown.
func mimesAgree(ext, sig, declared string) bool {
	if ext == mimetypes.Unknown || sig == mimetypes.Unknown || declared == mimetypes.Unknown {
		return false
	}
	return ext == sig && sig == declared
}

// scoreTable is an ordered MIME -> points table. Order is fixed at
// construction and decides ties.
type scoreTable struct {
	mimes []string
	index map[string]int
}

func newScoreTable(mimes []string) scoreTable {
	t := scoreTable{mimes: mimes, index: make(map[string]int, len(mimes))}
	for i, m := range mimes {
		t.index[m] = i
	}
	return t
}

type guess struct {
	mime   string
	points int
	total  int
}

func (g guess) ratio() float64 {
	if g.total == 0 {
		return 0
	}
	return float64(g.points) / float64(g.total)
}

// guess picks the first MIME with the highest score. When no vote lands in
// the table every score is zero and the guess is Unknown rather than the
// table's first entry; the ratio is 0 either way.
func (t scoreTable) guess(sigMime, extMime string) guess {
	scores := make([]int, len(t.mimes))
	total := 0
	for _, vote := range [signalsPerFile]string{sigMime, extMime} {
		if i, ok := t.index[vote]; ok {
			scores[i]++
		}
		total++
	}
	best := -1
	for i, s := range scores {
		if best < 0 || s > scores[best] {
			best = i
		}
	}
	g := guess{mime: mimetypes.Unknown, total: total}
	if best >= 0 && scores[best] > 0 {
		g.mime = t.mimes[best]
		g.points = scores[best]
	}
	return g
}

type confidenceCheck struct {
	table     scoreTable
	threshold float64
}

func (confidenceCheck) Name() string { return "confidence" }

func (c confidenceCheck) Run(ctx context.Context, rc *runContext) error {
	f := &rc.record.File
	g := c.table.guess(f.SignatureMime, f.ExtensionMime)
	f.GuessedMime = g.mime
	f.ConfidenceRatio = g.ratio()
	f.Malicious = f.ConfidenceRatio < c.threshold
	logger.Debugf("Guessed %s for %s: %d/%d points, malicious=%t",
		g.mime, rc.fd.Name, g.points, g.total, f.Malicious)
	return nil
}
