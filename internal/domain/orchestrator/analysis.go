package orchestrator

import (
	"math"

	"github.com/okian/detflow/internal/domain/model"
)

const (
	DefaultWeaknessThreshold = 100
	DefaultHistoryWindow     = 10
	progressRecent           = 5
)

// Skill names reported as weaknesses, in reporting order.
const (
	SkillLiteracy      = "Literacy"
	SkillComprehension = "Comprehension"
	SkillConversation  = "Conversation"
	SkillProduction    = "Production"
)

// Weaknesses averages each subscore over subs and names the skills whose
// average is below threshold. Submissions without subscores count as zero.
func Weaknesses(subs []model.Submission, threshold int) []string {
	if len(subs) == 0 {
		return nil
	}
	var sum model.Subscores
	for i := range subs {
		if s := subs[i].Subscores; s != nil {
			sum.Literacy += s.Literacy
			sum.Comprehension += s.Comprehension
			sum.Conversation += s.Conversation
			sum.Production += s.Production
		}
	}
	n := float64(len(subs))
	limit := float64(threshold)

	var out []string
	for _, sk := range []struct {
		name  string
		total int
	}{
		{SkillLiteracy, sum.Literacy},
		{SkillComprehension, sum.Comprehension},
		{SkillConversation, sum.Conversation},
		{SkillProduction, sum.Production},
	} {
		if float64(sk.total)/n < limit {
			out = append(out, sk.name)
		}
	}
	return out
}

// Summarize computes progress over subs, newest first. It reports false when
// none of them carries a score.
func Summarize(subs []model.Submission) (model.Progress, bool) {
	p := model.Progress{Submissions: len(subs)}
	total, scored := 0, 0
	for i := range subs {
		if !subs[i].Scored() {
			continue
		}
		score := *subs[i].OverallScore
		if scored == 0 {
			p.Latest = score
			p.Best = score
		}
		if score > p.Best {
			p.Best = score
		}
		total += score
		scored++
		if len(p.Recent) < progressRecent {
			p.Recent = append(p.Recent, model.ScoreAt{Score: score, At: subs[i].CreatedAt})
		}
	}
	if scored == 0 {
		return model.Progress{}, false
	}
	p.Average = int(math.Round(float64(total) / float64(scored)))
	return p, true
}
