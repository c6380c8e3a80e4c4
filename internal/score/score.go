// Package score holds the scoring rules: the time-pressure formula for
// regular questions, the deferred vote tally for polls, and the award for
// the winning poll answer.
package score

import (
	"sort"

	"github.com/groupchat-games/trivia/internal/domain"
)

const (
	basePoints = 100
	speedBonus = 2

	pollBase    = 150
	pollPerVote = 25
)

// Points returns the score for a regular-round answer. Correct answers earn
// a base plus a speed bonus for every whole second left on the clock; wrong
// answers earn nothing.
func Points(correct bool, secondsRemaining int) int {
	if !correct {
		return 0
	}
	if secondsRemaining < 0 {
		secondsRemaining = 0
	}
	return basePoints + speedBonus*secondsRemaining
}

// PollAward is the score granted to the player whose name won the poll.
func PollAward(votes int) int {
	return pollBase + pollPerVote*votes
}

// TallyPoll counts votes per distinct answer text. answers must be in
// submission order. The returned stats are sorted by vote count descending
// with ties broken by earliest submission, so stats[0] is always the
// winning answer. An empty input yields no stats and no winner.
func TallyPoll(answers []string) (stats []domain.VoteStat, winner string, winnerVotes int) {
	counts := make(map[string]int, len(answers))
	var order []string
	for _, a := range answers {
		if _, seen := counts[a]; !seen {
			order = append(order, a)
		}
		counts[a]++
	}

	for _, a := range order {
		stats = append(stats, domain.VoteStat{Answer: a, Votes: counts[a]})
	}

	// Stable by construction: stats start in first-seen order, so a tie for
	// the top count resolves to the earliest-submitted answer.
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Votes > stats[j].Votes })

	if len(stats) == 0 {
		return nil, "", 0
	}
	return stats, stats[0].Answer, stats[0].Votes
}
