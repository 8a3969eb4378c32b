package consensus

import "sort"

// resolve computes a ConsensusResult for a closed session under the
// given algorithm. It never mutates session; CloseSession is
// responsible for persisting the returned result.
func resolve(session *VotingSession, algorithm Algorithm, threshold float64, registeredWeight float64, registeredCount int) *ConsensusResult {
	tally := make(map[string]float64, len(session.Options))
	counts := make(map[string]int, len(session.Options))
	for _, opt := range session.Options {
		tally[opt.ID] = 0
		counts[opt.ID] = 0
	}

	totalWeight := 0.0
	totalVotes := 0
	distinctVoters := make(map[string]struct{})
	for _, v := range session.Votes {
		tally[v.OptionID] += v.Weight
		counts[v.OptionID]++
		totalWeight += v.Weight
		totalVotes++
		distinctVoters[v.VoterID] = struct{}{}
	}

	result := &ConsensusResult{
		SessionID: session.ID,
		Tally:     tally,
		Method:    algorithm,
	}

	if session.Quorum > 0 && len(distinctVoters) < session.Quorum {
		result.ConsensusReached = false
		result.WinningOption = nil
		result.Confidence = 0
		result.Detail = "quorum not met"
		return result
	}

	switch algorithm {
	case SimpleMajority:
		winnerID, winnerCount := leaderByCount(session.Options, counts)
		result.Confidence = safeDiv(float64(winnerCount), float64(totalVotes))
		if winnerID != "" {
			result.WinningOption = &winnerID
		}
		result.ConsensusReached = totalVotes > 0 && float64(winnerCount) > float64(totalVotes)/2
		result.Detail = detailFor(result.ConsensusReached, "simple majority")

	case WeightedMajority:
		winnerID, winnerWeight := leaderByWeight(session.Options, tally)
		result.Confidence = safeDiv(winnerWeight, totalWeight)
		if winnerID != "" {
			result.WinningOption = &winnerID
		}
		result.ConsensusReached = totalWeight > 0 && winnerWeight > totalWeight/2
		result.Detail = detailFor(result.ConsensusReached, "weighted majority")

	case Supermajority:
		if threshold <= 0 {
			threshold = DefaultThreshold
		}
		winnerID, winnerWeight := leaderByWeight(session.Options, tally)
		result.Confidence = safeDiv(winnerWeight, totalWeight)
		if winnerID != "" {
			result.WinningOption = &winnerID
		}
		result.ConsensusReached = totalWeight > 0 && winnerWeight >= threshold*totalWeight
		result.Detail = detailFor(result.ConsensusReached, "supermajority")

	case ConsensusThreshold:
		if threshold <= 0 {
			threshold = DefaultThreshold
		}
		votedOptions := 0
		winnerID := ""
		winnerWeight := 0.0
		for _, opt := range session.Options {
			if counts[opt.ID] > 0 {
				votedOptions++
				winnerID = opt.ID
				winnerWeight = tally[opt.ID]
			}
		}
		unanimous := votedOptions == 1 && len(distinctVoters) == registeredCount && registeredCount > 0
		result.ConsensusReached = unanimous && registeredWeight > 0 && totalWeight >= threshold*registeredWeight
		if result.ConsensusReached {
			result.WinningOption = &winnerID
			result.Confidence = safeDiv(winnerWeight, registeredWeight)
		} else {
			result.Confidence = 0
		}
		result.Detail = detailFor(result.ConsensusReached, "consensus threshold (unanimity-scaled)")

	default:
		result.Detail = "unsupported algorithm for single-round tally: " + string(algorithm)
	}

	return result
}

// leaderByCount returns the option id with the strictly greatest vote
// count, breaking ties by lexicographically smallest id. Empty string
// is returned if no votes were cast.
func leaderByCount(options []Option, counts map[string]int) (string, int) {
	ids := sortedOptionIDs(options)
	bestID := ""
	bestCount := -1
	for _, id := range ids {
		c := counts[id]
		if c > bestCount {
			bestCount = c
			bestID = id
		}
	}
	if bestCount <= 0 {
		return "", 0
	}
	return bestID, bestCount
}

// leaderByWeight mirrors leaderByCount for summed weight.
func leaderByWeight(options []Option, tally map[string]float64) (string, float64) {
	ids := sortedOptionIDs(options)
	bestID := ""
	bestWeight := -1.0
	for _, id := range ids {
		w := tally[id]
		if w > bestWeight {
			bestWeight = w
			bestID = id
		}
	}
	if bestWeight <= 0 {
		return "", 0
	}
	return bestID, bestWeight
}

func sortedOptionIDs(options []Option) []string {
	ids := make([]string, len(options))
	for i, o := range options {
		ids[i] = o.ID
	}
	sort.Strings(ids)
	return ids
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func detailFor(reached bool, method string) string {
	if reached {
		return "consensus reached via " + method
	}
	return "consensus not reached via " + method
}
