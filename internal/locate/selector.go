package locate

// hostScore counts, per split, the extents host already holds a lock on and
// can read, capped at n_data: locks beyond the quota do not help.
func (c *call) hostScore(host string) int {
	caps := c.hosts[host]
	score := 0
	for s := 0; s < c.layout.SplitCount(); s++ {
		start, end := c.layout.Split(s)
		held := 0
		for i := start; i < end; i++ {
			loc, ok := c.extents.get(i)
			if ok && loc.Owner == host && caps.Accessible[i] {
				held++
			}
		}
		score += min(held, c.layout.NData)
	}
	return score
}

// selectHost picks the candidate needing the fewest new locks. Ties go to
// the focus host, otherwise to the first host in name order.
func (c *call) selectHost() (string, bool) {
	best, bestScore := "", -1
	for _, host := range sortedHosts(c.hosts) {
		score := c.hostScore(host)
		c.log.Debug().Str("host", host).Int("score", score).Msg("Host scored")
		if score > bestScore || (score == bestScore && host == c.focus) {
			best, bestScore = host, score
		}
	}
	return best, bestScore >= 0
}
