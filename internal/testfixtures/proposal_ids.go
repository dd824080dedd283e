package testfixtures

import (
	"strconv"
	"sync/atomic"
)

// ProposalIDs hands out predictable proposal ids: "proposal-1", "proposal-2" and so on.
type ProposalIDs struct {
	prefix string
	issued atomic.Uint64
}

// NewProposalIDs returns a sequence using prefix, or "proposal" when prefix is empty.
func NewProposalIDs(prefix string) *ProposalIDs {
	if prefix == "" {
		prefix = "proposal"
	}
	return &ProposalIDs{prefix: prefix}
}

// Issue returns the next id. It is safe to share across goroutines.
func (p *ProposalIDs) Issue() string {
	return p.prefix + "-" + strconv.FormatUint(p.issued.Add(1), 10)
}

// Issued reports how many ids the sequence has handed out.
func (p *ProposalIDs) Issued() int {
	return int(p.issued.Load())
}
