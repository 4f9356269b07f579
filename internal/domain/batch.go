package domain

import (
	"strings"
	"time"
)

// Method is the operation a job asks the keeper to perform.
type Method string

const (
	MethodPoke    Method = "poke"
	MethodResolve Method = "resolve"
	MethodCreate  Method = "create"
)

// ParseMethod normalises m and rejects anything outside the known set.
func ParseMethod(m string) (Method, error) {
	switch v := Method(strings.ToLower(strings.TrimSpace(m))); v {
	case MethodPoke, MethodResolve, MethodCreate:
		return v, nil
	default:
		return "", Configurationf("method", m, "method not supported")
	}
}

// Policy names the batch policy that produced a result.
type Policy string

const (
	// PolicyLenientPoke submits one pokeCoin per eligible coin and tolerates
	// per-coin skips and per-transaction failures.
	PolicyLenientPoke Policy = "lenient_poke"
	// PolicyStrictResolve resolves every coin and submits a single
	// createAndResolveMarkets, or nothing at all.
	PolicyStrictResolve Policy = "strict_resolve"
	// PolicyCreateEvents submits one createEvent per scheduled event.
	PolicyCreateEvents Policy = "create_events"
)

// Job is one keeper invocation, either from the HTTP adapter or from the
// configured schedule.
type Job struct {
	ID              string
	Method          Method
	Sport           Sport
	ContractAddress string
	DaysInAdvance   int
	StartBuffer     time.Duration
	AffiliateIDs    []int
}

// Submission records one attempted transaction.
type Submission struct {
	Label  string `json:"label"`
	Nonce  uint64 `json:"nonce"`
	TxHash string `json:"tx_hash,omitempty"`
	Err    string `json:"error,omitempty"`
}

// OK reports whether the submission was accepted by the node.
func (s Submission) OK() bool { return s.Err == "" }

// BatchResult summarises a batch. Succeeded+Failed always equals the number
// of transactions attempted; Skipped counts items dropped before submission.
type BatchResult struct {
	Policy      Policy       `json:"policy"`
	Succeeded   int          `json:"succeeded"`
	Failed      int          `json:"failed"`
	Skipped     int          `json:"skipped"`
	Submissions []Submission `json:"submissions,omitempty"`
}

// Attempted is the number of transactions sent.
func (r BatchResult) Attempted() int { return r.Succeeded + r.Failed }

// BatchReport is a BatchResult with the job metadata needed by report sinks.
type BatchReport struct {
	BatchID    string      `json:"batch_id"`
	JobID      string      `json:"job_id"`
	Method     Method      `json:"method"`
	Sport      Sport       `json:"sport"`
	Contract   string      `json:"contract"`
	Account    string      `json:"account"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Result     BatchResult `json:"result"`
	Error      string      `json:"error,omitempty"`
}
